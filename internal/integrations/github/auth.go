package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

// NewClient creates a new GitHub client using the provided token.
// If token is empty, it returns an unauthenticated client.
func NewClient(ctx context.Context, token string) *Client {
	var tc *http.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(ctx, ts)
	}

	return &Client{client: github.NewClient(tc)}
}

// NewClientWithHTTP creates a client on top of an already authenticated
// http.Client. baseURL is optional and points at a GitHub Enterprise or test server.
func NewClientWithHTTP(httpClient *http.Client, baseURL string) (*Client, error) {
	client := github.NewClient(httpClient)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		client.BaseURL = u
	}
	return &Client{client: client}, nil
}

// newInstallationTransport returns a transport that mints installation access
// tokens from the App private key. Tokens are cached and refreshed by ghinstallation.
func newInstallationTransport(base http.RoundTripper, appID, installationID int64, privateKey []byte, baseURL string) (*ghinstallation.Transport, error) {
	tr, err := ghinstallation.New(base, appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport: %w", err)
	}
	if baseURL != "" {
		tr.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return tr, nil
}
