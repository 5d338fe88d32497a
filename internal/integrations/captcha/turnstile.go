// Package captcha verifies Cloudflare Turnstile tokens.
package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

var (
	// ErrMissingToken is returned when the request carries no token.
	ErrMissingToken = errors.New("turnstile token missing")
	// ErrRejected is returned when the service does not accept the token.
	ErrRejected = errors.New("captcha validation failed")
)

// Options configures a Verifier.
type Options struct {
	Secret    string
	VerifyURL string
	// Bypass accepts every request without calling the service. Local development only.
	Bypass  bool
	Timeout time.Duration
}

// Verifier checks Turnstile tokens.
type Verifier struct {
	httpClient *http.Client
	secret     string
	verifyURL  string
	bypass     bool
}

// NewVerifier creates a Verifier.
func NewVerifier(opts Options) *Verifier {
	if opts.VerifyURL == "" {
		opts.VerifyURL = defaultVerifyURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Verifier{
		httpClient: &http.Client{Timeout: opts.Timeout},
		secret:     opts.Secret,
		verifyURL:  opts.VerifyURL,
		bypass:     opts.Bypass,
	}
}

type verifyRequest struct {
	Secret   string `json:"secret"`
	Response string `json:"response"`
	RemoteIP string `json:"remoteip,omitempty"`
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify checks token for the client at remoteIP.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if v.bypass {
		return nil
	}
	if token == "" {
		return ErrMissingToken
	}

	body, err := json.Marshal(verifyRequest{Secret: v.secret, Response: token, RemoteIP: remoteIP})
	if err != nil {
		return fmt.Errorf("failed to marshal captcha request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error validating captcha token: %w", err)
	}
	defer resp.Body.Close()

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("error validating captcha token: %w", err)
	}
	if !out.Success {
		return ErrRejected
	}
	return nil
}
