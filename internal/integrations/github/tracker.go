package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotConfigured is returned when a form cannot be mapped to an authorized repository.
var ErrNotConfigured = errors.New("github repository not configured")

// Tracker is the issue tracker bound to a single repository.
type Tracker interface {
	FullName() string
	CreateIssue(ctx context.Context, title, body string, labels []string) (*CreatedIssue, error)
	ListOpenIssueTitles(ctx context.Context, limit int) ([]IssueSummary, error)
	GetIssue(ctx context.Context, number int) (*IssueContent, error)
	AddReaction(ctx context.Context, number int) error
	AddComment(ctx context.Context, number int, body string) error
}

// Repository binds a Client to owner/name.
type Repository struct {
	client *Client
	Owner  string
	Name   string
}

// NewRepository binds client to the "owner/name" repository.
func NewRepository(client *Client, fullName string) (*Repository, error) {
	owner, name, err := SplitRepo(fullName)
	if err != nil {
		return nil, err
	}
	return &Repository{client: client, Owner: owner, Name: name}, nil
}

// SplitRepo splits "owner/name".
func SplitRepo(fullName string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(fullName), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: invalid repository %q, expected 'owner/repo'", ErrNotConfigured, fullName)
	}
	return parts[0], parts[1], nil
}

func (r *Repository) FullName() string { return r.Owner + "/" + r.Name }

func (r *Repository) CreateIssue(ctx context.Context, title, body string, labels []string) (*CreatedIssue, error) {
	return r.client.CreateIssue(ctx, r.Owner, r.Name, title, body, labels)
}

func (r *Repository) ListOpenIssueTitles(ctx context.Context, limit int) ([]IssueSummary, error) {
	return r.client.ListOpenIssueTitles(ctx, r.Owner, r.Name, limit)
}

func (r *Repository) GetIssue(ctx context.Context, number int) (*IssueContent, error) {
	return r.client.GetIssue(ctx, r.Owner, r.Name, number)
}

func (r *Repository) AddReaction(ctx context.Context, number int) error {
	return r.client.AddReaction(ctx, r.Owner, r.Name, number)
}

func (r *Repository) AddComment(ctx context.Context, number int, body string) error {
	return r.client.CreateComment(ctx, r.Owner, r.Name, number, body)
}

// Target is what a form knows about its repository.
type Target struct {
	Repo           string
	InstallationID int64
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	AppID      int64
	PrivateKey []byte
	// Token is used when the owner has no App installation.
	Token   string
	BaseURL string
	Timeout time.Duration
}

// Resolver maps a form's repository to an authenticated Tracker.
type Resolver struct {
	opts ResolverOptions

	mu      sync.Mutex
	clients map[int64]*Client
	static  *Client
}

// NewResolver creates a Resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Resolver{opts: opts, clients: make(map[int64]*Client)}
}

// Resolve returns a Tracker for target. It fails with ErrNotConfigured when the
// form has no repository or no credentials are available for it.
func (r *Resolver) Resolve(ctx context.Context, target Target) (Tracker, error) {
	if strings.TrimSpace(target.Repo) == "" {
		return nil, fmt.Errorf("%w: form has no linked repository", ErrNotConfigured)
	}

	client, err := r.clientFor(target.InstallationID)
	if err != nil {
		return nil, err
	}
	return NewRepository(client, target.Repo)
}

func (r *Resolver) clientFor(installationID int64) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if installationID > 0 && r.opts.AppID > 0 && len(r.opts.PrivateKey) > 0 {
		if c, ok := r.clients[installationID]; ok {
			return c, nil
		}
		tr, err := newInstallationTransport(http.DefaultTransport, r.opts.AppID, installationID, r.opts.PrivateKey, r.opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
		}
		c, err := NewClientWithHTTP(&http.Client{Transport: tr, Timeout: r.opts.Timeout}, r.opts.BaseURL)
		if err != nil {
			return nil, err
		}
		r.clients[installationID] = c
		return c, nil
	}

	if r.opts.Token == "" {
		return nil, fmt.Errorf("%w: owner has not installed the GitHub App", ErrNotConfigured)
	}
	if r.static == nil {
		hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: r.opts.Token}))
		hc.Timeout = r.opts.Timeout
		c, err := NewClientWithHTTP(hc, r.opts.BaseURL)
		if err != nil {
			return nil, err
		}
		r.static = c
	}
	return r.static, nil
}
