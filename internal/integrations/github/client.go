// Package github is the issue tracker adapter: it files issues, lists and
// reads open issues, reacts and comments on a form's repository.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v60/github"
)

// Client wraps the GitHub API client.
type Client struct {
	client *github.Client
}

// CreatedIssue identifies a newly filed issue.
type CreatedIssue struct {
	Number int
	URL    string
}

// IssueSummary is an open issue as offered to the duplicate shortlist.
type IssueSummary struct {
	Number int
	Title  string
}

// IssueContent is the full text of an issue.
type IssueContent struct {
	Number int
	Title  string
	Body   string
	URL    string
}

// TrackerError carries the upstream status of a failed GitHub call.
type TrackerError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TrackerError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("github %s failed: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("github %s failed (%d): %s", e.Op, e.StatusCode, e.Message)
}

func (e *TrackerError) Unwrap() error { return e.Err }

func trackerError(op string, resp *github.Response, err error) error {
	te := &TrackerError{Op: op, Message: err.Error(), Err: err}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		te.Message = ghErr.Message
		if ghErr.Response != nil {
			te.StatusCode = ghErr.Response.StatusCode
		}
	} else if resp != nil && resp.Response != nil {
		te.StatusCode = resp.StatusCode
	}
	return te
}

// CreateIssue files a new issue.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*CreatedIssue, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("issue title cannot be empty")
	}

	req := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}

	issue, resp, err := c.client.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return nil, trackerError("create issue", resp, err)
	}

	return &CreatedIssue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

// ListOpenIssueTitles returns up to limit open issues, excluding pull requests.
func (c *Client) ListOpenIssueTitles(ctx context.Context, owner, repo string, limit int) ([]IssueSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: limit},
	}
	issues, resp, err := c.client.Issues.ListByRepo(ctx, owner, repo, opts)
	if err != nil {
		return nil, trackerError("list issues", resp, err)
	}

	out := make([]IssueSummary, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		out = append(out, IssueSummary{Number: issue.GetNumber(), Title: issue.GetTitle()})
	}
	return out, nil
}

// GetIssue fetches issue details.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*IssueContent, error) {
	issue, resp, err := c.client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, trackerError("get issue", resp, err)
	}

	return &IssueContent{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		URL:    issue.GetHTMLURL(),
	}, nil
}

// AddReaction adds a "+1" reaction. An existing reaction is not an error.
func (c *Client) AddReaction(ctx context.Context, owner, repo string, number int) error {
	_, resp, err := c.client.Reactions.CreateIssueReaction(ctx, owner, repo, number, "+1")
	if err == nil {
		return nil
	}
	te := trackerError("add reaction", resp, err).(*TrackerError)
	if te.StatusCode == http.StatusConflict || te.StatusCode == http.StatusUnprocessableEntity {
		return nil
	}
	return te
}

// CreateComment posts a comment on an issue.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("comment body cannot be empty")
	}

	comment := &github.IssueComment{
		Body: github.String(body),
	}
	_, resp, err := c.client.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		return trackerError("create comment", resp, err)
	}
	return nil
}
