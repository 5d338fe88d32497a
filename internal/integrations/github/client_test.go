package github

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestRepository(t *testing.T, handler http.Handler) *Repository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClientWithHTTP(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewClientWithHTTP: %v", err)
	}
	repo, err := NewRepository(client, "acme/app")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return repo
}

func TestCreateCommentValidation(t *testing.T) {
	// Test that CreateComment rejects empty body
	client := &Client{client: nil} // nil client for validation testing

	if err := client.CreateComment(context.Background(), "org", "repo", 1, ""); err == nil {
		t.Error("Expected error for empty comment body")
	}
	if err := client.CreateComment(context.Background(), "org", "repo", 1, "   "); err == nil {
		t.Error("Expected error for whitespace-only comment body")
	}
}

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		name       string
		repo       string
		shouldFail bool
	}{
		{"valid format", "owner/repo", false},
		{"missing slash", "ownerrepo", true},
		{"empty owner", "/repo", true},
		{"empty repo", "owner/", true},
		{"empty string", "", true},
		{"too many slashes", "owner/repo/extra", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SplitRepo(tt.repo)
			if tt.shouldFail && !errors.Is(err, ErrNotConfigured) {
				t.Errorf("expected ErrNotConfigured for %q, got %v", tt.repo, err)
			}
			if !tt.shouldFail && err != nil {
				t.Errorf("unexpected error for %q: %v", tt.repo, err)
			}
		})
	}
}

func TestCreateIssue(t *testing.T) {
	repo := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/app/issues" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["title"] != "Button broken" {
			t.Errorf("unexpected title %v", body["title"])
		}
		labels, _ := body["labels"].([]interface{})
		if len(labels) != 2 || labels[0] != "bug" || labels[1] != "P2" {
			t.Errorf("unexpected labels %v", body["labels"])
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": 42, "html_url": "https://github.com/acme/app/issues/42"}`)
	}))

	issue, err := repo.CreateIssue(context.Background(), "Button broken", "## Description", []string{"bug", "P2"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if issue.Number != 42 || issue.URL != "https://github.com/acme/app/issues/42" {
		t.Errorf("unexpected issue %+v", issue)
	}
}

func TestCreateIssueSurfacesStatus(t *testing.T) {
	repo := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"message": "Issues are disabled for this repo"}`)
	}))

	_, err := repo.CreateIssue(context.Background(), "t", "b", nil)
	var te *TrackerError
	if !errors.As(err, &te) {
		t.Fatalf("expected TrackerError, got %v", err)
	}
	if te.StatusCode != http.StatusGone || te.Message != "Issues are disabled for this repo" {
		t.Errorf("unexpected tracker error %+v", te)
	}
}

func TestListOpenIssueTitlesSkipsPullRequests(t *testing.T) {
	repo := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "open" {
			t.Errorf("state = %q", got)
		}
		if got := r.URL.Query().Get("per_page"); got != "100" {
			t.Errorf("per_page = %q", got)
		}
		fmt.Fprint(w, `[
			{"number": 1, "title": "Crash on save"},
			{"number": 2, "title": "Fix crash", "pull_request": {"url": "x"}},
			{"number": 3, "title": "Button broken"}
		]`)
	}))

	issues, err := repo.ListOpenIssueTitles(context.Background(), 500)
	if err != nil {
		t.Fatalf("ListOpenIssueTitles: %v", err)
	}
	if len(issues) != 2 || issues[0].Number != 1 || issues[1].Title != "Button broken" {
		t.Errorf("unexpected issues %+v", issues)
	}
}

func TestGetIssue(t *testing.T) {
	repo := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 7, "title": "Crash", "body": "Steps...", "html_url": "https://github.com/acme/app/issues/7"}`)
	}))

	issue, err := repo.GetIssue(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Number != 7 || issue.Title != "Crash" || issue.Body != "Steps..." {
		t.Errorf("unexpected issue %+v", issue)
	}
}

func TestAddReactionTreatsConflictAsSuccess(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"created", http.StatusCreated, false},
		{"already reacted", http.StatusOK, false},
		{"conflict", http.StatusConflict, false},
		{"forbidden", http.StatusForbidden, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepository(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/repos/acme/app/issues/7/reactions" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				body, _ := io.ReadAll(r.Body)
				if !bytes.Contains(body, []byte(`"+1"`)) {
					t.Errorf("unexpected body %s", body)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"id": 1, "content": "+1", "message": "nope"}`)
			}))

			err := repo.AddReaction(context.Background(), 7)
			if (err != nil) != tt.wantErr {
				t.Errorf("AddReaction() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolverRequiresRepositoryAndCredentials(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	if _, err := r.Resolve(context.Background(), Target{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured for missing repo, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), Target{Repo: "acme/app", InstallationID: 9}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured without credentials, got %v", err)
	}

	r = NewResolver(ResolverOptions{Token: "ghp_test"})
	tracker, err := r.Resolve(context.Background(), Target{Repo: "acme/app"})
	if err != nil {
		t.Fatalf("Resolve with token: %v", err)
	}
	if tracker.FullName() != "acme/app" {
		t.Errorf("FullName() = %q", tracker.FullName())
	}
}

func TestParseWebhook(t *testing.T) {
	payload := []byte(`{"action":"closed","issue":{"number":5},"repository":{"full_name":"acme/app"}}`)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(payload)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	newRequest := func(sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/github/webhook", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-GitHub-Event", "issues")
		if sig != "" {
			req.Header.Set("X-Hub-Signature-256", sig)
		}
		return req
	}

	eventType, event, err := ParseWebhook(newRequest(signature), "s3cret")
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	ev, ok := event.(*IssuesEvent)
	if eventType != "issues" || !ok {
		t.Fatalf("unexpected event %q %T", eventType, event)
	}
	if ev.GetAction() != "closed" || ev.GetIssue().GetNumber() != 5 || ev.GetRepo().GetFullName() != "acme/app" {
		t.Errorf("unexpected payload %+v", ev)
	}

	if _, _, err := ParseWebhook(newRequest("sha256=deadbeef"), "s3cret"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}
