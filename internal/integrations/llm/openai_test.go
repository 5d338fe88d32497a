package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatClientComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"action\":\"ASK_QUESTION\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(ChatOptions{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "m", MaxTokens: 50})
	reply, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if reply != `{"action":"ASK_QUESTION"}` {
		t.Errorf("unexpected reply %q", reply)
	}
	if got.Model != "m" || got.MaxTokens != 50 || len(got.Messages) != 1 {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestChatClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewChatClient(ChatOptions{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.StatusCode != http.StatusTooManyRequests || upErr.Message != "slow down" {
		t.Errorf("unexpected error %+v", upErr)
	}
}

func TestChatClientRequiresKey(t *testing.T) {
	c := NewChatClient(ChatOptions{BaseURL: "http://127.0.0.1:1"})
	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleSystem, Content: "b"},
	})
	if system != "a\n\nb" {
		t.Errorf("system = %q", system)
	}
	if len(turns) != 1 || turns[0].Content != "u" {
		t.Errorf("turns = %+v", turns)
	}
}
