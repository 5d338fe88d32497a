// Package discord posts new-issue notifications to a Discord webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const embedColor = 0xff6b35

// Notifier sends Discord webhook messages.
type Notifier struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewNotifier creates a Notifier whose requests are bounded by timeout.
func NewNotifier(timeout time.Duration) *Notifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{httpClient: &http.Client{Timeout: timeout}, now: time.Now}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Timestamp   string       `json:"timestamp"`
}

type webhookMessage struct {
	Embeds []embed `json:"embeds"`
}

// Notify announces a new issue. It never fails: errors are logged and dropped.
func (n *Notifier) Notify(ctx context.Context, webhookURL, title, issueURL, repo string) {
	if webhookURL == "" {
		return
	}
	if err := n.send(ctx, webhookURL, title, issueURL, repo); err != nil {
		log.Printf("[discord] Warning: notification failed (non-blocking): %v", err)
	}
}

func (n *Notifier) send(ctx context.Context, webhookURL, title, issueURL, repo string) error {
	msg := webhookMessage{Embeds: []embed{{
		Title:       "New bug report!",
		Description: fmt.Sprintf("**%s**\n\n[View on GitHub](%s)", title, issueURL),
		Color:       embedColor,
		Fields:      []embedField{{Name: "Repository", Value: repo, Inline: true}},
		Timestamp:   n.now().UTC().Format(time.RFC3339),
	}}}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
