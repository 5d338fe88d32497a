// Package state holds pending duplicate decisions: drafted reports waiting for
// the reporter to confirm or reject a suggested duplicate.
//
// A decision is addressed only by an unguessable single-use token. Take is
// destructive and atomic so a token can finalize at most one report, and
// entries expire after a fixed TTL. There is deliberately no listing API.
package state

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bugspot/bugspot/internal/integrations/llm"
)

// DefaultTTL is how long a pending decision may wait for confirmation.
const DefaultTTL = 30 * time.Minute

// tokenBytes gives 256-bit tokens.
const tokenBytes = 32

// ErrNotFound is returned by Take for unknown, already-taken or expired tokens.
var ErrNotFound = errors.New("pending decision not found")

// PendingDecision is a drafted report awaiting duplicate confirmation.
type PendingDecision struct {
	FormID   string       `json:"form_id"`
	Title    string       `json:"title"`
	Content  string       `json:"content"`
	Priority llm.Priority `json:"priority"`
	Message  string       `json:"message,omitempty"`

	Email         string `json:"email,omitempty"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	ReporterIP    string `json:"reporter_ip,omitempty"`

	// CandidateIDs are the duplicate issues offered to the reporter.
	CandidateIDs []int `json:"candidate_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the decision has expired at now.
func (d *PendingDecision) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Offers reports whether issue was one of the offered candidates.
func (d *PendingDecision) Offers(issue int) bool {
	for _, id := range d.CandidateIDs {
		if id == issue {
			return true
		}
	}
	return false
}

// Store holds pending decisions.
type Store interface {
	// Put stores d and returns its token.
	Put(ctx context.Context, d PendingDecision) (string, error)

	// Take removes and returns the decision for token, or ErrNotFound.
	Take(ctx context.Context, token string) (PendingDecision, error)

	// Restore puts a taken decision back under its token with its original
	// expiry. Expired decisions and tokens already in use are left alone.
	Restore(ctx context.Context, token string, d PendingDecision) error

	// Sweep evicts expired decisions and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// NewToken returns a random hex token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// MarshalDecision serializes a pending decision to JSON.
func MarshalDecision(d *PendingDecision) ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDecision deserializes a pending decision from JSON.
func UnmarshalDecision(data []byte) (*PendingDecision, error) {
	var d PendingDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func stamp(d *PendingDecision, now time.Time, ttl time.Duration) {
	d.CreatedAt = now
	d.ExpiresAt = now.Add(ttl)
}

// Janitor calls store.Sweep every interval until ctx is done.
func Janitor(ctx context.Context, store Store, interval time.Duration, logf func(string, ...any)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				logf("[state] Warning: sweep failed: %v", err)
				continue
			}
			if n > 0 {
				logf("[state] Evicted %d expired pending decisions", n)
			}
		}
	}
}
