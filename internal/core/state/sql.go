package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore keeps pending decisions in the pending_reports table so several
// server instances sharing one database see the same tokens.
type SQLStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLStore creates a SQLStore on db. A zero ttl uses DefaultTTL.
func NewSQLStore(db *sql.DB, ttl time.Duration) *SQLStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLStore{db: db, ttl: ttl, now: time.Now}
}

func (s *SQLStore) Put(ctx context.Context, d PendingDecision) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	stamp(&d, s.now(), s.ttl)

	payload, err := MarshalDecision(&d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pending decision: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO pending_reports (token, payload, created_at, expires_at) VALUES (?, ?, ?, ?)",
		token, string(payload), d.CreatedAt.UnixMilli(), d.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store pending decision: %w", err)
	}
	return token, nil
}

// Take deletes and returns in one statement, so concurrent callers race on
// the row and only one of them gets it.
func (s *SQLStore) Take(ctx context.Context, token string) (PendingDecision, error) {
	var payload string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM pending_reports WHERE token = ? RETURNING payload, expires_at", token,
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return PendingDecision{}, ErrNotFound
	}
	if err != nil {
		return PendingDecision{}, fmt.Errorf("failed to take pending decision: %w", err)
	}
	if !s.now().Before(time.UnixMilli(expiresAt)) {
		return PendingDecision{}, ErrNotFound
	}

	d, err := UnmarshalDecision([]byte(payload))
	if err != nil {
		return PendingDecision{}, fmt.Errorf("failed to decode pending decision: %w", err)
	}
	return *d, nil
}

func (s *SQLStore) Restore(ctx context.Context, token string, d PendingDecision) error {
	if d.IsExpired(s.now()) {
		return nil
	}
	payload, err := MarshalDecision(&d)
	if err != nil {
		return fmt.Errorf("failed to marshal pending decision: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO pending_reports (token, payload, created_at, expires_at) VALUES (?, ?, ?, ?)",
		token, string(payload), d.CreatedAt.UnixMilli(), d.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to restore pending decision: %w", err)
	}
	return nil
}

func (s *SQLStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_reports WHERE expires_at <= ?", s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep pending decisions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
