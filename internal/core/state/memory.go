package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps pending decisions in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]PendingDecision
}

// NewMemoryStore creates a MemoryStore. A zero ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]PendingDecision)}
}

func (m *MemoryStore) Put(ctx context.Context, d PendingDecision) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&d, m.now(), m.ttl)
	m.entries[token] = d
	return token, nil
}

func (m *MemoryStore) Take(ctx context.Context, token string) (PendingDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.entries[token]
	if !ok {
		return PendingDecision{}, ErrNotFound
	}
	delete(m.entries, token)
	if d.IsExpired(m.now()) {
		return PendingDecision{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryStore) Restore(ctx context.Context, token string, d PendingDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.IsExpired(m.now()) {
		return nil
	}
	if _, ok := m.entries[token]; ok {
		return nil
	}
	m.entries[token] = d
	return nil
}

func (m *MemoryStore) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for token, d := range m.entries {
		if d.IsExpired(now) {
			delete(m.entries, token)
			n++
		}
	}
	return n, nil
}

// Len returns the number of held entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
