package revoke

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store for tests and single-node deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// NewMemoryWithClock creates an in-memory store with an explicit time source.
func NewMemoryWithClock(now func() time.Time) *Memory {
	m := NewMemory()
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Keep the earlier expiry if the token was already revoked.
	key := Key(token)
	if existing, ok := m.entries[key]; ok && existing.Before(expiresAt) {
		return nil
	}
	m.entries[key] = expiresAt
	return nil
}

func (m *Memory) IsRevoked(ctx context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expiresAt, ok := m.entries[Key(token)]
	if !ok {
		return false, nil
	}
	return m.now().Before(expiresAt), nil
}

func (m *Memory) SweepExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	deleted := 0
	for key, expiresAt := range m.entries {
		if !now.Before(expiresAt) {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
