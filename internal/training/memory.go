package training

import (
	"context"
	"sync"
	"time"
)

var _ Ledger = (*Memory)(nil)

// Memory is an in-process Ledger for tests and local runs.
type Memory struct {
	mu    sync.RWMutex
	items []Training
}

// NewMemory creates a ledger preloaded with the given trainings.
func NewMemory(items ...Training) *Memory {
	return &Memory{items: append([]Training(nil), items...)}
}

// Add appends a training to the ledger.
func (m *Memory) Add(t Training) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, t)
}

func (m *Memory) ListAll(ctx context.Context) ([]Training, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Training(nil), m.items...), nil
}

func (m *Memory) ListChangedSince(ctx context.Context, since time.Time) ([]Training, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Training
	for _, t := range m.items {
		if t.UpdatedAt.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}
