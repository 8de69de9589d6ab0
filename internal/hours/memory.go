package hours

import (
	"context"
	"sync"
)

var _ Publisher = (*MemoryPublisher)(nil)

// MemoryPublisher records published events in memory. Used by tests and as a
// stand-in when no broker is configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event

	// FailWith makes Publish return the given error when FailOn matches
	// the event (or for every event when FailOn is nil).
	FailWith error
	FailOn   func(Event) bool
}

// NewMemoryPublisher creates an empty publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailWith != nil && (p.FailOn == nil || p.FailOn(event)) {
		return p.FailWith
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}
