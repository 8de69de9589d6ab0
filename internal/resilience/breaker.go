// Package resilience guards calls to unreliable downstream dependencies with
// a named circuit breaker. Every protected call is total: a primary failure
// of any kind routes to the caller's fallback, which is not allowed to fail,
// so failures surface in logs and counters instead of caller-visible errors.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/peakfit/gymcore/internal/obs"
	"github.com/peakfit/gymcore/internal/txid"
)

// ErrOpen is handed to the fallback when the breaker rejects a call without
// attempting the primary.
var ErrOpen = errors.New("resilience: circuit open")

// State is the breaker's position in the closed/open/half-open cycle.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
	defaultCallTimeout      = 5 * time.Second
)

// Options tune one breaker.
type Options struct {
	// FailureThreshold is the run of consecutive failures that opens the
	// breaker.
	FailureThreshold int
	// Cooldown is how long an open breaker rejects calls before admitting
	// one half-open trial.
	Cooldown time.Duration
	// CallTimeout bounds each primary attempt. Exceeding it counts as an
	// ordinary failure.
	CallTimeout time.Duration
	// Clock overrides the time source (useful for tests).
	Clock func() time.Time
}

// Breaker is a named circuit breaker shared by all concurrent callers of one
// downstream. All state transitions go through its single mutex.
type Breaker struct {
	name string
	opts Options

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// New creates a breaker for the named downstream.
func New(name string, opts Options) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultCooldown
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	b := &Breaker{name: name, opts: opts}
	obs.SetBreakerState(name, int(Closed))
	return b
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Run attempts primary under the breaker discipline and reports whether it
// succeeded. On rejection or primary failure the fallback runs with the
// cause; the fallback must absorb it. The primary executes outside the
// breaker lock under a per-call timeout.
func (b *Breaker) Run(ctx context.Context, primary func(context.Context) error, fallback func(context.Context, error)) bool {
	if !b.allow(ctx) {
		fallback(ctx, ErrOpen)
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, b.opts.CallTimeout)
	err := primary(callCtx)
	cancel()

	if err != nil {
		b.onFailure(ctx)
		obs.IncBreakerFailure(b.name)
		fallback(ctx, err)
		return false
	}
	b.onSuccess(ctx)
	return true
}

// Do runs a call that produces a value through the breaker. The fallback's
// result becomes the call's result.
func Do[T any](ctx context.Context, b *Breaker, primary func(context.Context) (T, error), fallback func(context.Context, error) T) T {
	var out T
	b.Run(ctx, func(callCtx context.Context) error {
		v, err := primary(callCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, func(fbCtx context.Context, cause error) {
		out = fallback(fbCtx, cause)
	})
	return out
}

func (b *Breaker) allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.opts.Clock().Sub(b.openedAt) < b.opts.Cooldown {
			return false
		}
		b.transition(ctx, HalfOpen)
		b.trialInFlight = true
		return true
	case HalfOpen:
		// One trial call at a time.
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

func (b *Breaker) onSuccess(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trialInFlight = false
	if b.state != Closed {
		b.transition(ctx, Closed)
	}
}

func (b *Breaker) onFailure(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.trialInFlight = false
		b.openedAt = b.opts.Clock()
		b.transition(ctx, Open)
	case Closed:
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.openedAt = b.opts.Clock()
			b.transition(ctx, Open)
		}
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	obs.SetBreakerState(b.name, int(next))

	entry := map[string]any{
		"breaker": b.name,
		"from":    prev.String(),
		"to":      next.String(),
	}
	if id, ok := txid.From(ctx); ok {
		entry["transaction_id"] = id
	}
	obs.Info("breaker_transition", entry)
}
