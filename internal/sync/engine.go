// Package sync keeps the downstream trainer-hours read model eventually
// consistent with the training ledger. Every run is correlation-scoped and
// every downstream call goes through the circuit breaker, so a broken
// downstream degrades into logged, counted failures instead of errors
// reaching the triggering caller.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/peakfit/gymcore/internal/hours"
	"github.com/peakfit/gymcore/internal/obs"
	"github.com/peakfit/gymcore/internal/resilience"
	"github.com/peakfit/gymcore/internal/training"
	"github.com/peakfit/gymcore/internal/txid"
)

// Wiper is the downstream clear-all operation a full resync must confirm
// before replaying the ledger.
type Wiper interface {
	ClearAll(ctx context.Context) error
}

// Result summarizes one sync run for the caller that triggered it.
type Result struct {
	TransactionID string
	Total         int
	Sent          int
	Elapsed       time.Duration
	// Aborted is set when the clear-all step failed and the replay never
	// started; a resync cannot proceed on top of unknown downstream state.
	Aborted bool
}

// Engine drives full and incremental synchronization runs.
type Engine struct {
	ledger    training.Ledger
	publisher hours.Publisher
	wiper     Wiper
	breaker   *resilience.Breaker
	now       func() time.Time
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs the synchronization engine.
func NewEngine(ledger training.Ledger, publisher hours.Publisher, wiper Wiper, breaker *resilience.Breaker, opts ...Option) *Engine {
	e := &Engine{
		ledger:    ledger,
		publisher: publisher,
		wiper:     wiper,
		breaker:   breaker,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FullResync clears the downstream read model and replays every training in
// the ledger as an ADD event. Individual send failures are logged and
// counted but do not abort the loop; only a failed clear-all aborts the run.
func (e *Engine) FullResync(ctx context.Context) (Result, error) {
	ctx, id := txid.Ensure(ctx)
	start := e.now()

	cleared := e.breaker.Run(ctx, func(callCtx context.Context) error {
		return e.wiper.ClearAll(callCtx)
	}, func(fbCtx context.Context, cause error) {
		obs.Error("sync_clear_all_failed", cause, map[string]any{"transaction_id": id})
	})
	if !cleared {
		obs.Info("sync_full_resync_aborted", map[string]any{"transaction_id": id})
		return Result{TransactionID: id, Aborted: true, Elapsed: e.now().Sub(start)}, nil
	}

	items, err := e.ledger.ListAll(ctx)
	if err != nil {
		return Result{TransactionID: id, Elapsed: e.now().Sub(start)}, fmt.Errorf("list trainings: %w", err)
	}

	sent := e.replay(ctx, id, items)
	result := Result{
		TransactionID: id,
		Total:         len(items),
		Sent:          sent,
		Elapsed:       e.now().Sub(start),
	}
	obs.Info("sync_full_resync_done", map[string]any{
		"transaction_id": id,
		"total":          result.Total,
		"sent":           result.Sent,
		"elapsed_ms":     result.Elapsed.Milliseconds(),
	})
	return result, nil
}

// IncrementalSync replays only trainings changed after the given moment.
// The downstream read model is not cleared first.
func (e *Engine) IncrementalSync(ctx context.Context, since time.Time) (Result, error) {
	ctx, id := txid.Ensure(ctx)
	start := e.now()

	items, err := e.ledger.ListChangedSince(ctx, since)
	if err != nil {
		return Result{TransactionID: id, Elapsed: e.now().Sub(start)}, fmt.Errorf("list changed trainings: %w", err)
	}

	sent := e.replay(ctx, id, items)
	result := Result{
		TransactionID: id,
		Total:         len(items),
		Sent:          sent,
		Elapsed:       e.now().Sub(start),
	}
	obs.Info("sync_incremental_done", map[string]any{
		"transaction_id": id,
		"since":          since.UTC().Format(time.RFC3339),
		"total":          result.Total,
		"sent":           result.Sent,
		"elapsed_ms":     result.Elapsed.Milliseconds(),
	})
	return result, nil
}

// Publish forwards one ad-hoc update downstream, fire-and-forget: the error,
// if any, is absorbed by the breaker fallback and only logged and counted.
func (e *Engine) Publish(ctx context.Context, update hours.TrainingUpdate) {
	ctx, id := txid.Ensure(ctx)
	e.send(ctx, id, update)
}

func (e *Engine) replay(ctx context.Context, id string, items []training.Training) int {
	sent := 0
	for _, t := range items {
		if e.send(ctx, id, hours.UpdateFrom(t, hours.ActionAdd)) {
			sent++
		}
	}
	return sent
}

func (e *Engine) send(ctx context.Context, id string, update hours.TrainingUpdate) bool {
	event := hours.Event{
		TransactionID: id,
		Type:          hours.EventUpdate,
		Update:        &update,
	}
	ok := e.breaker.Run(ctx, func(callCtx context.Context) error {
		return e.publisher.Publish(callCtx, event)
	}, func(fbCtx context.Context, cause error) {
		obs.Error("sync_event_dropped", cause, map[string]any{
			"transaction_id": id,
			"trainer":        update.TrainerUsername,
		})
		obs.IncSyncFailed()
	})
	if ok {
		obs.IncSyncSent()
	}
	return ok
}
