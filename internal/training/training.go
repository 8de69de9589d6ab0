// Package training exposes the authoritative training ledger to the sync
// engine. The core only reads it; creating and editing trainings belongs to
// the CRUD layer.
package training

import (
	"context"
	"time"
)

// Training is one recorded session in the ledger.
type Training struct {
	ID               string
	Name             string
	TraineeUsername  string
	TrainerUsername  string
	TrainerFirstName string
	TrainerLastName  string
	TrainerActive    bool
	Date             time.Time
	DurationMinutes  int
	UpdatedAt        time.Time
}

// Ledger is the read-only view of the training ledger consumed by the sync
// engine.
type Ledger interface {
	// ListAll returns every training, used by the full resync.
	ListAll(ctx context.Context) ([]Training, error)
	// ListChangedSince returns trainings updated after the given moment,
	// used by incremental catch-up runs.
	ListChangedSince(ctx context.Context, since time.Time) ([]Training, error)
}
