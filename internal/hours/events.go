// Package hours talks to the downstream trainer-hours service, which keeps a
// derived monthly-workload read model of the training ledger. Events travel
// over a message queue; the clear-all step and synchronous queries use a
// direct HTTP call. Both paths carry the transaction id across the process
// boundary.
package hours

import (
	"context"
	"time"

	"github.com/peakfit/gymcore/internal/training"
)

// Action tells the downstream whether a training adds to or subtracts from
// the trainer's monthly hours.
type Action string

const (
	ActionAdd    Action = "ADD"
	ActionDelete Action = "DELETE"
)

// EventType discriminates the queue envelope.
type EventType string

const (
	EventUpdate   EventType = "UPDATE"
	EventClearAll EventType = "CLEAR_ALL"
)

// TrainingUpdate is the per-training payload forwarded downstream.
type TrainingUpdate struct {
	TrainerUsername  string    `json:"trainerUsername"`
	TrainerFirstName string    `json:"trainerFirstName"`
	TrainerLastName  string    `json:"trainerLastName"`
	TrainerActive    bool      `json:"trainerActive"`
	Date             time.Time `json:"date"`
	DurationMinutes  int       `json:"durationMinutes"`
	Action           Action    `json:"action"`
}

// Event is the queue envelope. Update is nil for CLEAR_ALL.
type Event struct {
	TransactionID string          `json:"transactionId"`
	Type          EventType       `json:"eventType"`
	Update        *TrainingUpdate `json:"trainingUpdate,omitempty"`
}

// UpdateFrom builds the downstream payload for one ledger entry.
func UpdateFrom(t training.Training, action Action) TrainingUpdate {
	return TrainingUpdate{
		TrainerUsername:  t.TrainerUsername,
		TrainerFirstName: t.TrainerFirstName,
		TrainerLastName:  t.TrainerLastName,
		TrainerActive:    t.TrainerActive,
		Date:             t.Date,
		DurationMinutes:  t.DurationMinutes,
		Action:           action,
	}
}

// Publisher sends events to the trainer-hours queue with at-least-once
// delivery semantics provided by the broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
