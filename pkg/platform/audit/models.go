package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names what happened to a simulation request.
type Action string

const (
	ActionSimulationSucceeded Action = "simulation_succeeded"
	ActionSimulationRejected  Action = "simulation_rejected"
	ActionSimulationFailed    Action = "simulation_failed"
	ActionSimulationInvalid   Action = "simulation_invalid"
)

// Event is one audit record. Keep it transport-agnostic so stores can differ.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	UserID    string
	Action    Action
	// Reason is the failure reason; empty on success.
	Reason string
	// ProcessorStatus is the processor's HTTP status, zero when it never answered.
	ProcessorStatus int
	RequestID       string
	ClientIP        string
	// Caller is the unverified bearer subject, when one was presented.
	Caller string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID string) ([]Event, error)
}

// Normalize fills the identifier and timestamp when the producer left them empty.
func Normalize(event Event, now time.Time) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	return event
}
