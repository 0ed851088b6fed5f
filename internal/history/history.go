package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStarted     EventType = "started"
	EventStartFailed EventType = "start_failed"
	EventStopped     EventType = "stopped"
	EventStopFailed  EventType = "stop_failed"
	EventAdded       EventType = "added"
	EventRemoved     EventType = "removed"
)

// Event is one script lifecycle outcome exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Script     string    `json:"script"`
	TaskName   string    `json:"task_name,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	ExitCode   int       `json:"exit_code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
