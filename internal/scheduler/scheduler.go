// Package scheduler drives the operating system task scheduler. It knows
// nothing about scripts: callers hand it a task name and an executable path
// and get back nil or an *Error describing which OS call failed.
package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Stage identifies which scheduler call failed.
type Stage string

const (
	StageCreate Stage = "create"
	StageRun    Stage = "run"
	StageEnd    Stage = "end"
	StageDelete Stage = "delete"
	StageQuery  Stage = "query"
)

// Scheduler is the task scheduler boundary used by the lifecycle controller.
type Scheduler interface {
	// CreateAndRun registers a one-shot elevated task at when and triggers it immediately.
	CreateAndRun(ctx context.Context, taskName, execPath string, when time.Time) error
	// End terminates the running instance of the task.
	End(ctx context.Context, taskName string) error
	// Delete removes the task definition.
	Delete(ctx context.Context, taskName string) error
	// Exists reports whether a task definition with this name is registered.
	Exists(ctx context.Context, taskName string) (bool, error)
}

// Error is the outcome of a failed scheduler call.
type Error struct {
	Stage    Stage
	ExitCode int
	TimedOut bool
	Output   string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("scheduler %s: timed out", e.Stage)
	case e.Err != nil:
		return fmt.Sprintf("scheduler %s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("scheduler %s: exit code %d", e.Stage, e.ExitCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }
