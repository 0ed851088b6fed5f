package lifecycle

import (
	"errors"

	"github.com/loykin/tuc/internal/scheduler"
	"github.com/loykin/tuc/internal/script"
)

var (
	ErrNotRunning = errors.New("script not running")
	ErrNoTask     = errors.New("script has no task")
)

// Outcome classifies the result of a lifecycle operation.
type Outcome string

const (
	OutcomeStarted        Outcome = "started"
	OutcomeStopped        Outcome = "stopped"
	OutcomeAlreadyRunning Outcome = "already_running"
	OutcomeNotRunning     Outcome = "not_running"
	OutcomeNoTask         Outcome = "no_task"
	OutcomeAdded          Outcome = "added"
	OutcomeRemoved        Outcome = "removed"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeFailed         Outcome = "failed"
)

// Result is the per-script outcome of a bulk operation.
type Result struct {
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	TaskName string  `json:"task_name,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Stage    string  `json:"stage,omitempty"`
	ExitCode int     `json:"exit_code,omitempty"`
	Error    string  `json:"error,omitempty"`
	Err      error   `json:"-"`
}

// IsNotice reports whether err is an idempotency signal rather than a failure.
func IsNotice(err error) bool {
	return errors.Is(err, script.ErrAlreadyRunning) ||
		errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrNoTask)
}

// OutcomeOf maps an operation error to its Outcome; ok is used when err is nil.
func OutcomeOf(err error, ok Outcome) Outcome {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, script.ErrAlreadyRunning):
		return OutcomeAlreadyRunning
	case errors.Is(err, ErrNotRunning):
		return OutcomeNotRunning
	case errors.Is(err, ErrNoTask):
		return OutcomeNoTask
	case errors.Is(err, script.ErrInvalid):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}

// ResultFor builds the Result of an operation on e; ok is the outcome on success.
func ResultFor(e script.Entry, err error, ok Outcome) Result {
	r := Result{
		Path:     e.Path,
		Name:     e.Name(),
		TaskName: e.TaskName,
		Outcome:  OutcomeOf(err, ok),
		Err:      err,
	}
	if err != nil {
		r.Error = err.Error()
	}
	var se *scheduler.Error
	if errors.As(err, &se) {
		r.Stage = string(se.Stage)
		r.ExitCode = se.ExitCode
	}
	return r
}
