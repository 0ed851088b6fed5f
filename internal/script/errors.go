package script

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyExists  = errors.New("script already registered")
	ErrNotFound       = errors.New("script not registered")
	ErrAlreadyRunning = errors.New("script already running")
	ErrTaskNameInUse  = errors.New("task name bound to another script")
	ErrEmptyTaskName  = errors.New("task name must not be empty")
	ErrInvalid        = errors.New("invalid script")
)

// ValidationError reports why a path cannot be managed as a script.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid script %s: %s", e.Path, e.Reason)
}

// Is lets errors.Is(err, ErrInvalid) match any ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }
