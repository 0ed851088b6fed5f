package script

import "errors"

// State is the lifecycle state of a managed script.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its lowercase name (used by JSON responses).
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses the lowercase name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	default:
		return errors.New("unknown script state: " + string(b))
	}
	return nil
}

// Entry is a snapshot of one managed script.
// TaskName is set if and only if State is Running.
type Entry struct {
	Path     string `json:"path"`
	TaskName string `json:"task_name,omitempty"`
	State    State  `json:"state"`
}

// Name returns the script file name without directories.
func (e Entry) Name() string { return BaseName(e.Path) }

// Running reports whether the entry is bound to a running task.
func (e Entry) Running() bool { return e.State == Running }
