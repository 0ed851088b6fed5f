// Package store persists the script list and autostart flag between runs.
package store

import (
	"errors"
	"fmt"
	"io/fs"
)

// DefaultFile is the config file name used when none is configured.
const DefaultFile = "config.properties"

// Snapshot is everything that survives a restart.
type Snapshot struct {
	Autostart bool
	Scripts   []string
}

// ConfigStore loads and saves the persisted Snapshot.
type ConfigStore interface {
	// Load never fails hard: on a missing or unreadable file it returns the
	// default Snapshot together with a *PersistenceError for logging.
	Load() (Snapshot, error)
	// Save overwrites the whole file.
	Save(s Snapshot) error
}

// PersistenceError reports a failed read or write of the config file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsNotExist reports whether err is a load of a config file that does not exist yet.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
