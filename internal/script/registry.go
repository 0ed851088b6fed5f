package script

import (
	"path/filepath"
	"strings"
	"sync"
)

// Registry is the in-memory set of managed scripts keyed by path.
// It is the only place entries are mutated; readers get value snapshots.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

func key(path string) string { return filepath.Clean(path) }

// Add registers path as an Idle entry.
func (r *Registry) Add(path string) (Entry, error) {
	k := key(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[k]; ok {
		return Entry{}, ErrAlreadyExists
	}
	e := &Entry{Path: k, State: Idle}
	r.entries[k] = e
	r.order = append(r.order, k)
	return *e, nil
}

// List returns all entries in insertion order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.entries[k])
	}
	return out
}

// Paths returns the registered paths in insertion order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) Find(path string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key(path)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// Holder returns the path of the entry currently running under taskName.
// Names compare case-insensitively, as they do in the task scheduler.
func (r *Registry) Holder(taskName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.order {
		if e := r.entries[k]; e.State == Running && strings.EqualFold(e.TaskName, taskName) {
			return k, true
		}
	}
	return "", false
}

// MarkRunning binds taskName to the entry. The name must not be held by any other entry.
func (r *Registry) MarkRunning(path, taskName string) error {
	if taskName == "" {
		return ErrEmptyTaskName
	}
	k := key(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[k]
	if !ok {
		return ErrNotFound
	}
	if e.State == Running {
		return ErrAlreadyRunning
	}
	for other, oe := range r.entries {
		if other != k && oe.State == Running && strings.EqualFold(oe.TaskName, taskName) {
			return ErrTaskNameInUse
		}
	}
	e.State = Running
	e.TaskName = taskName
	return nil
}

// MarkIdle returns the entry to Idle and clears its task name.
func (r *Registry) MarkIdle(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key(path)]
	if !ok {
		return ErrNotFound
	}
	e.State = Idle
	e.TaskName = ""
	return nil
}

// Remove deletes an Idle entry. Running entries must be stopped first.
func (r *Registry) Remove(path string) error {
	k := key(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[k]
	if !ok {
		return ErrNotFound
	}
	if e.State == Running {
		return ErrAlreadyRunning
	}
	delete(r.entries, k)
	for i, p := range r.order {
		if p == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
