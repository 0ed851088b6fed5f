package manager

import (
	"context"
	"log/slog"
	"sync"

	"github.com/loykin/tuc/internal/autostart"
	"github.com/loykin/tuc/internal/lifecycle"
	"github.com/loykin/tuc/internal/script"
	"github.com/loykin/tuc/internal/store"
)

// Manager owns the process-level state around the lifecycle controller:
// the persisted script list, the autostart flag and shutdown behaviour.
type Manager struct {
	mu        sync.Mutex
	ctl       *lifecycle.Controller
	st        store.ConfigStore
	registrar autostart.Registrar
	autostart bool
	log       *slog.Logger
}

func NewManager(ctl *lifecycle.Controller, st store.ConfigStore, registrar autostart.Registrar, lg *slog.Logger) *Manager {
	if lg == nil {
		lg = slog.Default()
	}
	if registrar == nil {
		registrar = &autostart.Noop{}
	}
	return &Manager{
		ctl:       ctl,
		st:        st,
		registrar: registrar,
		log:       lg.With("component", "manager"),
	}
}

func (m *Manager) Controller() *lifecycle.Controller { return m.ctl }

// Scripts returns the registered scripts in insertion order.
func (m *Manager) Scripts() []script.Entry { return m.ctl.Registry().List() }

func (m *Manager) Autostart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autostart
}

// Boot restores persisted scripts and, when autostart is on, starts all of
// them once. It returns the start results, or nil when autostart is off.
func (m *Manager) Boot(ctx context.Context) []lifecycle.Result {
	snap, err := m.st.Load()
	if err != nil {
		if store.IsNotExist(err) {
			m.log.Info("no saved configuration, starting empty", slog.Any("error", err))
		} else {
			m.log.Warn("saved configuration unreadable, using defaults", slog.Any("error", err))
		}
	}
	restored := m.ctl.Restore(ctx, snap.Scripts)
	m.log.Info("scripts restored", slog.Int("restored", len(restored)), slog.Int("persisted", len(snap.Scripts)))

	m.mu.Lock()
	m.autostart = snap.Autostart
	m.mu.Unlock()

	if !snap.Autostart {
		return nil
	}
	res := m.ctl.StartAll(ctx)
	m.logResults("autostart run", res)
	return res
}

// Add validates and registers path, then persists the list.
func (m *Manager) Add(ctx context.Context, path string) (script.Entry, error) {
	e, err := m.ctl.Add(ctx, path)
	if err != nil {
		return script.Entry{}, err
	}
	m.save()
	return e, nil
}

// Remove unregisters an idle script, then persists the list.
func (m *Manager) Remove(ctx context.Context, path string) error {
	if err := m.ctl.Remove(ctx, path); err != nil {
		return err
	}
	m.save()
	return nil
}

// SetAutostart registers or unregisters logon autostart and persists the flag.
// The flag is unchanged when the registrar fails.
func (m *Manager) SetAutostart(ctx context.Context, on bool) error {
	var err error
	if on {
		err = m.registrar.Enable(ctx)
	} else {
		err = m.registrar.Disable(ctx)
	}
	if err != nil {
		m.log.Error("autostart change failed", slog.Bool("enabled", on), slog.Any("error", err))
		return err
	}
	m.mu.Lock()
	m.autostart = on
	m.mu.Unlock()
	m.save()
	return nil
}

// Shutdown stops every running script. Failures are logged only.
func (m *Manager) Shutdown(ctx context.Context) []lifecycle.Result {
	res := m.ctl.StopAll(ctx)
	m.logResults("shutdown stop", res)
	return res
}

func (m *Manager) save() {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := store.Snapshot{Autostart: m.autostart, Scripts: m.ctl.Registry().Paths()}
	if err := m.st.Save(snap); err != nil {
		m.log.Error("saving configuration failed", slog.Any("error", err))
	}
}

func (m *Manager) logResults(op string, res []lifecycle.Result) {
	failed := 0
	for _, r := range res {
		if r.Outcome == lifecycle.OutcomeFailed {
			failed++
			m.log.Warn(op+" failed", slog.String("script", r.Path), slog.String("error", r.Error))
		}
	}
	m.log.Info(op+" finished", slog.Int("scripts", len(res)), slog.Int("failed", failed))
}
