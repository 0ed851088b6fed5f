// Package autostart registers the application to launch at user logon.
package autostart

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/loykin/tuc/internal/scheduler"
)

const (
	DefaultBinary = "reg"
	DefaultRunKey = `HKCU\Software\Microsoft\Windows\CurrentVersion\Run`
	DefaultName   = "TryUCmd"
)

// Registrar toggles logon autostart. Both operations are idempotent.
type Registrar interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Enabled(ctx context.Context) (bool, error)
}

// Error reports a failed registry command.
type Error struct {
	Op       string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("autostart %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("autostart %s: exit code %d: %s", e.Op, e.ExitCode, strings.TrimSpace(e.Output))
}

func (e *Error) Unwrap() error { return e.Err }

// RegistryRunKey stores the executable under the per-user Run key using reg.exe.
type RegistryRunKey struct {
	Runner     scheduler.Runner
	Binary     string
	Key        string
	Name       string
	Executable string
	Logger     *slog.Logger
}

func (r *RegistryRunKey) binary() string {
	if r.Binary == "" {
		return DefaultBinary
	}
	return r.Binary
}

func (r *RegistryRunKey) key() string {
	if r.Key == "" {
		return DefaultRunKey
	}
	return r.Key
}

func (r *RegistryRunKey) name() string {
	if r.Name == "" {
		return DefaultName
	}
	return r.Name
}

func (r *RegistryRunKey) runner() scheduler.Runner {
	if r.Runner == nil {
		return scheduler.ExecRunner{}
	}
	return r.Runner
}

func (r *RegistryRunKey) executable() (string, error) {
	if r.Executable != "" {
		return r.Executable, nil
	}
	return os.Executable()
}

func (r *RegistryRunKey) Enable(ctx context.Context) error {
	exe, err := r.executable()
	if err != nil {
		return &Error{Op: "enable", ExitCode: -1, Err: err}
	}
	out, err := r.runner().Run(ctx, r.binary(), "add", r.key(), "/v", r.name(), "/t", "REG_SZ", "/d", exe, "/f")
	if err != nil || out.ExitCode != 0 {
		return &Error{Op: "enable", ExitCode: out.ExitCode, Output: out.Text, Err: err}
	}
	if r.Logger != nil {
		r.Logger.Info("autostart enabled", slog.String("key", r.key()), slog.String("executable", exe))
	}
	return nil
}

func (r *RegistryRunKey) Disable(ctx context.Context) error {
	out, err := r.runner().Run(ctx, r.binary(), "delete", r.key(), "/v", r.name(), "/f")
	if err != nil {
		return &Error{Op: "disable", ExitCode: out.ExitCode, Output: out.Text, Err: err}
	}
	if out.ExitCode != 0 && !missingValue(out.Text) {
		return &Error{Op: "disable", ExitCode: out.ExitCode, Output: out.Text}
	}
	if r.Logger != nil {
		r.Logger.Info("autostart disabled", slog.String("key", r.key()))
	}
	return nil
}

// Enabled reports whether the Run value is present.
func (r *RegistryRunKey) Enabled(ctx context.Context) (bool, error) {
	out, err := r.runner().Run(ctx, r.binary(), "query", r.key(), "/v", r.name())
	if err != nil {
		return false, &Error{Op: "query", ExitCode: out.ExitCode, Output: out.Text, Err: err}
	}
	switch out.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, &Error{Op: "query", ExitCode: out.ExitCode, Output: out.Text}
	}
}

func missingValue(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "unable to find") || strings.Contains(t, "cannot find")
}

// Noop is a Registrar that only remembers the flag. It is used on hosts
// without a Windows registry.
type Noop struct {
	mu sync.Mutex
	on bool
}

func (n *Noop) Enable(context.Context) error { return n.set(true) }

func (n *Noop) Disable(context.Context) error { return n.set(false) }

func (n *Noop) Enabled(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.on, nil
}

func (n *Noop) set(on bool) error {
	n.mu.Lock()
	n.on = on
	n.mu.Unlock()
	return nil
}
