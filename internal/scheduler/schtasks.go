package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Defaults for the schtasks backend.
const (
	DefaultBinary = "schtasks"
	DefaultRunAs  = "SYSTEM"
	DefaultOffset = time.Minute
)

// timeLayout is the /ST precision schtasks accepts.
const timeLayout = "15:04"

// markers schtasks prints when /ST lies in the past
var elapsedMarkers = []string{"earlier than current time", "earlier than the current time", "already passed"}

// SchtasksConfig configures the schtasks backend. Zero values fall back to defaults.
type SchtasksConfig struct {
	Binary string
	RunAs  string
	// Offset is added to the current time when the create stage is retried.
	Offset time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// Schtasks implements Scheduler on top of the Windows schtasks utility.
type Schtasks struct {
	runner Runner
	binary string
	runAs  string
	offset time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewSchtasks(r Runner, cfg SchtasksConfig) *Schtasks {
	s := &Schtasks{
		runner: r,
		binary: cfg.Binary,
		runAs:  cfg.RunAs,
		offset: cfg.Offset,
		now:    cfg.Now,
		log:    cfg.Logger,
	}
	if s.runner == nil {
		s.runner = ExecRunner{}
	}
	if s.binary == "" {
		s.binary = DefaultBinary
	}
	if s.runAs == "" {
		s.runAs = DefaultRunAs
	}
	if s.offset <= 0 {
		s.offset = DefaultOffset
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// CreateAndRun creates the one-shot task and runs it now. If create fails
// because the requested slot has already elapsed, it is retried once with a
// fresh slot. A failed run leaves the task registered; Stop/Delete clear it.
func (s *Schtasks) CreateAndRun(ctx context.Context, taskName, execPath string, when time.Time) error {
	err := s.create(ctx, taskName, execPath, when)
	if err != nil && s.slotElapsed(err, when) {
		fresh := s.now().Add(s.offset)
		s.log.Warn("task start time elapsed, retrying create",
			slog.String("task", taskName),
			slog.String("old_slot", when.Local().Format(timeLayout)),
			slog.String("new_slot", fresh.Local().Format(timeLayout)))
		err = s.create(ctx, taskName, execPath, fresh)
	}
	if err != nil {
		return err
	}
	return s.call(ctx, StageRun, "/run", "/tn", taskName)
}

func (s *Schtasks) create(ctx context.Context, taskName, execPath string, when time.Time) error {
	return s.call(ctx, StageCreate,
		"/create",
		"/tn", taskName,
		"/tr", execPath,
		"/sc", "once",
		"/st", when.Local().Format(timeLayout),
		"/ru", s.runAs,
		"/rl", "HIGHEST",
		"/f")
}

func (s *Schtasks) End(ctx context.Context, taskName string) error {
	return s.call(ctx, StageEnd, "/end", "/tn", taskName)
}

func (s *Schtasks) Delete(ctx context.Context, taskName string) error {
	return s.call(ctx, StageDelete, "/delete", "/tn", taskName, "/f")
}

// Exists queries the task. Exit code 1 means the task is not registered.
func (s *Schtasks) Exists(ctx context.Context, taskName string) (bool, error) {
	err := s.call(ctx, StageQuery, "/query", "/tn", taskName)
	if err == nil {
		return true, nil
	}
	var se *Error
	if errors.As(err, &se) && !se.TimedOut && se.Err == nil && se.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

func (s *Schtasks) call(ctx context.Context, stage Stage, args ...string) error {
	out, err := s.runner.Run(ctx, s.binary, args...)
	s.log.Debug("scheduler command finished",
		slog.String("stage", string(stage)),
		slog.Int("exit_code", out.ExitCode))
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return &Error{Stage: stage, ExitCode: -1, TimedOut: true, Output: out.Text}
		}
		return &Error{Stage: stage, ExitCode: -1, Output: out.Text, Err: err}
	}
	if out.ExitCode != 0 {
		return &Error{Stage: stage, ExitCode: out.ExitCode, Output: strings.TrimSpace(out.Text)}
	}
	return nil
}

// slotElapsed reports whether a create failure is explained by the start
// time having passed while the command ran.
func (s *Schtasks) slotElapsed(err error, when time.Time) bool {
	var se *Error
	if !errors.As(err, &se) || se.Stage != StageCreate || se.TimedOut || se.Err != nil {
		return false
	}
	if !s.now().Truncate(time.Minute).Before(when.Truncate(time.Minute)) {
		return true
	}
	lower := strings.ToLower(se.Output)
	for _, m := range elapsedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
