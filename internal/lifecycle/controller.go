// Package lifecycle coordinates the script registry with the OS task scheduler.
// Every trigger (HTTP, CLI, boot-time autostart) goes through a Controller, which
// is the only component that changes a script's Idle/Running state.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loykin/tuc/internal/history"
	"github.com/loykin/tuc/internal/metrics"
	"github.com/loykin/tuc/internal/scheduler"
	"github.com/loykin/tuc/internal/script"
)

// Options configures a Controller. Zero values fall back to defaults.
type Options struct {
	TaskPrefix  string
	StartOffset time.Duration
	Validator   script.Validator
	Notifier    Notifier
	Sink        history.Sink
	Logger      *slog.Logger
	Clock       func() time.Time
	// Reconcile probes the scheduler on Restore and marks scripts whose task
	// still exists as Running.
	Reconcile bool
}

// Controller drives scripts through Idle -> Running -> Idle.
type Controller struct {
	reg   *script.Registry
	sched scheduler.Scheduler
	opts  Options
	log   *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(reg *script.Registry, sched scheduler.Scheduler, opts Options) *Controller {
	if opts.TaskPrefix == "" {
		opts.TaskPrefix = script.DefaultTaskPrefix
	}
	if opts.StartOffset <= 0 {
		opts.StartOffset = scheduler.DefaultOffset
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: lg}
	}
	return &Controller{
		reg:   reg,
		sched: sched,
		opts:  opts,
		log:   lg.With("component", "lifecycle"),
		locks: make(map[string]*sync.Mutex),
	}
}

func (c *Controller) Registry() *script.Registry { return c.reg }

// TaskName returns the scheduler task name used for path.
func (c *Controller) TaskName(path string) string {
	return script.TaskName(c.opts.TaskPrefix, path)
}

// lock serialises operations per task name. Scripts that normalise to the same
// task name share a lock, so a collision check and the create that follows it
// cannot interleave with another start of the same name. The key is the
// case-folded task name of the cleaned path.
func (c *Controller) lock(path string) func() {
	name := strings.ToLower(c.TaskName(filepath.Clean(path)))
	c.locksMu.Lock()
	mu, ok := c.locks[name]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[name] = mu
	}
	c.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// Start launches path as a scheduled task. It returns script.ErrAlreadyRunning
// without touching the scheduler when the script is already running.
func (c *Controller) Start(ctx context.Context, path string) error {
	unlock := c.lock(path)
	defer unlock()

	e, err := c.reg.Find(path)
	if err != nil {
		return err
	}
	if e.Running() {
		c.notify(ctx, OutcomeAlreadyRunning, "Already Running", e.Name()+" is already running")
		return script.ErrAlreadyRunning
	}

	name := c.TaskName(e.Path)
	if holder, ok := c.reg.Holder(name); ok {
		err := fmt.Errorf("%w: %s is held by %s", script.ErrTaskNameInUse, name, holder)
		c.notify(ctx, OutcomeFailed, "Start Failed", e.Name()+": "+err.Error())
		return err
	}

	begin := time.Now()
	err = c.sched.CreateAndRun(ctx, name, e.Path, c.opts.Clock().Add(c.opts.StartOffset))
	metrics.ObserveOperation("start", time.Since(begin).Seconds())
	if err != nil {
		c.schedulerFailed(ctx, e, name, err, history.EventStartFailed, "Start Failed")
		return err
	}
	if err := c.reg.MarkRunning(e.Path, name); err != nil {
		// Only reachable if the registry was changed outside the controller.
		c.log.Error("task started but entry could not be marked running",
			slog.String("script", e.Path), slog.String("task", name), slog.Any("error", err))
		return err
	}
	c.refreshGauges()
	metrics.IncStart(e.Name())
	c.record(ctx, history.Event{Type: history.EventStarted, Script: e.Path, TaskName: name})
	c.log.Info("script started", slog.String("script", e.Path), slog.String("task", name))
	c.notify(ctx, OutcomeStarted, "Success", e.Name()+" started")
	return nil
}

// Stop ends the task bound to path and removes its definition.
// An entry whose End call fails stays Running with the same task name.
func (c *Controller) Stop(ctx context.Context, path string) error {
	unlock := c.lock(path)
	defer unlock()

	e, err := c.reg.Find(path)
	if err != nil {
		return err
	}
	if !e.Running() {
		c.notify(ctx, OutcomeNotRunning, "Not Running", e.Name()+" is not running")
		return ErrNotRunning
	}
	if e.TaskName == "" {
		c.notify(ctx, OutcomeNoTask, "No Task", e.Name()+" has no task to stop")
		return ErrNoTask
	}

	begin := time.Now()
	err = c.sched.End(ctx, e.TaskName)
	metrics.ObserveOperation("stop", time.Since(begin).Seconds())
	if err != nil {
		c.schedulerFailed(ctx, e, e.TaskName, err, history.EventStopFailed, "Stop Failed")
		return err
	}
	if err := c.sched.Delete(ctx, e.TaskName); err != nil {
		c.log.Warn("task definition not deleted",
			slog.String("script", e.Path), slog.String("task", e.TaskName), slog.Any("error", err))
	}
	if err := c.reg.MarkIdle(e.Path); err != nil {
		return err
	}
	c.refreshGauges()
	metrics.IncStop(e.Name())
	c.record(ctx, history.Event{Type: history.EventStopped, Script: e.Path, TaskName: e.TaskName})
	c.log.Info("script stopped", slog.String("script", e.Path), slog.String("task", e.TaskName))
	c.notify(ctx, OutcomeStopped, "Stopped", e.Name()+" stopped")
	return nil
}

// StartAll starts every registered script in order. Each start is independent.
func (c *Controller) StartAll(ctx context.Context) []Result {
	entries := c.reg.List()
	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		err := c.Start(ctx, e.Path)
		out = append(out, ResultFor(c.snapshot(e), err, OutcomeStarted))
	}
	return out
}

// StopAll stops every running script in order. Idle scripts are reported as
// not running without a notice.
func (c *Controller) StopAll(ctx context.Context) []Result {
	entries := c.reg.List()
	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		if !e.Running() {
			out = append(out, ResultFor(e, ErrNotRunning, OutcomeStopped))
			continue
		}
		err := c.Stop(ctx, e.Path)
		out = append(out, ResultFor(c.snapshot(e), err, OutcomeStopped))
	}
	return out
}

// Add validates path and registers it as an Idle script.
func (c *Controller) Add(ctx context.Context, path string) (script.Entry, error) {
	abs, err := c.opts.Validator.Validate(path)
	if err != nil {
		c.notify(ctx, OutcomeInvalid, "Invalid File", err.Error())
		return script.Entry{}, err
	}
	e, err := c.reg.Add(abs)
	if err != nil {
		if errors.Is(err, script.ErrAlreadyExists) {
			c.notify(ctx, OutcomeFailed, "Already Added", script.BaseName(abs)+" is already registered")
		}
		return script.Entry{}, err
	}
	c.refreshGauges()
	c.record(ctx, history.Event{Type: history.EventAdded, Script: e.Path})
	c.log.Info("script added", slog.String("script", e.Path))
	c.notify(ctx, OutcomeAdded, "Script Added", e.Name())
	return e, nil
}

// Remove unregisters an Idle script.
func (c *Controller) Remove(ctx context.Context, path string) error {
	unlock := c.lock(path)
	defer unlock()

	e, err := c.reg.Find(path)
	if err != nil {
		return err
	}
	if err := c.reg.Remove(e.Path); err != nil {
		return err
	}
	c.refreshGauges()
	c.record(ctx, history.Event{Type: history.EventRemoved, Script: e.Path})
	c.log.Info("script removed", slog.String("script", e.Path))
	c.notify(ctx, OutcomeRemoved, "Script Removed", e.Name())
	return nil
}

// Restore registers persisted paths, skipping any that are invalid, missing or
// duplicated. Relative order is preserved.
func (c *Controller) Restore(ctx context.Context, paths []string) []script.Entry {
	out := make([]script.Entry, 0, len(paths))
	for _, p := range paths {
		abs, err := c.opts.Validator.Validate(p)
		if err != nil {
			c.log.Debug("skipping persisted script", slog.String("script", p), slog.Any("error", err))
			continue
		}
		e, err := c.reg.Add(abs)
		if err != nil {
			c.log.Debug("skipping persisted script", slog.String("script", abs), slog.Any("error", err))
			continue
		}
		if c.opts.Reconcile {
			e = c.reconcile(ctx, e)
		}
		out = append(out, e)
	}
	c.refreshGauges()
	return out
}

func (c *Controller) reconcile(ctx context.Context, e script.Entry) script.Entry {
	name := c.TaskName(e.Path)
	ok, err := c.sched.Exists(ctx, name)
	if err != nil {
		c.log.Warn("task lookup failed", slog.String("script", e.Path), slog.String("task", name), slog.Any("error", err))
		return e
	}
	if !ok {
		return e
	}
	if err := c.reg.MarkRunning(e.Path, name); err != nil {
		c.log.Warn("existing task not adopted", slog.String("script", e.Path), slog.String("task", name), slog.Any("error", err))
		return e
	}
	c.log.Info("adopted existing task", slog.String("script", e.Path), slog.String("task", name))
	return c.snapshot(e)
}

func (c *Controller) snapshot(e script.Entry) script.Entry {
	if cur, err := c.reg.Find(e.Path); err == nil {
		return cur
	}
	return e
}

func (c *Controller) schedulerFailed(ctx context.Context, e script.Entry, task string, err error, typ history.EventType, title string) {
	evt := history.Event{Type: typ, Script: e.Path, TaskName: task, Error: err.Error()}
	var se *scheduler.Error
	if errors.As(err, &se) {
		evt.Stage = string(se.Stage)
		evt.ExitCode = se.ExitCode
		metrics.IncSchedulerFailure(e.Name(), string(se.Stage))
	}
	c.log.Error(title, slog.String("script", e.Path), slog.String("task", task), slog.Any("error", err))
	c.record(ctx, evt)
	c.notify(ctx, OutcomeFailed, title, e.Name()+": "+err.Error())
}

func (c *Controller) notify(ctx context.Context, o Outcome, title, msg string) {
	metrics.IncNotice(string(o))
	c.opts.Notifier.Notify(ctx, Notice{Title: title, Message: msg, Outcome: o, At: c.opts.Clock()})
}

func (c *Controller) record(ctx context.Context, e history.Event) {
	if c.opts.Sink == nil {
		return
	}
	e.OccurredAt = c.opts.Clock().UTC()
	if err := c.opts.Sink.Send(ctx, e); err != nil {
		c.log.Warn("history sink failed", slog.String("event", string(e.Type)), slog.Any("error", err))
	}
}

func (c *Controller) refreshGauges() {
	entries := c.reg.List()
	running := 0
	for _, e := range entries {
		if e.Running() {
			running++
		}
	}
	metrics.SetRunningScripts(running)
	metrics.SetRegisteredScripts(len(entries))
}
