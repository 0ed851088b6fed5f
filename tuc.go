package tuc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/tuc/internal/auth"
	"github.com/loykin/tuc/internal/autostart"
	cfg "github.com/loykin/tuc/internal/config"
	"github.com/loykin/tuc/internal/history"
	hfactory "github.com/loykin/tuc/internal/history/factory"
	"github.com/loykin/tuc/internal/lifecycle"
	"github.com/loykin/tuc/internal/manager"
	"github.com/loykin/tuc/internal/metrics"
	"github.com/loykin/tuc/internal/scheduler"
	"github.com/loykin/tuc/internal/script"
	iapi "github.com/loykin/tuc/internal/server"
	"github.com/loykin/tuc/internal/store"
	itls "github.com/loykin/tuc/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
)

// Public facade types

type Entry = script.Entry

type State = script.State

const (
	Idle    = script.Idle
	Running = script.Running
)

type Result = lifecycle.Result

type Outcome = lifecycle.Outcome

const (
	OutcomeStarted        = lifecycle.OutcomeStarted
	OutcomeStopped        = lifecycle.OutcomeStopped
	OutcomeAlreadyRunning = lifecycle.OutcomeAlreadyRunning
	OutcomeNotRunning     = lifecycle.OutcomeNotRunning
	OutcomeNoTask         = lifecycle.OutcomeNoTask
	OutcomeFailed         = lifecycle.OutcomeFailed
)

type Notice = lifecycle.Notice

type Config = cfg.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

// Runner executes the scheduler and registry utilities.
type Runner = scheduler.Runner

// Options override parts of the wiring derived from Config.
type Options struct {
	Logger *slog.Logger
	// Runner replaces the os/exec runner used for schtasks and reg.
	Runner Runner
	// Sinks are added to the sinks configured under [history].
	Sinks []HistorySink
	// Clock replaces time.Now for task start slots.
	Clock func() time.Time
}

// Manager is a fully wired script manager.
type Manager struct {
	inner   *manager.Manager
	feed    *lifecycle.Feed
	closers []io.Closer
}

// New wires registry, scheduler, lifecycle controller, config store, autostart
// registrar and history sinks from c.
func New(c *Config, opts Options) (*Manager, error) {
	if c == nil {
		c = cfg.Default()
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	runner := opts.Runner
	if runner == nil {
		runner = scheduler.ExecRunner{Timeout: c.CommandTimeout}
	}

	m := &Manager{feed: lifecycle.NewFeed(0)}
	sinks := append([]HistorySink(nil), opts.Sinks...)
	if c.History.Enabled {
		for _, dsn := range c.History.DSN {
			s, err := hfactory.NewSinkFromDSN(dsn)
			if err != nil {
				_ = m.Close()
				return nil, fmt.Errorf("history sink %q: %w", dsn, err)
			}
			sinks = append(sinks, s)
			if cl, ok := s.(io.Closer); ok {
				m.closers = append(m.closers, cl)
			}
		}
	}
	var sink history.Sink
	if len(sinks) > 0 {
		sink = history.Multi(sinks)
	}

	sched := scheduler.NewSchtasks(runner, scheduler.SchtasksConfig{
		Binary: c.SchtasksBinary,
		RunAs:  c.RunAs,
		Offset: c.StartOffset,
		Now:    opts.Clock,
		Logger: lg.With("component", "scheduler"),
	})
	ctl := lifecycle.New(script.NewRegistry(), sched, lifecycle.Options{
		TaskPrefix:  c.TaskPrefix,
		StartOffset: c.StartOffset,
		Validator:   script.Validator{Extensions: c.Extensions},
		Notifier:    lifecycle.Notifiers{lifecycle.LogNotifier{Logger: lg}, m.feed},
		Sink:        sink,
		Logger:      lg,
		Clock:       opts.Clock,
		Reconcile:   c.ReconcileOnRestore,
	})

	var registrar autostart.Registrar
	if c.Autostart.Registry == "none" {
		registrar = &autostart.Noop{}
	} else {
		registrar = &autostart.RegistryRunKey{
			Runner:     runner,
			Key:        c.Autostart.Key,
			Name:       c.Autostart.Name,
			Executable: c.Autostart.Executable,
			Logger:     lg.With("component", "autostart"),
		}
	}
	m.inner = manager.NewManager(ctl, store.NewPropertiesStore(c.ScriptsFile), registrar, lg)
	return m, nil
}

func (m *Manager) Boot(ctx context.Context) []Result { return m.inner.Boot(ctx) }
func (m *Manager) Scripts() []Entry                  { return m.inner.Scripts() }
func (m *Manager) Autostart() bool                   { return m.inner.Autostart() }
func (m *Manager) Add(ctx context.Context, path string) (Entry, error) {
	return m.inner.Add(ctx, path)
}
func (m *Manager) Remove(ctx context.Context, path string) error { return m.inner.Remove(ctx, path) }
func (m *Manager) Start(ctx context.Context, path string) error {
	return m.inner.Controller().Start(ctx, path)
}
func (m *Manager) Stop(ctx context.Context, path string) error {
	return m.inner.Controller().Stop(ctx, path)
}
func (m *Manager) StartAll(ctx context.Context) []Result { return m.inner.Controller().StartAll(ctx) }
func (m *Manager) StopAll(ctx context.Context) []Result  { return m.inner.Controller().StopAll(ctx) }
func (m *Manager) SetAutostart(ctx context.Context, on bool) error {
	return m.inner.SetAutostart(ctx, on)
}
func (m *Manager) Notices(limit int) []Notice            { return m.feed.Recent(limit) }
func (m *Manager) Shutdown(ctx context.Context) []Result { return m.inner.Shutdown(ctx) }

// Close releases history sinks.
func (m *Manager) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	m.closers = nil
	return errors.Join(errs...)
}

// IsNotice reports whether err only signals an idempotent no-op
// (already running, not running, no task).
func IsNotice(err error) bool { return lifecycle.IsNotice(err) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Handler returns the gin-powered API handler mounted under basePath, for
// embedding in another server or mux.
func (m *Manager) Handler(basePath string) http.Handler {
	return iapi.NewRouter(m.inner, m.feed, basePath).Handler()
}

// NewHTTPServer starts the API server described by c.Server: listen address,
// base path, TLS and bearer-token auth.
func NewHTTPServer(c *Config, m *Manager) (*http.Server, error) {
	tlsCfg, err := itls.Setup(c.Server.TLS)
	if err != nil {
		return nil, fmt.Errorf("server tls: %w", err)
	}
	router := iapi.NewRouter(m.inner, m.feed, c.Server.BasePath)
	if c.Server.Auth.Enabled {
		svc, err := auth.NewService(c.Server.Auth)
		if err != nil {
			return nil, fmt.Errorf("server auth: %w", err)
		}
		router.Use(auth.NewMiddleware(svc).GinAuth())
	}
	return iapi.NewServer(c.Server.Listen, router.Handler(), tlsCfg)
}

type Token = auth.Token

// IssueToken signs an API bearer token with the [server.auth] secret.
// ttl <= 0 uses server.auth.token_ttl.
func IssueToken(c *Config, subject string, ttl time.Duration) (*Token, error) {
	svc, err := auth.NewService(c.Server.Auth)
	if err != nil {
		return nil, err
	}
	return svc.Issue(subject, ttl)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer returns an http.Server exposing /metrics for the default registry.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
