package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	taskStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuc",
			Subsystem: "task",
			Name:      "starts_total",
			Help:      "Number of scripts started as scheduled tasks.",
		}, []string{"script"},
	)
	taskStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuc",
			Subsystem: "task",
			Name:      "stops_total",
			Help:      "Number of scheduled tasks ended.",
		}, []string{"script"},
	)
	schedulerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuc",
			Subsystem: "scheduler",
			Name:      "failures_total",
			Help:      "Failed scheduler calls by stage.",
		}, []string{"script", "stage"},
	)
	notices = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuc",
			Subsystem: "task",
			Name:      "notices_total",
			Help:      "Idempotency notices (already running, not running, no task).",
		}, []string{"kind"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tuc",
			Subsystem: "scheduler",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of start and stop operations against the scheduler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"},
	)
	runningScripts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tuc",
			Subsystem: "task",
			Name:      "running_scripts",
			Help:      "Scripts currently bound to a running task.",
		},
	)
	registeredScripts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tuc",
			Subsystem: "registry",
			Name:      "scripts",
			Help:      "Scripts known to the registry.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{taskStarts, taskStops, schedulerFailures, notices, operationDuration, runningScripts, registeredScripts}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(script string) {
	if regOK.Load() {
		taskStarts.WithLabelValues(script).Inc()
	}
}

func IncStop(script string) {
	if regOK.Load() {
		taskStops.WithLabelValues(script).Inc()
	}
}

func IncSchedulerFailure(script, stage string) {
	if regOK.Load() {
		schedulerFailures.WithLabelValues(script, stage).Inc()
	}
}

func IncNotice(kind string) {
	if regOK.Load() {
		notices.WithLabelValues(kind).Inc()
	}
}

func ObserveOperation(op string, seconds float64) {
	if regOK.Load() {
		operationDuration.WithLabelValues(op).Observe(seconds)
	}
}

func SetRunningScripts(n int) {
	if regOK.Load() {
		runningScripts.Set(float64(n))
	}
}

func SetRegisteredScripts(n int) {
	if regOK.Load() {
		registeredScripts.Set(float64(n))
	}
}
