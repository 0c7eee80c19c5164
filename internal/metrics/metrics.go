// Package metrics holds the Prometheus instrumentation for the engine.
// All metrics use the clitutor namespace. A nil *Metrics is valid and
// records nothing, so components can be built without a registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded by the executor.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeBlocked  = "blocked"
	OutcomeTimedOut = "timed_out"
	OutcomeError    = "error"
)

// Metrics holds the engine's collectors.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	BlockedTotal      *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	CommandsCompleted *prometheus.CounterVec
	SandboxOps        *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
// Returns nil if reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clitutor",
			Subsystem: "executor",
			Name:      "runs_total",
			Help:      "Headless command runs by executor kind and outcome.",
		}, []string{"kind", "outcome"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clitutor",
			Subsystem: "executor",
			Name:      "run_duration_seconds",
			Help:      "Headless command run duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),

		BlockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clitutor",
			Subsystem: "safety",
			Name:      "blocked_total",
			Help:      "Commands refused by the safety filter, by layer.",
		}, []string{"layer"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clitutor",
			Subsystem: "pty",
			Name:      "sessions_active",
			Help:      "Number of running PTY shell sessions.",
		}),

		CommandsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clitutor",
			Subsystem: "surface",
			Name:      "commands_completed_total",
			Help:      "Interactive commands completed, by exit status class.",
		}, []string{"status"}),

		SandboxOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clitutor",
			Subsystem: "sandbox",
			Name:      "operations_total",
			Help:      "Sandbox lifecycle operations by kind, operation and result.",
		}, []string{"kind", "op", "result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.BlockedTotal,
		m.SessionsActive,
		m.CommandsCompleted,
		m.SandboxOps,
	)

	return m
}

// ObserveRun records one headless run.
func (m *Metrics) ObserveRun(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(kind, outcome).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveBlocked records a safety refusal.
func (m *Metrics) ObserveBlocked(layer string) {
	if m == nil {
		return
	}
	m.BlockedTotal.WithLabelValues(layer).Inc()
}

// SessionStarted increments the active PTY session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionStopped decrements the active PTY session gauge.
func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// ObserveCompleted records an interactive command completion.
func (m *Metrics) ObserveCompleted(exitCode int) {
	if m == nil {
		return
	}
	status := "ok"
	if exitCode != 0 {
		status = "nonzero"
	}
	m.CommandsCompleted.WithLabelValues(status).Inc()
}

// ObserveSandbox records a sandbox lifecycle operation.
func (m *Metrics) ObserveSandbox(kind, op string, err error) {
	if m == nil {
		return
	}
	m.SandboxOps.WithLabelValues(kind, op, strconv.FormatBool(err == nil)).Inc()
}
