package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for provisioning and rollback runs.
// A disabled instance is safe to call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Phase metrics
	phasesExecuted *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec

	// Gateway metrics
	actions *prometheus.CounterVec

	// Backup metrics
	backupsTaken prometheus.Counter

	// Rollback metrics
	rollbackSteps *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of provisioning runs by outcome",
			},
			[]string{"mode", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of provisioning runs in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		phasesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phases_total",
				Help:      "Phases evaluated by the orchestrator, by final status",
			},
			[]string{"phase", "status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of phase bodies in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_actions_total",
				Help:      "Actions passed through the execution gateway",
			},
			[]string{"kind", "mode", "result"},
		),
		backupsTaken: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "Files copied into backup snapshots",
			},
		),
		rollbackSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollback_steps_total",
				Help:      "Rollback steps by outcome",
			},
			[]string{"step", "outcome"},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.phasesExecuted,
		m.phaseDuration,
		m.actions,
		m.backupsTaken,
		m.rollbackSteps,
	)

	return m, nil
}

// RecordRunCompleted records a finished run with its outcome and duration.
func (m *Metrics) RecordRunCompleted(mode, outcome string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(mode, outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordPhase records a phase reaching a terminal status.
func (m *Metrics) RecordPhase(phase, status string, duration time.Duration) {
	if m.phasesExecuted == nil {
		return
	}
	m.phasesExecuted.WithLabelValues(phase, status).Inc()
	if duration > 0 {
		m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
	}
}

// RecordAction records one gateway action.
func (m *Metrics) RecordAction(kind, mode, result string) {
	if m.actions == nil {
		return
	}
	m.actions.WithLabelValues(kind, mode, result).Inc()
}

// RecordBackup records one file captured into a snapshot.
func (m *Metrics) RecordBackup() {
	if m.backupsTaken == nil {
		return
	}
	m.backupsTaken.Inc()
}

// RecordRollbackStep records the outcome of one rollback step.
func (m *Metrics) RecordRollbackStep(step, outcome string) {
	if m.rollbackSteps == nil {
		return
	}
	m.rollbackSteps.WithLabelValues(step, outcome).Inc()
}

// Gatherer exposes the underlying registry, nil when disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current metrics to the configured textfile path.
// It is a no-op when metrics or the textfile export are disabled.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
