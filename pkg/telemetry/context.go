package telemetry

import (
	"context"
	"errors"
)

// Telemetry bundles the logger, tracer and metrics of one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// NewNopTelemetry returns telemetry that records nothing. Used by tests and
// by components constructed without an explicit telemetry bundle.
func NewNopTelemetry() *Telemetry {
	tracer, _ := NewTracer(TracingConfig{Exporter: "none"}, "bootstrap", "test")
	metrics, _ := NewMetrics(MetricsConfig{})
	return &Telemetry{
		Logger:  NewNopLogger(),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  DefaultConfig(),
	}
}

// Shutdown flushes metrics to their textfile, stops the tracer and closes
// the durable log. All steps run; their errors are joined.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Metrics.WriteTextfile(); err != nil {
		errs = append(errs, err)
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
