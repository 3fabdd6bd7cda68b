package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for a bootstrap process.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig
}

// LoggingConfig configures the dual-sink logger.
type LoggingConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string

	// File is the durable log path. Empty disables the durable sink.
	File string

	// Console enables the interactive sink on stderr.
	Console bool

	// ShowFields renders structured fields on the interactive sink.
	ShowFields bool
}

// TracingConfig configures tracing.
type TracingConfig struct {
	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string

	// Endpoint is the OTLP collector endpoint.
	Endpoint string

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string

	// ExportTimeout bounds each export call.
	ExportTimeout time.Duration
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	Enabled bool

	// Namespace is the metrics namespace prefix.
	Namespace string

	// TextfilePath is where metrics are written at process exit, in the
	// node-exporter textfile format. Empty disables the export.
	TextfilePath string
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "bootstrap",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			Insecure:      true,
			Headers:       make(map[string]string),
			ExportTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "bootstrap",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validExporters := map[string]bool{
		"otlp": true, "stdout": true, "none": true, "": true,
	}
	if !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}

	return nil
}
