// Package telemetry provides the logging, tracing and metrics used by the
// provisioning engine and the rollback procedure.
//
// # Logging
//
// Logger dual-writes every record to a durable, append-only log file and to
// the interactive terminal. Both sinks share one line format:
//
//	[2024-06-01 12:00:00] [INFO] Phase prerequisites complete
//
// Structured fields (run_id, phase, component, ...) only appear on the
// terminal, and only when ShowFields is enabled.
//
// # Tracing
//
// Tracer emits one span per run, phase and gateway action. Exporters: none
// (default), stdout, otlp.
//
// # Metrics
//
// Metrics counts runs, phases, gateway actions, backups and rollback steps.
// When MetricsConfig.TextfilePath is set the registry is written in the
// node-exporter textfile format on Shutdown.
package telemetry
