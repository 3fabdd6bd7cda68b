// Package engine drives the phased provisioning run.
//
// # Phases
//
// A run is a fixed, ordered list of Phase values. The Orchestrator walks the
// list once:
//
//	PENDING -> RUNNING -> COMPLETE | FAILED
//
// A phase already recorded as complete in the StateStore goes straight to
// COMPLETE without its body running. A successful body is persisted before
// the next phase starts; the first failure aborts the run, leaving earlier
// phases complete and later ones untouched, so the next run resumes at the
// failed phase.
//
// With verification enabled, a completed phase whose Verify check reports
// its artifacts missing is run again.
//
// # Errors and exit codes
//
// Failures are *EngineError values classified as precondition, validation,
// phase, interrupted or best-effort. ExitCode maps them to the process
// status:
//
//	0    success
//	1    a phase failed
//	2    precondition or validation failure
//	130  interrupted
//
// # Cleanup
//
// A Finalizer is created once per process. Finish detaches transient
// volumes, removes the work directory, logs the terminal outcome and flushes
// telemetry. It runs its body exactly once no matter how many exit paths
// call it.
package engine
