package engine

import (
	"context"
	"time"
)

// StateStore is the durable record of completed phases.
type StateStore interface {
	// IsComplete reports whether phase is recorded as complete.
	IsComplete(phase string) bool

	// MarkComplete records phase as complete and persists the whole mapping.
	MarkComplete(phase string) error
}

// Journal records run history. Implementations must tolerate being called
// after a failed StartRun; the orchestrator only logs journal errors.
type Journal interface {
	// StartRun records the start of a run.
	StartRun(ctx context.Context, run RunRecord) error

	// RecordPhase records a phase transition.
	RecordPhase(ctx context.Context, event PhaseEvent) error

	// FinishRun records the terminal status of a run.
	FinishRun(ctx context.Context, runID string, status RunStatus, failedPhase string, finishedAt time.Time) error
}

// RunRecord is one row of run history.
type RunRecord struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	Status      RunStatus  `json:"status"`
	FailedPhase string     `json:"failed_phase,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// PhaseEvent is one phase transition within a run.
type PhaseEvent struct {
	RunID    string        `json:"run_id"`
	Phase    string        `json:"phase"`
	Status   PhaseStatus   `json:"status"`
	Resumed  bool          `json:"resumed"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}
