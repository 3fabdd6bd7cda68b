package engine

import (
	"fmt"
	"time"
)

// RunStatus represents the overall status of a provisioning run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every phase completed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates a phase failed and the run was aborted.
	RunStatusFailed RunStatus = "failed"

	// RunStatusInterrupted indicates the run was cancelled by a signal.
	RunStatusInterrupted RunStatus = "interrupted"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusInterrupted
}

// RunStatusFor maps the error a run ended with to its status.
func RunStatusFor(err error) RunStatus {
	switch {
	case err == nil:
		return RunStatusSucceeded
	case IsInterrupted(err):
		return RunStatusInterrupted
	default:
		return RunStatusFailed
	}
}

// PhaseStatus is the state of one phase within a run.
//
//	PENDING -> RUNNING -> COMPLETE | FAILED
//	PENDING -> COMPLETE            (already complete from a prior run)
type PhaseStatus string

const (
	PhaseStatusPending  PhaseStatus = "PENDING"
	PhaseStatusRunning  PhaseStatus = "RUNNING"
	PhaseStatusComplete PhaseStatus = "COMPLETE"
	PhaseStatusFailed   PhaseStatus = "FAILED"
)

// Validate checks if the phase status is valid.
func (s PhaseStatus) Validate() error {
	switch s {
	case PhaseStatusPending, PhaseStatusRunning, PhaseStatusComplete, PhaseStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid phase status: %s", s)
	}
}

// PhaseResult is the outcome of one phase in a run.
type PhaseResult struct {
	ID       string        `json:"id"`
	Status   PhaseStatus   `json:"status"`
	Resumed  bool          `json:"resumed"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunResult summarizes a run.
type RunResult struct {
	RunID       string        `json:"run_id"`
	Mode        string        `json:"mode"`
	Status      RunStatus     `json:"status"`
	Phases      []PhaseResult `json:"phases"`
	FailedPhase string        `json:"failed_phase,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Executed returns the IDs of phases whose body ran in this run.
func (r *RunResult) Executed() []string {
	var ids []string
	for _, p := range r.Phases {
		if !p.Resumed && (p.Status == PhaseStatusComplete || p.Status == PhaseStatusFailed) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
