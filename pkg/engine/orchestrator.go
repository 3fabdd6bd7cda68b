package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/bootstrap/pkg/clock"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Options configures an Orchestrator.
type Options struct {
	// State is consulted to skip completed phases and updated after each
	// successful phase. Required.
	State StateStore

	// Journal records run history. Optional.
	Journal Journal

	// Telemetry provides logging, tracing and metrics. Defaults to no-op.
	Telemetry *telemetry.Telemetry

	// Clock defaults to the real clock.
	Clock clock.Clock

	// RunID defaults to a new UUID.
	RunID string

	// Preview runs phase bodies against a previewing gateway and does not
	// persist completion.
	Preview bool

	// Verify re-runs completed phases whose Verify check reports their
	// artifacts missing.
	Verify bool
}

// Orchestrator drives an ordered list of phases. Phases run strictly in
// order, one at a time; the first failure aborts the run.
type Orchestrator struct {
	phases  []Phase
	state   StateStore
	journal Journal
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
	clock   clock.Clock
	runID   string
	preview bool
	verify  bool
}

// NewOrchestrator creates an orchestrator for phases.
func NewOrchestrator(phases []Phase, opts Options) (*Orchestrator, error) {
	if err := ValidatePhases(phases); err != nil {
		return nil, err
	}
	if opts.State == nil {
		return nil, NewValidationError("state store is required", nil)
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}

	return &Orchestrator{
		phases:  phases,
		state:   opts.State,
		journal: opts.Journal,
		tel:     opts.Telemetry,
		logger:  opts.Telemetry.Logger.NewComponentLogger("orchestrator").WithRunID(opts.RunID),
		clock:   opts.Clock,
		runID:   opts.RunID,
		preview: opts.Preview,
		verify:  opts.Verify,
	}, nil
}

// RunID returns the ID of the run this orchestrator drives.
func (o *Orchestrator) RunID() string {
	return o.runID
}

func (o *Orchestrator) mode() string {
	if o.preview {
		return "preview"
	}
	return "apply"
}

// Plan returns the status each phase would start with, without running
// anything.
func (o *Orchestrator) Plan() []PhaseResult {
	out := make([]PhaseResult, len(o.phases))
	for i, p := range o.phases {
		out[i] = PhaseResult{ID: p.ID, Status: PhaseStatusPending}
		if o.state.IsComplete(p.ID) {
			out[i].Status = PhaseStatusComplete
			out[i].Resumed = true
		}
	}
	return out
}

// Run executes pending phases in order. The returned result is always
// non-nil; the error is an *EngineError naming the failing phase.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:     o.runID,
		Mode:      o.mode(),
		Status:    RunStatusRunning,
		StartedAt: o.clock.Now(),
	}
	for _, p := range o.phases {
		result.Phases = append(result.Phases, PhaseResult{ID: p.ID, Status: PhaseStatusPending})
	}

	ctx, span := o.tel.Tracer.StartRunSpan(ctx, o.runID, result.Mode)
	timer := telemetry.NewTimer()

	o.journalStart(ctx, result)
	o.logger.Infof("Starting %s run of %d phases", result.Mode, len(o.phases))

	err := o.runPhases(ctx, result)

	result.FinishedAt = o.clock.Now()
	result.Status = RunStatusFor(err)
	result.FailedPhase = FailedPhase(err)

	o.tel.Metrics.RecordRunCompleted(result.Mode, string(result.Status), timer.Duration())
	o.journalFinish(result)
	telemetry.EndSpan(span, err)

	return result, err
}

func (o *Orchestrator) runPhases(ctx context.Context, result *RunResult) error {
	for i := range o.phases {
		phase := &o.phases[i]
		pr := &result.Phases[i]

		if err := ctx.Err(); err != nil {
			return NewInterruptedError("run interrupted", err).WithPhase(phase.ID)
		}

		if o.state.IsComplete(phase.ID) {
			if !o.needsRerun(ctx, phase) {
				pr.Status = PhaseStatusComplete
				pr.Resumed = true
				o.logger.WithPhase(phase.ID).Infof("Phase %s already complete, skipping", phase.ID)
				o.tel.Metrics.RecordPhase(phase.ID, "skipped", 0)
				o.journalPhase(ctx, *pr, "")
				continue
			}
			o.logger.WithPhase(phase.ID).Warnf("Phase %s is marked complete but its artifacts are missing, running it again", phase.ID)
		}

		if err := o.runPhase(ctx, phase, pr); err != nil {
			return err
		}
	}

	o.logger.Info("All phases complete")
	return nil
}

func (o *Orchestrator) needsRerun(ctx context.Context, phase *Phase) bool {
	if !o.verify || phase.Verify == nil {
		return false
	}
	return !phase.Verify(ctx)
}

// runPhase moves one phase through RUNNING to COMPLETE or FAILED.
func (o *Orchestrator) runPhase(ctx context.Context, phase *Phase, pr *PhaseResult) error {
	logger := o.logger.WithPhase(phase.ID)

	pr.Status = PhaseStatusRunning
	if phase.Description != "" {
		logger.Infof("Starting phase %s: %s", phase.ID, phase.Description)
	} else {
		logger.Infof("Starting phase %s", phase.ID)
	}
	o.journalPhase(ctx, *pr, "")

	phaseCtx, span := o.tel.Tracer.StartPhaseSpan(ctx, phase.ID)
	timer := telemetry.NewTimer()
	err := phase.Run(phaseCtx)
	pr.Duration = timer.Duration()

	// A body that returns after the interrupt may have stopped short, so its
	// completion is not trusted.
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil && !o.preview {
		if markErr := o.state.MarkComplete(phase.ID); markErr != nil {
			err = NewPhaseError(phase.ID, fmt.Errorf("failed to persist completion: %w", markErr)).
				WithCode(ErrCodeStateWrite)
		}
	}
	telemetry.EndSpan(span, err)

	if err != nil {
		pr.Status = PhaseStatusFailed
		pr.Error = err.Error()
		o.tel.Metrics.RecordPhase(phase.ID, "failed", pr.Duration)
		o.journalPhase(ctx, *pr, err.Error())

		if ctx.Err() != nil {
			logger.WithError(err).Errorf("Phase %s interrupted", phase.ID)
			return NewInterruptedError("run interrupted", err).WithPhase(phase.ID)
		}
		logger.WithError(err).Errorf("Phase %s failed", phase.ID)
		if IsPhaseFailure(err) {
			return err
		}
		return NewPhaseError(phase.ID, err)
	}

	pr.Status = PhaseStatusComplete
	o.tel.Metrics.RecordPhase(phase.ID, "complete", pr.Duration)
	o.journalPhase(ctx, *pr, "")
	logger.Infof("Phase %s complete (%s)", phase.ID, pr.Duration.Round(time.Millisecond))
	return nil
}

func (o *Orchestrator) journalStart(ctx context.Context, result *RunResult) {
	if o.journal == nil {
		return
	}
	err := o.journal.StartRun(ctx, RunRecord{
		ID:        result.RunID,
		Mode:      result.Mode,
		Status:    RunStatusRunning,
		StartedAt: result.StartedAt,
	})
	if err != nil {
		o.logger.WithError(err).Warn("Failed to record run start")
	}
}

func (o *Orchestrator) journalPhase(ctx context.Context, pr PhaseResult, message string) {
	if o.journal == nil {
		return
	}
	err := o.journal.RecordPhase(context.WithoutCancel(ctx), PhaseEvent{
		RunID:    o.runID,
		Phase:    pr.ID,
		Status:   pr.Status,
		Resumed:  pr.Resumed,
		Message:  message,
		Duration: pr.Duration,
		At:       o.clock.Now(),
	})
	if err != nil {
		o.logger.WithError(err).Warnf("Failed to record phase %s", pr.ID)
	}
}

func (o *Orchestrator) journalFinish(result *RunResult) {
	if o.journal == nil {
		return
	}
	// The run context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.journal.FinishRun(ctx, result.RunID, result.Status, result.FailedPhase, result.FinishedAt); err != nil {
		o.logger.WithError(err).Warn("Failed to record run finish")
	}
}
