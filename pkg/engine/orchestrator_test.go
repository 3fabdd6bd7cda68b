package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/openfroyo/bootstrap/pkg/state"
	"github.com/spf13/afero"
)

const testStatePath = "/home/u/.bootstrap/state"

type phaseRecorder struct {
	ran  []string
	fail map[string]error
}

func (r *phaseRecorder) phases(ids ...string) []Phase {
	out := make([]Phase, len(ids))
	for i, id := range ids {
		id := id
		out[i] = Phase{
			ID: id,
			Run: func(context.Context) error {
				r.ran = append(r.ran, id)
				return r.fail[id]
			},
		}
	}
	return out
}

func setupTestOrchestrator(t *testing.T, fs afero.Fs, phases []Phase, opts Options) (*Orchestrator, *state.Store) {
	t.Helper()

	store, err := state.Open(fs, testStatePath)
	if err != nil {
		t.Fatalf("Failed to open state: %v", err)
	}
	opts.State = store

	o, err := NewOrchestrator(phases, opts)
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}
	return o, store
}

func TestRunExecutesPhasesInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := &phaseRecorder{}
	o, store := setupTestOrchestrator(t, fs, rec.phases("a", "b", "c"), Options{})

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !reflect.DeepEqual(rec.ran, []string{"a", "b", "c"}) {
		t.Errorf("Unexpected order %v", rec.ran)
	}
	if result.Status != RunStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", result.Status)
	}
	for _, id := range []string{"a", "b", "c"} {
		if !store.IsComplete(id) {
			t.Errorf("Expected %s to be complete", id)
		}
	}
}

func TestRunResumesAfterFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := &phaseRecorder{fail: map[string]error{"b": errors.New("exit status 1")}}
	o, _ := setupTestOrchestrator(t, fs, rec.phases("a", "b", "c"), Options{})

	result, err := o.Run(context.Background())
	if !IsPhaseFailure(err) {
		t.Fatalf("Expected phase failure, got %v", err)
	}
	if FailedPhase(err) != "b" || result.FailedPhase != "b" {
		t.Errorf("Expected failing phase b, got %q / %q", FailedPhase(err), result.FailedPhase)
	}
	if ExitCode(err) != ExitFailure {
		t.Errorf("Expected exit code 1, got %d", ExitCode(err))
	}
	if !reflect.DeepEqual(rec.ran, []string{"a", "b"}) {
		t.Errorf("Phase c must not run after b failed, ran %v", rec.ran)
	}
	if result.Phases[2].Status != PhaseStatusPending {
		t.Errorf("Expected c to stay pending, got %s", result.Phases[2].Status)
	}

	// Restart: a is not re-run, b and c run in order.
	rec2 := &phaseRecorder{}
	o2, store := setupTestOrchestrator(t, fs, rec2.phases("a", "b", "c"), Options{})
	if _, err := o2.Run(context.Background()); err != nil {
		t.Fatalf("Resumed run failed: %v", err)
	}
	if !reflect.DeepEqual(rec2.ran, []string{"b", "c"}) {
		t.Errorf("Expected only b and c to run, got %v", rec2.ran)
	}
	if len(store.Completed()) != 3 {
		t.Errorf("Expected three completed phases, got %v", store.Completed())
	}
}

func TestRunTwiceSkipsEverything(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := &phaseRecorder{}
	o, _ := setupTestOrchestrator(t, fs, rec.phases("a", "b"), Options{})
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec2 := &phaseRecorder{}
	o2, _ := setupTestOrchestrator(t, fs, rec2.phases("a", "b"), Options{})
	result, err := o2.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec2.ran) != 0 {
		t.Errorf("Second run executed %v", rec2.ran)
	}
	for _, p := range result.Phases {
		if p.Status != PhaseStatusComplete || !p.Resumed {
			t.Errorf("Expected %s to be resumed as complete, got %+v", p.ID, p)
		}
	}
	if len(result.Executed()) != 0 {
		t.Errorf("Expected nothing executed, got %v", result.Executed())
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := &phaseRecorder{}
	o, store := setupTestOrchestrator(t, fs, rec.phases("a", "b"), Options{Preview: true})

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Mode != "preview" {
		t.Errorf("Expected preview mode, got %s", result.Mode)
	}
	if len(rec.ran) != 2 {
		t.Errorf("Preview must walk every phase body, ran %v", rec.ran)
	}
	if store.IsComplete("a") {
		t.Error("Preview must not mark phases complete")
	}
	if ok, _ := afero.Exists(fs, testStatePath); ok {
		t.Error("Preview created the state file")
	}
}

func TestVerifyRerunsMissingArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := state.New(fs, testStatePath)
	if err := store.MarkComplete("prerequisites"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkComplete("identity"); err != nil {
		t.Fatal(err)
	}

	rec := &phaseRecorder{}
	phases := rec.phases("prerequisites", "identity")
	phases[0].Verify = func(context.Context) bool { return false }
	phases[1].Verify = func(context.Context) bool { return true }

	trusting, _ := setupTestOrchestrator(t, fs, phases, Options{})
	if _, err := trusting.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rec.ran) != 0 {
		t.Fatalf("Persisted state must be trusted without verify, ran %v", rec.ran)
	}

	verifying, _ := setupTestOrchestrator(t, fs, phases, Options{Verify: true})
	if _, err := verifying.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rec.ran, []string{"prerequisites"}) {
		t.Errorf("Expected only the phase with missing artifacts to re-run, got %v", rec.ran)
	}
}

func TestInterruptStopsBeforeNextPhase(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran []string
	phases := []Phase{
		{ID: "a", Run: func(context.Context) error { ran = append(ran, "a"); return nil }},
		{ID: "b", Run: func(context.Context) error { ran = append(ran, "b"); cancel(); return nil }},
		{ID: "c", Run: func(context.Context) error { ran = append(ran, "c"); return nil }},
	}
	o, store := setupTestOrchestrator(t, fs, phases, Options{})

	result, err := o.Run(ctx)
	if !IsInterrupted(err) {
		t.Fatalf("Expected interruption, got %v", err)
	}
	if ExitCode(err) != ExitInterrupted {
		t.Errorf("Expected exit code 130, got %d", ExitCode(err))
	}
	if result.Status != RunStatusInterrupted {
		t.Errorf("Expected interrupted status, got %s", result.Status)
	}
	if result.FailedPhase != "b" {
		t.Errorf("Expected b as the interrupted phase, got %q", result.FailedPhase)
	}
	if !reflect.DeepEqual(ran, []string{"a", "b"}) {
		t.Errorf("Expected a and b to run, got %v", ran)
	}
	if !store.IsComplete("a") {
		t.Error("Phase a finished before the interrupt and must stay complete")
	}
	if store.IsComplete("b") {
		t.Error("Phase b returned after the interrupt and must not be marked complete")
	}
}

func TestInterruptedPhaseRunsAgainOnResume(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx, cancel := context.WithCancel(context.Background())

	var ran []string
	phases := []Phase{
		{ID: "a", Run: func(context.Context) error { ran = append(ran, "a"); cancel(); return nil }},
	}
	o, _ := setupTestOrchestrator(t, fs, phases, Options{})
	if _, err := o.Run(ctx); !IsInterrupted(err) {
		t.Fatalf("Expected interruption, got %v", err)
	}

	phases[0].Run = func(context.Context) error { ran = append(ran, "a"); return nil }
	resumed, store := setupTestOrchestrator(t, fs, phases, Options{})
	if _, err := resumed.Run(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !reflect.DeepEqual(ran, []string{"a", "a"}) {
		t.Errorf("Expected a to run again, got %v", ran)
	}
	if !store.IsComplete("a") {
		t.Error("Expected a complete after the resumed run")
	}
}

type fakeJournal struct {
	started  []RunRecord
	events   []PhaseEvent
	finished []RunStatus
}

func (j *fakeJournal) StartRun(_ context.Context, run RunRecord) error {
	j.started = append(j.started, run)
	return nil
}

func (j *fakeJournal) RecordPhase(_ context.Context, event PhaseEvent) error {
	j.events = append(j.events, event)
	return nil
}

func (j *fakeJournal) FinishRun(_ context.Context, _ string, status RunStatus, _ string, _ time.Time) error {
	j.finished = append(j.finished, status)
	return nil
}

func TestJournalRecordsTransitions(t *testing.T) {
	fs := afero.NewMemMapFs()
	journal := &fakeJournal{}
	rec := &phaseRecorder{fail: map[string]error{"b": errors.New("boom")}}
	o, _ := setupTestOrchestrator(t, fs, rec.phases("a", "b"), Options{Journal: journal, RunID: "run-1"})

	_, _ = o.Run(context.Background())

	if len(journal.started) != 1 || journal.started[0].ID != "run-1" {
		t.Fatalf("Unexpected run records %+v", journal.started)
	}
	var statuses []PhaseStatus
	for _, e := range journal.events {
		statuses = append(statuses, e.Status)
	}
	want := []PhaseStatus{PhaseStatusRunning, PhaseStatusComplete, PhaseStatusRunning, PhaseStatusFailed}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("Expected transitions %v, got %v", want, statuses)
	}
	if !reflect.DeepEqual(journal.finished, []RunStatus{RunStatusFailed}) {
		t.Errorf("Unexpected finish %v", journal.finished)
	}
}

func TestPlanReportsPersistedState(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := state.New(fs, testStatePath)
	if err := store.MarkComplete("a"); err != nil {
		t.Fatal(err)
	}

	rec := &phaseRecorder{}
	o, _ := setupTestOrchestrator(t, fs, rec.phases("a", "b"), Options{})
	plan := o.Plan()

	if plan[0].Status != PhaseStatusComplete || plan[1].Status != PhaseStatusPending {
		t.Errorf("Unexpected plan %+v", plan)
	}
	if len(rec.ran) != 0 {
		t.Error("Plan must not run phases")
	}
}

func TestNewOrchestratorRejectsBadPhases(t *testing.T) {
	rec := &phaseRecorder{}
	store := state.New(afero.NewMemMapFs(), testStatePath)

	if _, err := NewOrchestrator(rec.phases("a", "a"), Options{State: store}); !IsValidation(err) {
		t.Errorf("Expected validation error for duplicate ids, got %v", err)
	}
	if _, err := NewOrchestrator(nil, Options{State: store}); !IsValidation(err) {
		t.Errorf("Expected validation error for no phases, got %v", err)
	}
	if _, err := NewOrchestrator(rec.phases("a"), Options{}); !IsValidation(err) {
		t.Errorf("Expected validation error for missing state, got %v", err)
	}
}
