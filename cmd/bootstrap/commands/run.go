package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/bootstrap/pkg/backup"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/prompt"
	"github.com/openfroyo/bootstrap/pkg/provision"
	"github.com/openfroyo/bootstrap/pkg/state"
	"github.com/openfroyo/bootstrap/pkg/stores"
	"github.com/spf13/cobra"
)

type runFlags struct {
	dryRun       bool
	verify       bool
	skipPlatform bool
}

func newRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision this machine",
		Long: `Run the seven provisioning phases in order.

Phases already recorded as complete are skipped, so after a failure or an
interrupt the next run resumes at the phase that did not finish. Files are
backed up into a timestamped snapshot before they are changed.

With --dry-run every command and file change is logged but not performed,
and nothing is recorded.`,
		Example: `  # Provision, resuming any earlier run
  bootstrap run

  # Show what would happen
  bootstrap run --dry-run

  # Re-run completed phases whose artifacts have gone missing
  bootstrap run --verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvisioning(cmd.Context(), flags, false)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "log actions without performing them")
	cmd.Flags().BoolVar(&flags.verify, "verify", false, "re-run completed phases whose artifacts are missing")
	cmd.Flags().BoolVar(&flags.skipPlatform, "skip-platform-check", false, "do not require the configured platform")

	return cmd
}

func newPlanCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview a provisioning run",
		Long: `Show the status every phase would start with, then preview the run.

plan is run --dry-run with the phase table printed first. Nothing on the
machine changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.dryRun = true
			return runProvisioning(cmd.Context(), flags, true)
		},
	}

	cmd.Flags().BoolVar(&flags.verify, "verify", false, "preview re-running completed phases whose artifacts are missing")
	cmd.Flags().BoolVar(&flags.skipPlatform, "skip-platform-check", false, "do not require the configured platform")

	return cmd
}

func runProvisioning(ctx context.Context, flags runFlags, showPlan bool) error {
	s, err := openSession(ctx, flags.dryRun, "All phases complete")
	if err != nil {
		return err
	}
	return s.finish(s.provision(ctx, flags, showPlan))
}

func (s *session) provision(ctx context.Context, flags runFlags, showPlan bool) error {
	cfg := s.cfg
	logger := s.tel.Logger.NewComponentLogger("run")

	preflight := engine.Preflight{
		Platform:     cfg.Profile.Platform,
		SkipPlatform: flags.skipPlatform || cfg.Settings.SkipPlatformCheck,
		MinFreeGB:    cfg.Profile.MinFreeGB,
		Path:         cfg.Settings.Home,
	}
	if err := preflight.Check(); err != nil {
		return err
	}

	st, err := state.Open(s.fs, cfg.Settings.StateFile)
	if err != nil {
		return engine.NewPreconditionError("cannot read state", err)
	}

	runID := uuid.New().String()

	// The journal is history, not state: a run proceeds without it.
	var (
		journal  engine.Journal
		recorder backup.Recorder
	)
	if !s.preview && cfg.Settings.JournalPath != "" {
		store, err := stores.OpenJournal(ctx, cfg.Settings.JournalPath)
		if err != nil {
			logger.WithError(err).Warn("Run journal unavailable, continuing without it")
		} else {
			s.finalizer.AddCloser(store)
			journal, recorder = store, store
		}
	}

	env := &provision.Env{
		Gateway: s.gw,
		Backup: backup.New(backup.Options{
			FS:        s.fs,
			Root:      cfg.Settings.BackupRoot,
			Home:      cfg.Settings.Home,
			Preview:   s.preview,
			RunID:     runID,
			Recorder:  recorder,
			Telemetry: s.tel,
		}),
		Config:    cfg,
		Waiter:    provision.NewWaiter(s.fs, cfg.Settings.InstallTimeout, cfg.Settings.PollInterval, s.preview, s.tel.Logger),
		Telemetry: s.tel,
	}
	if p, err := prompt.Stdin(); err == nil {
		env.Prompt = p
	} else {
		logger.Debug("No terminal attached, prompts continue without waiting")
	}

	orch, err := engine.NewOrchestrator(provision.Phases(env), engine.Options{
		State:     st,
		Journal:   journal,
		Telemetry: s.tel,
		RunID:     runID,
		Preview:   s.preview,
		Verify:    flags.verify || cfg.Settings.VerifyCompleted,
	})
	if err != nil {
		return err
	}

	if showPlan {
		printPlan(orch.Plan())
	}

	result, err := orch.Run(ctx)
	printRunSummary(result)
	if err == nil && env.Backup.Snapshot() != "" {
		logger.Infof("Backups of changed files are in %s", env.Backup.Snapshot())
	}
	return err
}

func printPlan(plan []engine.PhaseResult) {
	fmt.Println("Phase plan:")
	for i, p := range plan {
		action := "run"
		if p.Status == engine.PhaseStatusComplete {
			action = "skip (complete)"
		}
		fmt.Printf("  %d. %-14s %s\n", i+1, p.ID, action)
	}
	fmt.Println()
}

func printRunSummary(result *engine.RunResult) {
	if result == nil {
		return
	}

	fmt.Printf("\nRun %s (%s): %s\n", result.RunID, result.Mode, result.Status)
	for _, p := range result.Phases {
		note := ""
		switch {
		case p.Resumed:
			note = "already complete"
		case p.Error != "":
			note = p.Error
		case p.Duration > 0:
			note = p.Duration.Round(time.Millisecond).String()
		}
		fmt.Printf("  %-14s %-9s %s\n", p.ID, p.Status, strings.TrimSpace(note))
	}
}
