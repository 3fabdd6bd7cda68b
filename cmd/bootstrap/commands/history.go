package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/openfroyo/bootstrap/pkg/stores"
	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List provisioning runs recorded in the run journal, newest first.

With --run, show the phase transitions of one run.`,
		Example: `  # Last ten runs
  bootstrap history

  # Phase events of one run
  bootstrap history --run 2f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			path := cfg.Settings.JournalPath
			if path == "" {
				fmt.Println("The run journal is disabled")
				return nil
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Println("No runs recorded")
				return nil
			}

			ctx := cmd.Context()
			journal, err := stores.OpenJournal(ctx, path)
			if err != nil {
				return err
			}
			defer journal.Close()

			if runID != "" {
				run, err := journal.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Printf("Run %s (%s): %s, started %s\n", run.ID, run.Mode, run.Status, run.StartedAt.Local().Format(time.DateTime))

				events, err := journal.ListPhaseEvents(ctx, runID)
				if err != nil {
					return err
				}
				for _, e := range events {
					fmt.Printf("  %s  %-14s %-9s %s\n", e.At.Local().Format(time.DateTime), e.Phase, e.Status, e.Message)
				}
				return nil
			}

			runs, err := journal.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}
			for _, r := range runs {
				line := fmt.Sprintf("%s  %s  %-7s %-11s", r.StartedAt.Local().Format(time.DateTime), r.ID, r.Mode, r.Status)
				if r.FailedPhase != "" {
					line += " at " + r.FailedPhase
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show phase events of this run")

	return cmd
}
