package commands

import (
	"fmt"

	"github.com/openfroyo/bootstrap/pkg/backup"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/provision"
	"github.com/openfroyo/bootstrap/pkg/state"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which phases are complete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			fs := afero.NewOsFs()

			st, err := state.Open(fs, cfg.Settings.StateFile)
			if err != nil {
				return engine.NewPreconditionError("cannot read state", err)
			}

			fmt.Printf("State file: %s\n\n", st.Path())
			done := 0
			for i, id := range provision.Order {
				status := engine.PhaseStatusPending
				if st.IsComplete(id) {
					status = engine.PhaseStatusComplete
					done++
				}
				fmt.Printf("  %d. %-14s %s\n", i+1, id, status)
			}
			fmt.Printf("\n%d of %d phases complete\n", done, len(provision.Order))

			latest, ok, err := backup.LatestSnapshot(fs, cfg.Settings.BackupRoot)
			if err != nil {
				return err
			}
			if ok {
				fmt.Printf("Latest snapshot: %s (%d files)\n", latest.Name, latest.Files)
			}
			return nil
		},
	}
	return cmd
}
