package commands

import (
	"context"
	"fmt"

	"github.com/openfroyo/bootstrap/pkg/rollback"
	"github.com/spf13/cobra"
)

func newRollbackCommand() *cobra.Command {
	var (
		force    bool
		dryRun   bool
		snapshot string
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore backups and remove installed artifacts",
		Long: `Restore the files of the latest backup snapshot, then offer to remove
what provisioning installed, newest phase first:

  dotfile links, the generated ssh key, toolchain directories, the shell
  framework and login shell, applications, Homebrew, and finally the
  state file, log and journal.

Every step asks for confirmation; uninstalling Homebrew asks twice. A step
that fails is reported and the remaining steps still run.`,
		Example: `  # Interactive rollback
  bootstrap rollback

  # Unattended rollback of a specific snapshot
  bootstrap rollback --force --snapshot 20240601_120000

  # Show what would be restored and removed
  bootstrap rollback --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, dryRun, "Rollback complete")
			if err != nil {
				return err
			}
			return s.finish(s.rollback(ctx, force, snapshot))
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "answer yes to every confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log actions without performing them")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "snapshot to restore instead of the latest")

	return cmd
}

func (s *session) rollback(ctx context.Context, force bool, snapshot string) error {
	confirm, err := s.confirmer(force)
	if err != nil {
		return err
	}

	proc := rollback.New(rollback.Options{
		Gateway:   s.gw,
		Config:    s.cfg,
		Confirm:   confirm,
		Snapshot:  snapshot,
		Telemetry: s.tel,
	})

	res, err := proc.Run(ctx)
	printRollbackSummary(res)
	if err != nil {
		return err
	}
	return res.Err
}

func printRollbackSummary(res *rollback.Result) {
	if res == nil {
		return
	}

	if res.Snapshot != "" {
		fmt.Printf("\nSnapshot %s: %d files restored\n", res.Snapshot, len(res.Restored))
	} else {
		fmt.Println("\nNo snapshot restored")
	}
	for _, r := range res.Removed {
		fmt.Printf("  removed  %s\n", r)
	}
	for _, sk := range res.Skipped {
		fmt.Printf("  skipped  %s\n", sk)
	}
	if res.Err != nil {
		fmt.Printf("\nSome steps failed:\n%v\n", res.Err)
	}
}
