package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	homeDir    string
	verbose    bool

	version = "dev"
)

// exitError carries an exit code decided by a command's finalizer, which
// has already logged the outcome.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, v, commit, buildDate string) int {
	version = v
	rootCmd := newRootCommand(v, commit, buildDate)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return engine.ExitSuccess
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	log.Error().Err(err).Msg("Command failed")
	return engine.ExitCode(err)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Resumable workstation provisioning",
		Long: `bootstrap provisions a developer workstation in seven ordered phases:
prerequisites, identity, shell, dotfiles, toolchains, apps and tweaks.

Completed phases are recorded, so an interrupted or failed run resumes
where it stopped. Every file is backed up into a timestamped snapshot
before it is changed, and rollback restores the latest snapshot and
offers to remove what was installed.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ~/.config/bootstrap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory to provision (default current user's home)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newRollbackCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newSnapshotsCommand())
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
