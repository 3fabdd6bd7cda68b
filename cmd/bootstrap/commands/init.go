package commands

import (
	"fmt"
	"os"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/fsutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write the built-in configuration to the config path so it can be
edited before the first run.`,
		Example: `  # Write ~/.config/bootstrap/config.yaml
  bootstrap init

  # Write somewhere else
  bootstrap init --config ./bootstrap.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.ResolveHome(homeDir)
			if err != nil {
				return engine.NewValidationError("cannot resolve home directory", err)
			}
			path := configPath
			if path == "" {
				path = config.DefaultConfigPath(home)
			}

			fs := afero.NewOsFs()
			if exists, _ := fsutil.Exists(fs, path); exists && !overwrite {
				return engine.NewValidationError(fmt.Sprintf("%s already exists, pass --force to replace it", path), nil)
			}

			data, err := config.Default(home).Marshal()
			if err != nil {
				return err
			}
			if err := fsutil.AtomicWrite(fs, path, data, 0o644); err != nil {
				return err
			}

			log.Info().Str("path", path).Msg("Wrote default configuration")
			fmt.Fprintf(os.Stdout, "Edit %s, then run: bootstrap plan\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&overwrite, "force", "f", false, "replace an existing config file")

	return cmd
}
