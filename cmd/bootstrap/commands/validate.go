package commands

import (
	"fmt"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/provision"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and policies",
		Long: `Validate the configuration file without touching the machine.

This command checks:
  - YAML syntax and field constraints
  - that every tweak parses into a command without shell operators
  - that extra Rego policies compile, and lists the active policies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("Configuration: %s\n", path)
			fmt.Printf("Home:          %s\n", cfg.Settings.Home)
			fmt.Printf("Data dir:      %s\n\n", cfg.Settings.DataDir)

			for _, line := range cfg.Profile.Tweaks {
				if _, err := provision.ParseCommand(line); err != nil {
					return engine.NewValidationError("invalid tweak", err)
				}
			}

			guard, err := newGuard(cmd.Context(), afero.NewOsFs(), cfg, telemetry.NewNopLogger())
			if err != nil {
				return err
			}
			fmt.Println("Policies:")
			for _, p := range guard.ListPolicies() {
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Printf("  %-20s %-8s %-8s %s\n", p.Name, p.Severity, state, p.Description)
			}

			fmt.Println("\nConfiguration is valid")
			return nil
		},
	}
	return cmd
}
