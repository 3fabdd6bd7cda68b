// Package provision defines the seven provisioning phases.
//
// Phase bodies reach the machine only through the gateway and the backup
// store held by Env, so the same code runs in apply and preview mode.
package provision

import (
	"context"
	"os"
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/backup"
	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/gateway"
	"github.com/openfroyo/bootstrap/pkg/prompt"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Phase identifiers, in run order.
const (
	PhasePrerequisites = "prerequisites"
	PhaseIdentity      = "identity"
	PhaseShell         = "shell"
	PhaseDotfiles      = "dotfiles"
	PhaseToolchains    = "toolchains"
	PhaseApps          = "apps"
	PhaseTweaks        = "tweaks"
)

// Order is the fixed phase order. Later phases rely on artifacts of
// earlier ones.
var Order = []string{
	PhasePrerequisites,
	PhaseIdentity,
	PhaseShell,
	PhaseDotfiles,
	PhaseToolchains,
	PhaseApps,
	PhaseTweaks,
}

// Env is what phase bodies work with.
type Env struct {
	Gateway   *gateway.Gateway
	Backup    *backup.Store
	Config    *config.File
	Prompt    prompt.Confirmer
	Waiter    *Waiter
	Telemetry *telemetry.Telemetry

	// Getenv reads the process environment. Defaults to os.Getenv.
	Getenv func(string) string
}

func (e *Env) profile() *config.Profile {
	return &e.Config.Profile
}

func (e *Env) settings() *config.Settings {
	return &e.Config.Settings
}

func (e *Env) home(rel string) string {
	return e.Config.HomePath(rel)
}

func (e *Env) logger(phase string) *telemetry.Logger {
	return e.Telemetry.Logger.NewComponentLogger("provision").WithPhase(phase)
}

func (e *Env) getenv(key string) string {
	if e.Getenv != nil {
		return e.Getenv(key)
	}
	return os.Getenv(key)
}

// brew returns the absolute path of the brew binary; the prefix may not be
// on PATH during the first run.
func (e *Env) brew() string {
	return filepath.Join(e.profile().Homebrew.Prefix, "bin", "brew")
}

// Phases returns the seven phases bound to env.
func Phases(env *Env) []engine.Phase {
	if env.Telemetry == nil {
		env.Telemetry = telemetry.NewNopTelemetry()
	}
	if env.Prompt == nil {
		env.Prompt = prompt.Always()
	}

	return []engine.Phase{
		{
			ID:          PhasePrerequisites,
			Description: "command line tools, Homebrew and base formulae",
			Run:         env.prerequisites,
			Verify:      env.verifyPrerequisites,
		},
		{
			ID:          PhaseIdentity,
			Description: "git identity and ssh key",
			Run:         env.identity,
			Verify:      env.verifyIdentity,
		},
		{
			ID:          PhaseShell,
			Description: "shell framework, rc file and login shell",
			Run:         env.shell,
			Verify:      env.verifyShell,
		},
		{
			ID:          PhaseDotfiles,
			Description: "personal configuration links",
			Run:         env.dotfiles,
			Verify:      env.verifyDotfiles,
		},
		{
			ID:          PhaseToolchains,
			Description: "language runtimes",
			Run:         env.toolchains,
			Verify:      env.verifyToolchains,
		},
		{
			ID:          PhaseApps,
			Description: "GUI applications",
			Run:         env.apps,
			Verify:      env.verifyApps,
		},
		{
			ID:          PhaseTweaks,
			Description: "system preferences",
			Run:         env.tweaks,
		},
	}
}

// Collaborator is an external tool the phases install.
type Collaborator interface {
	// Name identifies the collaborator in logs.
	Name() string

	// Present reports whether the collaborator is already installed. It
	// must not mutate anything.
	Present(ctx context.Context) bool

	// Install installs the collaborator through the gateway.
	Install(ctx context.Context) error
}

// ensure installs c unless it is present.
func (e *Env) ensure(ctx context.Context, logger *telemetry.Logger, c Collaborator) error {
	if c.Present(ctx) {
		logger.Infof("%s already installed", c.Name())
		return nil
	}
	logger.Infof("Installing %s", c.Name())
	return c.Install(ctx)
}
