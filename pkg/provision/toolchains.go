package provision

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/gateway"
)

// nvmScript loads nvm into a bash process and runs one nvm subcommand. The
// script path and arguments arrive as positional parameters.
const nvmScript = `. "$1" && shift && nvm "$@"`

func (e *Env) toolchains(ctx context.Context) error {
	logger := e.logger(PhaseToolchains)
	tc := e.profile().Toolchains

	if tc.Node.Manager != "" {
		if err := e.installNode(ctx, tc.Node); err != nil {
			return err
		}
	} else {
		logger.Info("No node version manager configured")
	}

	if tc.Python.Manager != "" {
		if err := e.installPython(ctx, tc.Python); err != nil {
			return err
		}
	} else {
		logger.Info("No python version manager configured")
	}
	return nil
}

func (e *Env) verifyToolchains(context.Context) bool {
	tc := e.profile().Toolchains
	for _, rt := range []config.RuntimeProfile{tc.Node, tc.Python} {
		if rt.Manager != "" && rt.Dir != "" && !e.Gateway.Exists(e.home(rt.Dir)) {
			return false
		}
	}
	return true
}

func (e *Env) installNode(ctx context.Context, rt config.RuntimeProfile) error {
	logger := e.logger(PhaseToolchains)
	if err := e.ensure(ctx, logger, &brewPackage{env: e, name: rt.Manager}); err != nil {
		return fmt.Errorf("failed to install %s: %w", rt.Manager, err)
	}

	dir := e.home(rt.Dir)
	if err := e.Gateway.MkdirAll(ctx, dir, 0o755); err != nil {
		return err
	}

	script := filepath.Join(e.profile().Homebrew.Prefix, "opt", rt.Manager, "nvm.sh")
	nvm := func(args ...string) gateway.Action {
		argv := append([]string{"-c", nvmScript, "bash", script}, args...)
		return gateway.Command("/bin/bash", argv...).WithEnv("NVM_DIR=" + dir)
	}

	for _, version := range rt.Versions {
		if err := e.Gateway.Execute(ctx, nvm("install", version).Describe("install node "+version)); err != nil {
			return fmt.Errorf("failed to install node %s: %w", version, err)
		}
	}
	if rt.Default != "" {
		if err := e.Gateway.Execute(ctx, nvm("alias", "default", rt.Default).Describe("set default node")); err != nil {
			return fmt.Errorf("failed to set default node: %w", err)
		}
	}
	return nil
}

func (e *Env) installPython(ctx context.Context, rt config.RuntimeProfile) error {
	logger := e.logger(PhaseToolchains)
	if err := e.ensure(ctx, logger, &brewPackage{env: e, name: rt.Manager}); err != nil {
		return fmt.Errorf("failed to install %s: %w", rt.Manager, err)
	}

	pyenv := filepath.Join(e.profile().Homebrew.Prefix, "bin", rt.Manager)
	root := "PYENV_ROOT=" + e.home(rt.Dir)

	for _, version := range rt.Versions {
		install := gateway.Command(pyenv, "install", "-s", version).WithEnv(root).Describe("install python " + version)
		if err := e.Gateway.Execute(ctx, install); err != nil {
			return fmt.Errorf("failed to install python %s: %w", version, err)
		}
	}
	if rt.Default != "" {
		global := gateway.Command(pyenv, "global", rt.Default).WithEnv(root).Describe("set default python")
		if err := e.Gateway.Execute(ctx, global); err != nil {
			return fmt.Errorf("failed to set default python: %w", err)
		}
	}
	return nil
}
