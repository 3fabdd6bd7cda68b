package provision

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/gateway"
)

// CommandLineToolsDir is where the Xcode command line tools install.
const CommandLineToolsDir = "/Library/Developer/CommandLineTools"

func (e *Env) prerequisites(ctx context.Context) error {
	logger := e.logger(PhasePrerequisites)

	collaborators := []Collaborator{
		&commandLineTools{env: e},
		&homebrew{env: e},
	}
	for _, c := range collaborators {
		if err := e.ensure(ctx, logger, c); err != nil {
			return fmt.Errorf("failed to install %s: %w", c.Name(), err)
		}
	}

	if err := e.Gateway.Execute(ctx, gateway.Command(e.brew(), "update").Describe("refresh Homebrew")); err != nil {
		return fmt.Errorf("brew update failed: %w", err)
	}

	for _, formula := range e.profile().Homebrew.Formulae {
		if err := e.ensure(ctx, logger, &brewPackage{env: e, name: formula}); err != nil {
			return fmt.Errorf("failed to install formula %s: %w", formula, err)
		}
	}
	return nil
}

func (e *Env) verifyPrerequisites(context.Context) bool {
	return e.Gateway.Exists(CommandLineToolsDir) && e.Gateway.Exists(e.brew())
}

// commandLineTools triggers the system installer dialog and waits for it.
type commandLineTools struct{ env *Env }

func (c *commandLineTools) Name() string { return "Xcode command line tools" }

func (c *commandLineTools) Present(ctx context.Context) bool {
	return c.env.Gateway.Succeeds(ctx, gateway.Command("xcode-select", "-p"))
}

func (c *commandLineTools) Install(ctx context.Context) error {
	gw := c.env.Gateway
	if err := gw.Execute(ctx, gateway.Command("xcode-select", "--install").Describe("open the command line tools installer")); err != nil {
		return err
	}
	return c.env.Waiter.WaitForPath(ctx, filepath.Join(CommandLineToolsDir, "usr", "bin", "git"))
}

// homebrew downloads the official install script and runs it unattended.
type homebrew struct{ env *Env }

func (h *homebrew) Name() string { return "Homebrew" }

func (h *homebrew) Present(context.Context) bool {
	return h.env.Gateway.Exists(h.env.brew())
}

func (h *homebrew) Install(ctx context.Context) error {
	script, err := h.env.download(ctx, h.env.profile().Homebrew.InstallURL, "homebrew-install.sh")
	if err != nil {
		return err
	}

	// The script asks for sudo itself, so the terminal stays attached.
	install := gateway.Command("/bin/bash", script).
		WithEnv("NONINTERACTIVE=1").
		Attached().
		Describe("run the Homebrew installer")
	return h.env.Gateway.Execute(ctx, install)
}

// brewPackage is a formula or, with cask set, a cask.
type brewPackage struct {
	env  *Env
	name string
	cask bool
}

func (b *brewPackage) kind() string {
	if b.cask {
		return "--cask"
	}
	return "--formula"
}

func (b *brewPackage) Name() string { return b.name }

func (b *brewPackage) Present(ctx context.Context) bool {
	return b.env.Gateway.Succeeds(ctx, gateway.Command(b.env.brew(), "list", b.kind(), b.name))
}

func (b *brewPackage) Install(ctx context.Context) error {
	return b.env.Gateway.Execute(ctx, gateway.Command(b.env.brew(), "install", b.kind(), b.name))
}

// download fetches url into the work dir and returns the local path.
func (e *Env) download(ctx context.Context, url, name string) (string, error) {
	work := e.settings().WorkDir
	if err := e.Gateway.MkdirAll(ctx, work, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(work, name)
	fetch := gateway.Command("curl", "-fsSL", "--retry", "3", "-o", dst, url).Describe("download " + name)
	if err := e.Gateway.Execute(ctx, fetch); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	return dst, nil
}
