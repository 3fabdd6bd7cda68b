package provision

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openfroyo/bootstrap/pkg/gateway"
)

func (e *Env) shell(ctx context.Context) error {
	logger := e.logger(PhaseShell)
	sh := e.profile().Shell

	if err := e.ensure(ctx, logger, &shellFramework{env: e}); err != nil {
		return fmt.Errorf("failed to install shell framework: %w", err)
	}

	if err := e.writeRC(ctx); err != nil {
		return err
	}

	if e.getenv("SHELL") == sh.LoginShell {
		logger.Infof("Login shell is already %s", sh.LoginShell)
		return nil
	}
	// chsh asks for the account password.
	chsh := gateway.Command("chsh", "-s", sh.LoginShell).Attached().Describe("change login shell")
	if err := e.Gateway.Execute(ctx, chsh); err != nil {
		return fmt.Errorf("failed to change login shell: %w", err)
	}
	return nil
}

func (e *Env) verifyShell(context.Context) bool {
	sh := e.profile().Shell
	if !e.Gateway.Exists(e.home(sh.FrameworkDir)) {
		return false
	}
	data, err := e.Gateway.ReadFile(e.home(sh.RCFile))
	return err == nil && strings.Contains(string(data), blockBegin)
}

// rcBlock renders the managed section of the shell rc file.
func (e *Env) rcBlock() string {
	sh := e.profile().Shell

	var b strings.Builder
	fmt.Fprintf(&b, "export ZSH=%q\n", e.home(sh.FrameworkDir))
	if sh.Theme != "" {
		fmt.Fprintf(&b, "ZSH_THEME=%q\n", sh.Theme)
	}
	fmt.Fprintf(&b, "plugins=(%s)\n", strings.Join(sh.Plugins, " "))
	b.WriteString("source $ZSH/oh-my-zsh.sh\n")
	for _, line := range sh.ExtraLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// writeRC backs up the rc file and rewrites its managed block. An rc file
// whose block is already current is left untouched.
func (e *Env) writeRC(ctx context.Context) error {
	rc := e.home(e.profile().Shell.RCFile)

	current, err := e.readOptional(rc)
	if err != nil {
		return err
	}
	updated := upsertBlock(current, e.rcBlock())
	if updated == current {
		e.logger(PhaseShell).Infof("%s is up to date", rc)
		return nil
	}

	if _, err := e.Backup.Backup(ctx, rc); err != nil {
		return err
	}
	if err := e.Gateway.MkdirAll(ctx, filepath.Dir(rc), 0o755); err != nil {
		return err
	}
	return e.Gateway.WriteFile(ctx, rc, []byte(updated), 0o644)
}

// shellFramework is oh-my-zsh, installed from its upstream script without
// touching the rc file or the login shell.
type shellFramework struct{ env *Env }

func (s *shellFramework) Name() string { return "shell framework" }

func (s *shellFramework) Present(context.Context) bool {
	return s.env.Gateway.Exists(s.env.home(s.env.profile().Shell.FrameworkDir))
}

func (s *shellFramework) Install(ctx context.Context) error {
	sh := s.env.profile().Shell
	script, err := s.env.download(ctx, sh.InstallURL, "shell-framework-install.sh")
	if err != nil {
		return err
	}

	install := gateway.Command("sh", script, "--unattended", "--keep-zshrc").
		WithEnv("ZSH="+s.env.home(sh.FrameworkDir), "RUNZSH=no", "CHSH=no").
		Describe("run the shell framework installer")
	return s.env.Gateway.Execute(ctx, install)
}
