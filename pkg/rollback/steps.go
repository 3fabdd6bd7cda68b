package rollback

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/openfroyo/bootstrap/pkg/gateway"
)

// Step names, in the order they are offered.
const (
	StepDotfiles   = "dotfiles"
	StepIdentity   = "identity"
	StepToolchains = "toolchains"
	StepShell      = "shell"
	StepApps       = "apps"
	StepHomebrew   = "homebrew"
	StepState      = "state"
)

type step struct {
	name     string
	question string

	// confirmAgain, when set, is asked after question and must also be
	// answered yes.
	confirmAgain string

	run func(ctx context.Context) ([]string, error)
}

// steps lists the removals in reverse phase order.
func (p *Procedure) steps() []step {
	return []step{
		{name: StepDotfiles, question: "Remove dotfile links?", run: p.removeLinks},
		{name: StepIdentity, question: "Remove the generated ssh key?", run: p.removeKey},
		{name: StepToolchains, question: "Remove language toolchain directories?", run: p.removeToolchains},
		{name: StepShell, question: "Remove the shell framework and restore the previous login shell?", run: p.removeShell},
		{name: StepApps, question: "Remove installed applications?", run: p.removeApps},
		{
			name:         StepHomebrew,
			question:     "Uninstall Homebrew?",
			confirmAgain: "This removes Homebrew and every package it manages, including ones bootstrap did not install. Continue?",
			run:          p.removeHomebrew,
		},
		{name: StepState, question: "Remove the state file, log file and journal?", run: p.removeState},
	}
}

// removePaths removes every existing path and keeps going past failures.
func (p *Procedure) removePaths(ctx context.Context, paths ...string) ([]string, error) {
	var (
		removed []string
		errs    *multierror.Error
	)
	for _, path := range paths {
		if !p.gw.Exists(path) {
			continue
		}
		if err := p.gw.RemoveAll(ctx, path); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	return removed, errs.ErrorOrNil()
}

// removeLinks removes links that still point into the dotfiles repo. Links
// the user has since replaced are left alone.
func (p *Procedure) removeLinks(ctx context.Context) ([]string, error) {
	df := p.cfg.Profile.Dotfiles
	dir := p.cfg.HomePath(df.Dir)

	var links []string
	for _, link := range df.SortedLinks() {
		path := p.cfg.HomePath(link[1])
		if target, err := p.gw.Readlink(path); err == nil && target == filepath.Join(dir, link[0]) {
			links = append(links, path)
		}
	}
	return p.removePaths(ctx, links...)
}

func (p *Procedure) removeKey(ctx context.Context) ([]string, error) {
	key := p.cfg.HomePath(p.cfg.Profile.Identity.KeyPath)
	return p.removePaths(ctx, key, key+".pub")
}

func (p *Procedure) removeToolchains(ctx context.Context) ([]string, error) {
	var dirs []string
	for _, rt := range []string{p.cfg.Profile.Toolchains.Node.Dir, p.cfg.Profile.Toolchains.Python.Dir} {
		if rt != "" {
			dirs = append(dirs, p.cfg.HomePath(rt))
		}
	}
	return p.removePaths(ctx, dirs...)
}

func (p *Procedure) removeShell(ctx context.Context) ([]string, error) {
	sh := p.cfg.Profile.Shell
	removed, err := p.removePaths(ctx, p.cfg.HomePath(sh.FrameworkDir))

	chsh := gateway.Command("chsh", "-s", sh.FallbackShell).Attached().Describe("restore login shell")
	if chErr := p.gw.Execute(ctx, chsh); chErr != nil {
		return removed, multierror.Append(err, chErr).ErrorOrNil()
	}
	return append(removed, chsh.String()), err
}

func (p *Procedure) removeApps(ctx context.Context) ([]string, error) {
	ap := p.cfg.Profile.Apps

	var bundles []string
	for _, app := range ap.DMGs {
		bundles = append(bundles, filepath.Join(ap.ApplicationsDir, app.App))
	}
	removed, err := p.removePaths(ctx, bundles...)
	var errs *multierror.Error
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	brew := p.brew()
	if len(ap.Casks) > 0 && p.gw.Exists(brew) {
		for _, cask := range ap.Casks {
			uninstall := gateway.Command(brew, "uninstall", "--cask", cask)
			if err := p.gw.Execute(ctx, uninstall); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			removed = append(removed, uninstall.String())
		}
	}
	return removed, errs.ErrorOrNil()
}

// removeHomebrew runs the official uninstall script unattended.
func (p *Procedure) removeHomebrew(ctx context.Context) ([]string, error) {
	if !p.gw.Exists(p.brew()) {
		p.logger.Info("Homebrew is not installed")
		return nil, nil
	}

	work := p.cfg.Settings.WorkDir
	if err := p.gw.MkdirAll(ctx, work, 0o755); err != nil {
		return nil, err
	}
	script := filepath.Join(work, "homebrew-uninstall.sh")
	fetch := gateway.Command("curl", "-fsSL", "--retry", "3", "-o", script, p.cfg.Profile.Homebrew.UninstallURL).
		Describe("download the Homebrew uninstaller")
	if err := p.gw.Execute(ctx, fetch); err != nil {
		return nil, err
	}

	uninstall := gateway.Command("/bin/bash", script, "--force").
		WithEnv("NONINTERACTIVE=1").
		Attached().
		Describe("run the Homebrew uninstaller")
	if err := p.gw.Execute(ctx, uninstall); err != nil {
		return nil, err
	}
	return []string{p.cfg.Profile.Homebrew.Prefix}, nil
}

func (p *Procedure) removeState(ctx context.Context) ([]string, error) {
	s := p.cfg.Settings
	paths := []string{s.StateFile, s.LogFile}
	if s.JournalPath != "" {
		// SQLite keeps write-ahead files next to the database.
		paths = append(paths, s.JournalPath, s.JournalPath+"-wal", s.JournalPath+"-shm")
	}
	return p.removePaths(ctx, paths...)
}

func (p *Procedure) brew() string {
	return filepath.Join(p.cfg.Profile.Homebrew.Prefix, "bin", "brew")
}
