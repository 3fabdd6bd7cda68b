package provision

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/gateway"
)

func (e *Env) dotfiles(ctx context.Context) error {
	logger := e.logger(PhaseDotfiles)
	df := e.profile().Dotfiles
	dir := e.home(df.Dir)

	switch {
	case df.Repo == "":
		logger.Infof("No dotfiles repo configured, using %s as is", dir)
	case e.Gateway.Exists(filepath.Join(dir, ".git")):
		pull := gateway.Command("git", "-C", dir, "pull", "--ff-only").Describe("update dotfiles")
		if err := e.Gateway.Execute(ctx, pull); err != nil {
			return fmt.Errorf("failed to update dotfiles: %w", err)
		}
	default:
		clone := gateway.Command("git", "clone", df.Repo, dir).Describe("clone dotfiles")
		if err := e.Gateway.Execute(ctx, clone); err != nil {
			return fmt.Errorf("failed to clone dotfiles: %w", err)
		}
	}

	for _, link := range df.SortedLinks() {
		if err := e.link(ctx, filepath.Join(dir, link[0]), e.home(link[1])); err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) verifyDotfiles(context.Context) bool {
	df := e.profile().Dotfiles
	dir := e.home(df.Dir)
	for _, link := range df.SortedLinks() {
		target, err := e.Gateway.Readlink(e.home(link[1]))
		if err != nil || target != filepath.Join(dir, link[0]) {
			return false
		}
	}
	return true
}

// link points path at target, backing up whatever path held before.
func (e *Env) link(ctx context.Context, target, path string) error {
	if current, err := e.Gateway.Readlink(path); err == nil && current == target {
		return nil
	}

	if _, err := e.Backup.Backup(ctx, path); err != nil {
		return err
	}
	if e.Gateway.Exists(path) {
		if err := e.Gateway.RemoveAll(ctx, path); err != nil {
			return fmt.Errorf("failed to replace %s: %w", path, err)
		}
	}
	if err := e.Gateway.MkdirAll(ctx, filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := e.Gateway.Symlink(ctx, target, path); err != nil {
		return fmt.Errorf("failed to link %s: %w", path, err)
	}
	return nil
}
