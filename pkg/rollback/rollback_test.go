package rollback

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/gateway"
	"github.com/openfroyo/bootstrap/pkg/prompt"
	"github.com/spf13/afero"
)

type scriptedConfirmer struct {
	asked   []string
	decline []string

	// cancel, when set, is called on the first question, which then
	// reports the cancellation like a terminal read would.
	cancel context.CancelFunc
}

func (c *scriptedConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	c.asked = append(c.asked, question)
	if c.cancel != nil {
		c.cancel()
		return false, ctx.Err()
	}
	for _, d := range c.decline {
		if strings.Contains(question, d) {
			return false, nil
		}
	}
	return true, nil
}

func (c *scriptedConfirmer) Wait(context.Context, string) error { return nil }

type testRollback struct {
	home   string
	cfg    *config.File
	runner *gateway.FakeRunner
	gw     *gateway.Gateway
}

func setupTestRollback(t *testing.T, mode gateway.Mode) *testRollback {
	t.Helper()

	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default(home)
	cfg.Profile.Homebrew.Prefix = filepath.Join(home, "brew")
	cfg.Profile.Apps.ApplicationsDir = filepath.Join(home, "Applications")
	if err := cfg.Resolve(); err != nil {
		t.Fatal(err)
	}

	runner := gateway.NewFakeRunner()
	gw := gateway.New(gateway.Options{Mode: mode, Runner: runner, FS: afero.NewOsFs(), Home: home})
	return &testRollback{home: home, cfg: cfg, runner: runner, gw: gw}
}

func (tr *testRollback) procedure(confirm prompt.Confirmer, snapshot string) *Procedure {
	return New(Options{Gateway: tr.gw, Config: tr.cfg, Confirm: confirm, Snapshot: snapshot})
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func (tr *testRollback) seedSnapshots(t *testing.T) {
	t.Helper()
	root := tr.cfg.Settings.BackupRoot
	writeTestFile(t, filepath.Join(root, "20240101_000000", ".zshrc"), "first\n")
	writeTestFile(t, filepath.Join(root, "20240601_120000", ".zshrc"), "second\n")
	writeTestFile(t, filepath.Join(root, "20240601_120000", ".ssh", "config"), "Host *\n")
	writeTestFile(t, filepath.Join(tr.home, ".zshrc"), "current\n")
}

func TestRollbackRestoresLatestSnapshot(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	tr.seedSnapshots(t)

	res, err := tr.procedure(prompt.Always(), "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Snapshot != "20240601_120000" {
		t.Errorf("Expected latest snapshot, got %q", res.Snapshot)
	}
	if got := readTestFile(t, filepath.Join(tr.home, ".zshrc")); got != "second\n" {
		t.Errorf("Expected restored rc, got %q", got)
	}
	if got := readTestFile(t, filepath.Join(tr.home, ".ssh", "config")); got != "Host *\n" {
		t.Errorf("Expected restored ssh config, got %q", got)
	}
	if len(res.Restored) != 2 {
		t.Errorf("Expected 2 restored files, got %v", res.Restored)
	}
}

func TestRollbackRestoresNamedSnapshot(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	tr.seedSnapshots(t)

	res, err := tr.procedure(prompt.Always(), "20240101_000000").Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Snapshot != "20240101_000000" {
		t.Errorf("Expected named snapshot, got %q", res.Snapshot)
	}
	if got := readTestFile(t, filepath.Join(tr.home, ".zshrc")); got != "first\n" {
		t.Errorf("Expected first snapshot content, got %q", got)
	}
}

func TestRollbackUnknownSnapshotIsValidationError(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	tr.seedSnapshots(t)

	_, err := tr.procedure(prompt.Always(), "20990101_000000").Run(context.Background())
	if !engine.IsValidation(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if got := readTestFile(t, filepath.Join(tr.home, ".zshrc")); got != "current\n" {
		t.Errorf("Nothing may change for an unknown snapshot, got %q", got)
	}
}

func TestRollbackWithoutSnapshotsStillOffersRemovals(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	confirm := &scriptedConfirmer{}

	res, err := tr.procedure(confirm, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Snapshot != "" || len(res.Restored) != 0 {
		t.Errorf("Expected no restore, got %+v", res)
	}
	if len(confirm.asked) == 0 || !strings.Contains(confirm.asked[0], "dotfile links") {
		t.Errorf("Expected removals to be offered, asked %v", confirm.asked)
	}
}

func TestRollbackReplacesSymlinkWithoutTouchingRepo(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)

	repoFile := filepath.Join(tr.home, ".dotfiles", "vimrc")
	writeTestFile(t, repoFile, "repo\n")
	link := filepath.Join(tr.home, ".vimrc")
	if err := os.Symlink(repoFile, link); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, filepath.Join(tr.cfg.Settings.BackupRoot, "20240601_120000", ".vimrc"), "original\n")

	if _, err := tr.procedure(prompt.Always(), "").Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Readlink(link); err == nil {
		t.Error("Restored file must not be a symlink")
	}
	if got := readTestFile(t, link); got != "original\n" {
		t.Errorf("Expected original content, got %q", got)
	}
	if got := readTestFile(t, repoFile); got != "repo\n" {
		t.Errorf("Repo file was overwritten: %q", got)
	}
}

func TestRollbackAsksInReverseOrderWithSeparateHomebrewConfirmation(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	writeTestFile(t, filepath.Join(tr.cfg.Profile.Homebrew.Prefix, "bin", "brew"), "")
	confirm := &scriptedConfirmer{decline: []string{"every package it manages"}}

	res, err := tr.procedure(confirm, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"dotfile links", "ssh key", "toolchain", "shell framework", "applications", "Uninstall Homebrew", "every package it manages", "state file"}
	if len(confirm.asked) != len(want) {
		t.Fatalf("Expected %d questions, got %v", len(want), confirm.asked)
	}
	for i, w := range want {
		if !strings.Contains(confirm.asked[i], w) {
			t.Errorf("Question %d: expected %q, got %q", i, w, confirm.asked[i])
		}
	}

	if tr.runner.Ran("/bin/bash") || tr.runner.Ran("curl") {
		t.Errorf("Homebrew must not be removed without the second confirmation, ran %v", tr.runner.Commands())
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != StepHomebrew {
		t.Errorf("Expected only homebrew skipped, got %v", res.Skipped)
	}
}

func TestRollbackRemovesArtifacts(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	cfg := tr.cfg
	cfg.Profile.Dotfiles.Links = map[string]string{"vimrc": ".vimrc", "gitignore": ".gitignore"}

	repo := filepath.Join(tr.home, ".dotfiles")
	writeTestFile(t, filepath.Join(repo, "vimrc"), "x")
	if err := os.Symlink(filepath.Join(repo, "vimrc"), filepath.Join(tr.home, ".vimrc")); err != nil {
		t.Fatal(err)
	}
	// Replaced by the user since, so it stays.
	writeTestFile(t, filepath.Join(tr.home, ".gitignore"), "mine")

	key := filepath.Join(tr.home, ".ssh", "id_ed25519")
	writeTestFile(t, key, "key")
	writeTestFile(t, key+".pub", "pub")
	writeTestFile(t, filepath.Join(tr.home, ".nvm", "nvm.sh"), "")
	writeTestFile(t, filepath.Join(tr.home, ".oh-my-zsh", "oh-my-zsh.sh"), "")
	writeTestFile(t, cfg.Settings.StateFile, "prerequisites=complete\n")
	writeTestFile(t, cfg.Settings.LogFile, "log\n")

	if _, err := tr.procedure(prompt.Always(), "").Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, gone := range []string{
		filepath.Join(tr.home, ".vimrc"),
		key, key + ".pub",
		filepath.Join(tr.home, ".nvm"),
		filepath.Join(tr.home, ".oh-my-zsh"),
		cfg.Settings.StateFile,
		cfg.Settings.LogFile,
	} {
		if _, err := os.Lstat(gone); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be removed", gone)
		}
	}
	if got := readTestFile(t, filepath.Join(tr.home, ".gitignore")); got != "mine" {
		t.Errorf("Unmanaged file was touched: %q", got)
	}
	if !tr.runner.Ran("chsh -s /bin/bash") {
		t.Errorf("Expected login shell restore, got %v", tr.runner.Commands())
	}
}

func TestRollbackContinuesPastFailures(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	tr.runner.Fail["chsh"] = 1
	writeTestFile(t, tr.cfg.Settings.StateFile, "prerequisites=complete\n")

	res, err := tr.procedure(prompt.Always(), "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "chsh") {
		t.Errorf("Expected aggregated chsh failure, got %v", res.Err)
	}
	if _, err := os.Stat(tr.cfg.Settings.StateFile); !os.IsNotExist(err) {
		t.Error("Later steps must still run after a failure")
	}
}

func TestRollbackDryRunChangesNothing(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModePreview)
	tr.seedSnapshots(t)
	writeTestFile(t, tr.cfg.Settings.StateFile, "prerequisites=complete\n")
	writeTestFile(t, filepath.Join(tr.home, ".oh-my-zsh", "oh-my-zsh.sh"), "")

	res, err := tr.procedure(prompt.Always(), "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := readTestFile(t, filepath.Join(tr.home, ".zshrc")); got != "current\n" {
		t.Errorf("Dry run restored a file: %q", got)
	}
	for _, kept := range []string{tr.cfg.Settings.StateFile, filepath.Join(tr.home, ".oh-my-zsh")} {
		if _, err := os.Stat(kept); err != nil {
			t.Errorf("Dry run removed %s", kept)
		}
	}
	if len(tr.runner.Calls) != 0 {
		t.Errorf("Dry run ran %v", tr.runner.Commands())
	}
	if len(res.Restored) != 2 {
		t.Errorf("Dry run should still report what it would restore, got %v", res.Restored)
	}
}

func TestRollbackDeclinedRestoreIsSkipped(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	tr.seedSnapshots(t)
	confirm := &scriptedConfirmer{decline: []string{".zshrc"}}

	res, err := tr.procedure(confirm, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := readTestFile(t, filepath.Join(tr.home, ".zshrc")); got != "current\n" {
		t.Errorf("Declined file was restored: %q", got)
	}
	if len(res.Skipped) == 0 || res.Skipped[0] != "restore .zshrc" {
		t.Errorf("Expected skipped restore, got %v", res.Skipped)
	}
}

func TestRollbackCancelledAtPromptIsInterrupted(t *testing.T) {
	tr := setupTestRollback(t, gateway.ModeApply)
	writeTestFile(t, tr.cfg.Settings.StateFile, "prerequisites=complete\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	confirm := &scriptedConfirmer{cancel: cancel}

	_, err := tr.procedure(confirm, "").Run(ctx)
	if !engine.IsInterrupted(err) {
		t.Fatalf("Expected interruption, got %v", err)
	}
	if len(confirm.asked) != 1 {
		t.Errorf("Expected no questions after the cancellation, asked %v", confirm.asked)
	}
	if _, err := os.Stat(tr.cfg.Settings.StateFile); err != nil {
		t.Error("Nothing may be removed after an interrupted prompt")
	}
}
