package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()

	cfg, err := Load(filepath.Join(home, "nope.yaml"), home)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Settings.StateFile != filepath.Join(home, ".bootstrap", "state") {
		t.Errorf("unexpected state file: %s", cfg.Settings.StateFile)
	}
	if cfg.Settings.BackupRoot != filepath.Join(home, ".bootstrap", "backups") {
		t.Errorf("unexpected backup root: %s", cfg.Settings.BackupRoot)
	}
	if cfg.Settings.InstallTimeout != 15*time.Minute {
		t.Errorf("unexpected install timeout: %v", cfg.Settings.InstallTimeout)
	}
}

func TestLoadOverridesFromYAML(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")

	doc := `
settings:
  data_dir: /var/tmp/bs
  install_timeout: 2m
profile:
  platform: linux
  identity:
    email: dev@example.com
  tweaks:
    - "defaults write com.apple.dock tilesize -int 36"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, home)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Settings.StateFile != "/var/tmp/bs/state" {
		t.Errorf("expected state under data dir, got %s", cfg.Settings.StateFile)
	}
	if cfg.Settings.InstallTimeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.Settings.InstallTimeout)
	}
	if cfg.Profile.Platform != "linux" {
		t.Errorf("expected platform linux, got %s", cfg.Profile.Platform)
	}
	if len(cfg.Profile.Tweaks) != 1 {
		t.Errorf("expected tweaks to be replaced, got %v", cfg.Profile.Tweaks)
	}
	if cfg.Profile.Shell.RCFile != ".zshrc" {
		t.Errorf("expected default rc file to survive, got %s", cfg.Profile.Shell.RCFile)
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")

	doc := `
profile:
  identity:
    email: not-an-email
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path, home); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestMarshalRoundTripsThroughLoad(t *testing.T) {
	home := t.TempDir()
	data, err := Default(home).Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	path := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, home); err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
}

func TestTildePathsFollowHomeOverride(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")

	doc := `
settings:
  data_dir: ~/.bs
  backup_root: ~/snapshots
  policies:
    - ~/policies/local.rego
profile:
  identity:
    key_path: ~/.ssh/work_ed25519
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, home)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if want := filepath.Join(home, ".bs"); cfg.Settings.DataDir != want {
		t.Errorf("expected data dir %s, got %s", want, cfg.Settings.DataDir)
	}
	if want := filepath.Join(home, ".bs", "state"); cfg.Settings.StateFile != want {
		t.Errorf("expected state file %s, got %s", want, cfg.Settings.StateFile)
	}
	if want := filepath.Join(home, "snapshots"); cfg.Settings.BackupRoot != want {
		t.Errorf("expected backup root %s, got %s", want, cfg.Settings.BackupRoot)
	}
	if want := filepath.Join(home, "policies", "local.rego"); len(cfg.Settings.Policies) != 1 || cfg.Settings.Policies[0] != want {
		t.Errorf("expected policy %s, got %v", want, cfg.Settings.Policies)
	}
	if want := filepath.Join(home, ".ssh", "work_ed25519"); cfg.HomePath(cfg.Profile.Identity.KeyPath) != want {
		t.Errorf("expected key path %s, got %s", want, cfg.HomePath(cfg.Profile.Identity.KeyPath))
	}
}
