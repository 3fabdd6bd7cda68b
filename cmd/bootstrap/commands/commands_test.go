package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/bootstrap/pkg/engine"
)

func setupTestCLI(t *testing.T) (home, cfgPath string) {
	t.Helper()

	home = filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath = filepath.Join(home, "bootstrap.yaml")

	t.Cleanup(func() {
		configPath, homeDir, verbose = "", "", false
		sessionTerminal = os.Stderr
	})
	return home, cfgPath
}

func execute(t *testing.T, args ...string) int {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return engine.ExitSuccess
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return engine.ExitCode(err)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	home, cfgPath := setupTestCLI(t)

	if code := execute(t, "init", "--home", home, "--config", cfgPath); code != 0 {
		t.Fatalf("init exited %d", code)
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("Expected config file: %v", err)
	}
	if !strings.Contains(string(data), "state_file") {
		t.Errorf("Unexpected config content:\n%s", data)
	}

	if code := execute(t, "validate", "--home", home, "--config", cfgPath); code != 0 {
		t.Errorf("validate of the default config exited %d", code)
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	home, cfgPath := setupTestCLI(t)
	if err := os.WriteFile(cfgPath, []byte("settings: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := execute(t, "init", "--home", home, "--config", cfgPath); code != engine.ExitPrecondition {
		t.Errorf("Expected exit %d, got %d", engine.ExitPrecondition, code)
	}
	data, _ := os.ReadFile(cfgPath)
	if string(data) != "settings: {}\n" {
		t.Errorf("Existing config was replaced: %q", data)
	}
}

func TestValidateRejectsBadTweak(t *testing.T) {
	home, cfgPath := setupTestCLI(t)
	content := "profile:\n  tweaks:\n    - \"defaults write a b && reboot\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := execute(t, "validate", "--home", home, "--config", cfgPath); code != engine.ExitPrecondition {
		t.Errorf("Expected exit %d, got %d", engine.ExitPrecondition, code)
	}
}

func TestValidateRejectsBadYAML(t *testing.T) {
	home, cfgPath := setupTestCLI(t)
	if err := os.WriteFile(cfgPath, []byte("settings: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := execute(t, "validate", "--home", home, "--config", cfgPath); code != engine.ExitPrecondition {
		t.Errorf("Expected exit %d, got %d", engine.ExitPrecondition, code)
	}
}

func TestStatusAndSnapshotsOnFreshHome(t *testing.T) {
	home, cfgPath := setupTestCLI(t)

	for _, args := range [][]string{
		{"status"},
		{"snapshots"},
		{"history"},
	} {
		args = append(args, "--home", home, "--config", cfgPath)
		if code := execute(t, args...); code != 0 {
			t.Errorf("%v exited %d", args, code)
		}
	}

	if _, err := os.Stat(filepath.Join(home, ".bootstrap")); !os.IsNotExist(err) {
		t.Error("Read-only commands must not create the data dir")
	}
}

func TestRunWithBadConfigIsFinalized(t *testing.T) {
	home, cfgPath := setupTestCLI(t)
	if err := os.WriteFile(cfgPath, []byte("settings: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var terminal bytes.Buffer
	sessionTerminal = &terminal

	if code := execute(t, "run", "--home", home, "--config", cfgPath); code != engine.ExitPrecondition {
		t.Errorf("Expected exit %d, got %d", engine.ExitPrecondition, code)
	}
	if !strings.Contains(terminal.String(), "Invalid configuration") {
		t.Errorf("Expected the outcome on the terminal, got %q", terminal.String())
	}
}

func TestRollbackWithBrokenPolicyIsFinalized(t *testing.T) {
	home, cfgPath := setupTestCLI(t)
	if err := os.WriteFile(filepath.Join(home, "broken.rego"), []byte("package bootstrap\n\ndeny[msg] {\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, []byte("settings:\n  policies:\n    - ~/broken.rego\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := execute(t, "rollback", "--force", "--home", home, "--config", cfgPath); code != engine.ExitPrecondition {
		t.Errorf("Expected exit %d, got %d", engine.ExitPrecondition, code)
	}
	data, err := os.ReadFile(filepath.Join(home, ".bootstrap", "bootstrap.log"))
	if err != nil {
		t.Fatalf("Expected the durable log to exist: %v", err)
	}
	if !strings.Contains(string(data), "Invalid configuration") {
		t.Errorf("Expected the outcome in the durable log, got %q", data)
	}
}
