package engine

import (
	"errors"
	"testing"
)

func TestPreflightPlatform(t *testing.T) {
	p := Preflight{Platform: "darwin", GOOS: "linux"}
	err := p.Check()
	if !IsPrecondition(err) {
		t.Fatalf("Expected precondition error, got %v", err)
	}
	if ExitCode(err) != ExitPrecondition {
		t.Errorf("Expected exit 2, got %d", ExitCode(err))
	}

	p.SkipPlatform = true
	if err := p.Check(); err != nil {
		t.Errorf("Expected skip to pass, got %v", err)
	}
}

func TestPreflightDiskSpace(t *testing.T) {
	free := uint64(5 * gib)
	p := Preflight{
		Platform:  "darwin",
		GOOS:      "darwin",
		MinFreeGB: 20,
		Path:      "/Users/me",
		FreeBytes: func(string) (uint64, error) { return free, nil },
	}

	err := p.Check()
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeDiskSpace {
		t.Fatalf("Expected disk space error, got %v", err)
	}

	free = 25 * gib
	if err := p.Check(); err != nil {
		t.Errorf("Expected enough space, got %v", err)
	}

	p.FreeBytes = func(string) (uint64, error) { return 0, errors.New("statfs failed") }
	if !IsPrecondition(p.Check()) {
		t.Error("Expected a free-space lookup failure to be a precondition error")
	}
}
