package state

import (
	"testing"

	"github.com/spf13/afero"
)

const testPath = "/home/u/.bootstrap/state"

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s, err := Open(afero.NewMemMapFs(), testPath)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if len(s.Snapshot()) != 0 {
		t.Errorf("expected empty mapping, got %v", s.Snapshot())
	}
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testPath, []byte("prerequisites=complete\ngarbage line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(fs, testPath)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one entry, got %v", snap)
	}
	if snap["prerequisites"] != StatusComplete {
		t.Errorf("expected prerequisites complete, got %v", snap)
	}
}

func TestMarkCompleteIsDurable(t *testing.T) {
	fs := afero.NewMemMapFs()

	s, err := Open(fs, testPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, phase := range []string{"prerequisites", "identity", "shell"} {
		if err := s.MarkComplete(phase); err != nil {
			t.Fatalf("mark %s failed: %v", phase, err)
		}
	}

	reloaded, err := Open(fs, testPath)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	for _, phase := range []string{"prerequisites", "identity", "shell"} {
		if !reloaded.IsComplete(phase) {
			t.Errorf("expected %s complete after reload", phase)
		}
	}
	if reloaded.IsComplete("dotfiles") {
		t.Error("expected dotfiles not complete")
	}

	data, err := afero.ReadFile(fs, testPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "prerequisites=complete\nidentity=complete\nshell=complete\n"
	if string(data) != want {
		t.Errorf("expected rewritten file %q, got %q", want, data)
	}
}

func TestMarkCompleteTwiceDoesNotDuplicate(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, testPath)

	if err := s.MarkComplete("shell"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkComplete("shell"); err != nil {
		t.Fatal(err)
	}

	data, _ := afero.ReadFile(fs, testPath)
	if string(data) != "shell=complete\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestMarkCompleteRejectsBadIdentifier(t *testing.T) {
	s := New(afero.NewMemMapFs(), testPath)
	if err := s.MarkComplete("a=b"); err == nil {
		t.Error("expected error for identifier containing '='")
	}
}
