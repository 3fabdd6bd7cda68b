package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestAtomicWriteReplacesContent(t *testing.T) {
	fs := afero.NewMemMapFs()

	if err := AtomicWrite(fs, "/data/state", []byte("a=complete\n"), 0o644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(fs, "/data/state", []byte("b=complete\n"), 0o600); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := afero.ReadFile(fs, "/data/state")
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(data) != "b=complete\n" {
		t.Errorf("expected rewritten content, got %q", data)
	}

	entries, err := afero.ReadDir(fs, "/data")
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temp files to be gone, found %d entries", len(entries))
	}
}

func TestCopyFilePreservesMetadata(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := afero.WriteFile(fs, "/home/u/.zshrc", []byte("export A=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := fs.Chtimes("/home/u/.zshrc", mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(fs, "/home/u/.zshrc", "/snap/x/.zshrc"); err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	info, err := fs.Stat("/snap/x/.zshrc")
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("expected mtime %v, got %v", mtime, info.ModTime())
	}
}

func TestRelativeToHome(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "/home/u/.zshrc", want: ".zshrc"},
		{path: "/home/u/.config/git/config", want: ".config/git/config"},
		{path: "/etc/hosts", wantErr: true},
		{path: "/home/u", wantErr: true},
	}

	for _, tt := range tests {
		got, err := RelativeToHome("/home/u", tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.path)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.path, tt.want, got)
		}
	}
}

func TestCopyFileReplacesDestinationWithLink(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()

	src := filepath.Join(dir, "snap", ".vimrc")
	dst := filepath.Join(dir, "home", ".vimrc")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/nowhere/vimrc", src); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, dst, []byte("current"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(fs, src, dst); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	target, err := os.Readlink(dst)
	if err != nil {
		t.Fatalf("expected a symlink: %v", err)
	}
	if target != "/nowhere/vimrc" {
		t.Errorf("unexpected target %s", target)
	}
	if !IsSymlink(fs, dst) {
		t.Error("IsSymlink should report the copied link")
	}
}
