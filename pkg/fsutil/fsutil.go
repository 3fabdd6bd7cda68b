// Package fsutil provides filesystem helpers shared by the state store, the
// backup store and the execution gateway.
//
// All helpers operate on an afero.Fs so callers can run against the real OS
// filesystem in production and an in-memory filesystem in tests.
//
// Key features:
//   - Atomic writes using temp file + rename
//   - File copies that preserve permission bits and modification time
//   - Home-relative path mirroring for snapshot layouts
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Exists reports whether path exists. Symlinks are not followed when the
// filesystem supports Lstat.
func Exists(fs afero.Fs, path string) (bool, error) {
	var err error
	if lst, ok := fs.(afero.Lstater); ok {
		_, _, err = lst.LstatIfPossible(path)
	} else {
		_, err = fs.Stat(path)
	}
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// AtomicWrite writes data to path atomically using temp file + rename, so a
// reader observes either the previous content or the new content.
func AtomicWrite(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmpFile, err := afero.TempFile(fs, dir, ".bootstrap-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = fs.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := fs.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmpFile = nil
	return nil
}

// Lstat returns the FileInfo of path without following a final symlink
// when the filesystem supports it.
func Lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if lst, ok := fs.(afero.Lstater); ok {
		info, _, err := lst.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}

// IsSymlink reports whether path is a symlink.
func IsSymlink(fs afero.Fs, path string) bool {
	info, err := Lstat(fs, path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// CopyFile copies a regular file from src to dst, creating parent directories
// and carrying over permission bits and access/modification times. A symlink
// at src is copied as a symlink with the same target, whether or not the
// target exists; whatever dst held is replaced.
func CopyFile(fs afero.Fs, src, dst string) error {
	if IsSymlink(fs, src) {
		return copyLink(fs, src, dst)
	}

	srcInfo, err := fs.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if srcInfo.IsDir() {
		return fmt.Errorf("cannot copy directory %q as a file", src)
	}

	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close destination: %w", err)
	}

	// OpenFile honours umask, so set the mode explicitly.
	if err := fs.Chmod(dst, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to preserve permissions: %w", err)
	}
	if err := fs.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return fmt.Errorf("failed to preserve timestamps: %w", err)
	}

	return nil
}

func copyLink(fs afero.Fs, src, dst string) error {
	reader, ok := fs.(afero.LinkReader)
	if !ok {
		return fmt.Errorf("filesystem cannot read symlink %q", src)
	}
	linker, ok := fs.(afero.Linker)
	if !ok {
		return fmt.Errorf("filesystem cannot create symlink %q", dst)
	}

	target, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return fmt.Errorf("failed to read link %q: %w", src, err)
	}
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if _, err := Lstat(fs, dst); err == nil {
		if err := fs.Remove(dst); err != nil {
			return fmt.Errorf("failed to replace %q: %w", dst, err)
		}
	}
	if err := linker.SymlinkIfPossible(target, dst); err != nil {
		return fmt.Errorf("failed to link %q: %w", dst, err)
	}
	return nil
}

// RelativeToHome returns path relative to home. Paths outside home are
// rejected so a snapshot can never mirror a file above its own root.
func RelativeToHome(home, path string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(home), filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to relativize %q: %w", path, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is not inside home %q", path, home)
	}
	return rel, nil
}
