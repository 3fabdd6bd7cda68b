package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// SnapshotInfo describes a snapshot directory.
type SnapshotInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Files     int       `json:"files"`
}

// IsSnapshotName reports whether name is a snapshot directory name.
func IsSnapshotName(name string) bool {
	if len(name) != len(SnapshotLayout) {
		return false
	}
	_, err := time.ParseInLocation(SnapshotLayout, name, time.Local)
	return err == nil
}

// ListSnapshots returns the snapshots under root, newest first. A missing
// root yields an empty list. Staging directories and unrelated entries are
// ignored.
func ListSnapshots(fs afero.Fs, root string) ([]SnapshotInfo, error) {
	entries, err := afero.ReadDir(fs, root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup root %s: %w", root, err)
	}

	var out []SnapshotInfo
	for _, e := range entries {
		if !e.IsDir() || !IsSnapshotName(e.Name()) {
			continue
		}
		created, _ := time.ParseInLocation(SnapshotLayout, e.Name(), time.Local)
		path := filepath.Join(root, e.Name())
		files, err := SnapshotFiles(fs, path)
		if err != nil {
			return nil, err
		}
		out = append(out, SnapshotInfo{
			Name:      e.Name(),
			Path:      path,
			CreatedAt: created,
			Files:     len(files),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// isEntry reports whether fi is something a snapshot holds: a regular file
// or a symlink.
func isEntry(fi os.FileInfo) bool {
	return fi.Mode().IsRegular() || fi.Mode()&os.ModeSymlink != 0
}

// LatestSnapshot returns the lexicographically greatest snapshot under root.
// ok is false when there is none.
func LatestSnapshot(fs afero.Fs, root string) (info SnapshotInfo, ok bool, err error) {
	snaps, err := ListSnapshots(fs, root)
	if err != nil || len(snaps) == 0 {
		return SnapshotInfo{}, false, err
	}
	return snaps[0], true, nil
}

// SnapshotFiles returns the paths of all regular files and symlinks under
// dir, relative to dir, sorted.
func SnapshotFiles(fs afero.Fs, dir string) ([]string, error) {
	var files []string
	err := afero.Walk(fs, dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !isEntry(fi) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
