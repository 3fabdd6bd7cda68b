// Package backup captures pre-mutation copies of files into timestamped
// snapshot directories.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openfroyo/bootstrap/pkg/clock"
	"github.com/openfroyo/bootstrap/pkg/fsutil"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/spf13/afero"
)

// SnapshotLayout is the time layout of snapshot directory names. Names sort
// lexicographically in creation order.
const SnapshotLayout = "20060102_150405"

const stagingPrefix = ".staging-"

// Entry is one file copied into a snapshot.
type Entry struct {
	RunID       string    `json:"run_id"`
	Snapshot    string    `json:"snapshot"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	At          time.Time `json:"at"`
}

// Recorder receives every entry written to a snapshot.
type Recorder interface {
	RecordBackup(ctx context.Context, entry Entry) error
}

// Options configures a Store.
type Options struct {
	FS        afero.Fs
	Root      string
	Home      string
	Clock     clock.Clock
	Preview   bool
	RunID     string
	Recorder  Recorder
	Telemetry *telemetry.Telemetry
}

// Store owns the snapshot directory of one run. The directory is created on
// the first backup and reused for the rest of the run. It is staged under a
// hidden name and renamed into place once it holds its first file, so a
// snapshot is never visible half-created.
type Store struct {
	fs       afero.Fs
	root     string
	home     string
	clock    clock.Clock
	preview  bool
	runID    string
	recorder Recorder
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger

	name     string
	snapshot string
	copies   map[string]string
}

// New creates a backup store.
func New(opts Options) *Store {
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}

	return &Store{
		fs:       opts.FS,
		root:     opts.Root,
		home:     opts.Home,
		clock:    opts.Clock,
		preview:  opts.Preview,
		runID:    opts.RunID,
		recorder: opts.Recorder,
		tel:      opts.Telemetry,
		logger:   opts.Telemetry.Logger.NewComponentLogger("backup"),
		copies:   make(map[string]string),
	}
}

// Snapshot returns the snapshot directory of this run, or "" if nothing has
// been backed up yet.
func (s *Store) Snapshot() string {
	return s.snapshot
}

// Backup copies path into the run's snapshot, mirroring its location
// relative to the home root, and returns the copy's path. A missing path is
// not an error and yields "". Directories are copied recursively. A symlink,
// dangling or not, is kept as a symlink with the same target. The first
// copy of a path within a run wins; later calls return the same copy.
func (s *Store) Backup(ctx context.Context, path string) (string, error) {
	path = filepath.Clean(path)

	if dst, ok := s.copies[path]; ok {
		s.logger.Debugf("%s already backed up to %s", path, dst)
		return dst, nil
	}

	info, err := fsutil.Lstat(s.fs, path)
	if os.IsNotExist(err) {
		s.logger.Debugf("Nothing to back up at %s", path)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	rel, err := fsutil.RelativeToHome(s.home, path)
	if err != nil {
		return "", err
	}

	if s.name == "" {
		s.name = s.clock.Now().Format(SnapshotLayout)
	}
	dst := filepath.Join(s.root, s.name, rel)

	if s.preview {
		s.logger.Infof("[preview] backup %s -> %s", path, dst)
		s.copies[path] = dst
		return dst, nil
	}

	s.logger.Infof("Backing up %s -> %s", path, dst)

	files, err := s.sources(path, info)
	if err != nil {
		return "", err
	}
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.copyOne(ctx, src); err != nil {
			return "", err
		}
	}

	s.copies[path] = dst
	return dst, nil
}

// sources lists the entries to copy for path. Symlinks, including a
// symlink at path itself, are copied as links and never followed.
func (s *Store) sources(path string, info os.FileInfo) ([]string, error) {
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err := afero.Walk(s.fs, path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if isEntry(fi) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	return files, nil
}

// copyOne copies a single file, creating the snapshot on first use.
func (s *Store) copyOne(ctx context.Context, src string) error {
	rel, err := fsutil.RelativeToHome(s.home, src)
	if err != nil {
		return err
	}

	if s.snapshot == "" {
		if err := s.createSnapshot(rel, src); err != nil {
			return err
		}
	} else if err := fsutil.CopyFile(s.fs, src, filepath.Join(s.snapshot, rel)); err != nil {
		return fmt.Errorf("failed to back up %s: %w", src, err)
	}

	dst := filepath.Join(s.snapshot, rel)
	s.tel.Metrics.RecordBackup()
	if s.recorder != nil {
		entry := Entry{
			RunID:       s.runID,
			Snapshot:    filepath.Base(s.snapshot),
			Source:      src,
			Destination: dst,
			At:          s.clock.Now(),
		}
		if err := s.recorder.RecordBackup(ctx, entry); err != nil {
			s.logger.WithError(err).Warnf("Failed to record backup of %s", src)
		}
	}
	return nil
}

// createSnapshot copies the first file into a staging directory and renames
// it to its final timestamped name.
func (s *Store) createSnapshot(rel, src string) error {
	final := filepath.Join(s.root, s.name)
	if ok, _ := fsutil.Exists(s.fs, final); ok {
		// Same second as an earlier run: share its directory.
		s.logger.Warnf("Snapshot %s already exists, adding to it", final)
		s.snapshot = final
		return fsutil.CopyFile(s.fs, src, filepath.Join(final, rel))
	}

	staging := filepath.Join(s.root, stagingPrefix+s.name)
	if err := s.fs.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := fsutil.CopyFile(s.fs, src, filepath.Join(staging, rel)); err != nil {
		return fmt.Errorf("failed to back up %s: %w", src, err)
	}
	if err := s.fs.Rename(staging, final); err != nil {
		return fmt.Errorf("failed to publish snapshot %s: %w", final, err)
	}

	s.snapshot = final
	s.logger.Infof("Created snapshot %s", final)
	return nil
}
