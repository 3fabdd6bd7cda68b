package provision

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openfroyo/bootstrap/pkg/fsutil"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/spf13/afero"
)

// ErrWaitTimeout is returned when an awaited path does not appear in time.
var ErrWaitTimeout = errors.New("timed out waiting for installation")

// Waiter blocks until an installer's artifact appears. It polls in bounded
// increments and, on the OS filesystem, also wakes on fsnotify events for
// the nearest existing parent directory.
type Waiter struct {
	fs       afero.Fs
	timeout  time.Duration
	interval time.Duration
	preview  bool
	logger   *telemetry.Logger
}

// NewWaiter creates a waiter. In preview mode nothing was installed, so
// waits return immediately.
func NewWaiter(fs afero.Fs, timeout, interval time.Duration, preview bool, logger *telemetry.Logger) *Waiter {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Waiter{
		fs:       fs,
		timeout:  timeout,
		interval: interval,
		preview:  preview,
		logger:   logger.NewComponentLogger("wait"),
	}
}

// WaitForPath returns once path exists. It fails with ErrWaitTimeout after
// the configured timeout and with the context error when ctx ends first.
func (w *Waiter) WaitForPath(ctx context.Context, path string) error {
	if w.preview {
		w.logger.Infof("[preview] wait for %s", path)
		return nil
	}
	if w.exists(path) {
		return nil
	}

	w.logger.Infof("Waiting up to %s for %s", w.timeout, path)

	waitCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher := w.watch(path); watcher != nil {
		defer watcher.Close()
		events, errs = watcher.Events, watcher.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s not present after %s", ErrWaitTimeout, path, w.timeout)
		case <-ticker.C:
		case <-events:
		case err := <-errs:
			w.logger.WithError(err).Debug("Watcher error")
		}

		if w.exists(path) {
			w.logger.Infof("%s is present", path)
			return nil
		}
	}
}

func (w *Waiter) exists(path string) bool {
	ok, err := fsutil.Exists(w.fs, path)
	return err == nil && ok
}

// watch subscribes to the nearest existing ancestor of path. It returns
// nil when watching is unavailable, which leaves polling alone.
func (w *Waiter) watch(path string) *fsnotify.Watcher {
	if _, ok := w.fs.(*afero.OsFs); !ok {
		return nil
	}

	dir := filepath.Dir(path)
	for !w.exists(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.WithError(err).Debug("fsnotify unavailable, polling only")
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		w.logger.WithError(err).Debugf("Cannot watch %s, polling only", dir)
		return nil
	}
	return watcher
}
