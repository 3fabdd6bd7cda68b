package engine

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/openfroyo/bootstrap/pkg/gateway"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/spf13/afero"
)

// FinalizerOptions configures a Finalizer.
type FinalizerOptions struct {
	// Gateway performs the detach and removal effects.
	Gateway *gateway.Gateway

	// VolumesDir is scanned for transient mounts.
	VolumesDir string

	// MountPattern is a filepath.Match pattern for mount names to detach.
	MountPattern string

	// WorkDir holds transient downloads and is removed.
	WorkDir string

	// Telemetry is flushed and shut down last.
	Telemetry *telemetry.Telemetry

	// Closers are closed after telemetry, in order.
	Closers []io.Closer

	// SuccessMessage is logged when the run ended without error.
	SuccessMessage string

	// Timeout bounds the whole cleanup. Defaults to one minute.
	Timeout time.Duration
}

// Finalizer is the single cleanup routine of a process. It is registered
// once at startup and Finish runs its body exactly once, whatever the exit
// path.
type Finalizer struct {
	once   sync.Once
	opts   FinalizerOptions
	logger *telemetry.Logger
	code   int
}

// NewFinalizer creates a finalizer.
func NewFinalizer(opts FinalizerOptions) *Finalizer {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}
	if opts.SuccessMessage == "" {
		opts.SuccessMessage = "Completed successfully"
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Minute
	}
	return &Finalizer{
		opts:   opts,
		logger: opts.Telemetry.Logger.NewComponentLogger("cleanup"),
	}
}

// AddCloser registers c to be closed by Finish, after the closers given at
// construction.
func (f *Finalizer) AddCloser(c io.Closer) {
	f.opts.Closers = append(f.opts.Closers, c)
}

// Finish releases transient resources, logs the terminal outcome, flushes
// telemetry and returns the exit code for err. Calls after the first return
// the first call's code without doing anything.
func (f *Finalizer) Finish(err error) int {
	f.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.opts.Timeout)
		defer cancel()

		f.code = ExitCode(err)

		if f.opts.Gateway != nil {
			f.detachMounts(ctx)
			f.removeWorkDir(ctx)
		}

		f.logOutcome(err)

		if shutdownErr := f.opts.Telemetry.Shutdown(ctx); shutdownErr != nil {
			f.logger.WithError(shutdownErr).Warn("Telemetry shutdown failed")
		}
		for _, c := range f.opts.Closers {
			if c == nil {
				continue
			}
			_ = c.Close()
		}
	})
	return f.code
}

// detachMounts detaches every mount under VolumesDir whose name matches the
// pattern. Failures are logged and skipped.
func (f *Finalizer) detachMounts(ctx context.Context) {
	if f.opts.VolumesDir == "" || f.opts.MountPattern == "" {
		return
	}

	gw := f.opts.Gateway
	entries, err := afero.ReadDir(gw.FS(), f.opts.VolumesDir)
	if err != nil {
		f.logger.Debugf("No volumes to inspect under %s: %v", f.opts.VolumesDir, err)
		return
	}

	for _, entry := range entries {
		matched, err := filepath.Match(f.opts.MountPattern, entry.Name())
		if err != nil {
			f.logger.WithError(err).Warnf("Invalid mount pattern %q", f.opts.MountPattern)
			return
		}
		if !matched {
			continue
		}

		mount := filepath.Join(f.opts.VolumesDir, entry.Name())
		action := gateway.Command("hdiutil", "detach", mount, "-quiet").Describe("detach transient volume")
		if err := gw.Execute(ctx, action); err != nil {
			f.logger.WithError(err).Warnf("Failed to detach %s", mount)
		}
	}
}

func (f *Finalizer) removeWorkDir(ctx context.Context) {
	if f.opts.WorkDir == "" || !f.opts.Gateway.Exists(f.opts.WorkDir) {
		return
	}
	if err := f.opts.Gateway.RemoveAll(ctx, f.opts.WorkDir); err != nil {
		f.logger.WithError(err).Warnf("Failed to remove %s", f.opts.WorkDir)
	}
}

func (f *Finalizer) logOutcome(err error) {
	phase := FailedPhase(err)

	switch {
	case err == nil:
		f.logger.Info(f.opts.SuccessMessage)
	case IsInterrupted(err) && phase != "":
		f.logger.Errorf("Interrupted during phase %s", phase)
	case IsInterrupted(err):
		f.logger.Error("Interrupted")
	case IsPrecondition(err):
		f.logger.WithError(err).Error("Precondition failed, no phase was run")
	case IsValidation(err):
		f.logger.WithError(err).Error("Invalid configuration")
	case phase != "":
		f.logger.Errorf("Aborted: phase %s failed, fix the problem and run again to resume", phase)
	default:
		f.logger.WithError(err).Error("Aborted")
	}
}
