// Package rollback reverses earlier provisioning runs.
//
// A rollback restores the files of one backup snapshot and then offers to
// remove what the phases installed, newest phase first. Every step asks its
// own confirmation. Removals are best-effort: a failed step is recorded and
// the remaining steps still run.
//
// Rollback runs outside the orchestrator. It only consumes the state file,
// the snapshots and the journal left behind by earlier runs.
package rollback

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/openfroyo/bootstrap/pkg/backup"
	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/gateway"
	"github.com/openfroyo/bootstrap/pkg/prompt"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

// Options configures a Procedure.
type Options struct {
	Gateway *gateway.Gateway
	Config  *config.File

	// Confirm gates every step. Force mode passes prompt.Always().
	Confirm prompt.Confirmer

	// Snapshot names the snapshot to restore. Empty selects the latest.
	Snapshot string

	Telemetry *telemetry.Telemetry
}

// Result summarizes a rollback.
type Result struct {
	// Snapshot is the restored snapshot name, "" when there was none.
	Snapshot string `json:"snapshot,omitempty"`

	// Restored lists home paths overwritten from the snapshot.
	Restored []string `json:"restored"`

	// Removed lists the artifacts removed or commands run.
	Removed []string `json:"removed"`

	// Skipped lists declined steps and files.
	Skipped []string `json:"skipped"`

	// Err aggregates best-effort failures. The rollback still ran every
	// other step.
	Err error `json:"-"`
}

// Procedure is one rollback invocation.
type Procedure struct {
	gw      *gateway.Gateway
	cfg     *config.File
	confirm prompt.Confirmer
	name    string
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
}

// New creates a rollback procedure.
func New(opts Options) *Procedure {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}
	if opts.Confirm == nil {
		opts.Confirm = prompt.Always()
	}
	return &Procedure{
		gw:      opts.Gateway,
		cfg:     opts.Config,
		confirm: opts.Confirm,
		name:    opts.Snapshot,
		tel:     opts.Telemetry,
		logger:  opts.Telemetry.Logger.NewComponentLogger("rollback"),
	}
}

// Run restores the snapshot and then walks the removal steps. The returned
// error is reserved for failures that stop the rollback, such as an unknown
// snapshot or an unreadable answer. Failed removals end up in Result.Err.
func (p *Procedure) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	var errs *multierror.Error
	failed, err := p.restore(ctx, res)
	if err != nil {
		return res, err
	}
	if failed != nil {
		errs = multierror.Append(errs, engine.NewBestEffortError("restore", failed).WithOperation("rollback"))
	}

	for _, s := range p.steps() {
		if err := ctx.Err(); err != nil {
			return res, engine.NewInterruptedError("rollback interrupted", err)
		}

		ok, err := p.confirm.Confirm(ctx, s.question)
		if err != nil {
			return res, p.promptError(ctx, err)
		}
		if ok && s.confirmAgain != "" {
			if ok, err = p.confirm.Confirm(ctx, s.confirmAgain); err != nil {
				return res, p.promptError(ctx, err)
			}
		}
		if !ok {
			p.logger.Infof("Skipping %s", s.name)
			res.Skipped = append(res.Skipped, s.name)
			p.tel.Metrics.RecordRollbackStep(s.name, "skipped")
			continue
		}

		removed, err := s.run(ctx)
		res.Removed = append(res.Removed, removed...)
		if err != nil {
			p.logger.WithError(err).Warnf("Rollback step %s failed, continuing", s.name)
			errs = multierror.Append(errs, engine.NewBestEffortError(s.name, err).WithOperation("rollback"))
			p.tel.Metrics.RecordRollbackStep(s.name, "failed")
			continue
		}
		p.tel.Metrics.RecordRollbackStep(s.name, "done")
	}

	res.Err = errs.ErrorOrNil()
	if res.Err != nil {
		p.logger.Warnf("Rollback finished with %d failed steps", errs.Len())
	} else {
		p.logger.Info("Rollback finished")
	}
	return res, nil
}

// restore copies every file of the selected snapshot back to its mirrored
// home path. Per-file failures are returned apart from an error that stops
// the rollback.
func (p *Procedure) restore(ctx context.Context, res *Result) (*multierror.Error, error) {
	fs := p.gw.FS()
	root := p.cfg.Settings.BackupRoot

	var snap backup.SnapshotInfo
	if p.name != "" {
		if !backup.IsSnapshotName(p.name) || !p.gw.Exists(filepath.Join(root, p.name)) {
			return nil, engine.NewValidationError(fmt.Sprintf("snapshot %q not found under %s", p.name, root), nil)
		}
		snap = backup.SnapshotInfo{Name: p.name, Path: filepath.Join(root, p.name)}
	} else {
		latest, ok, err := backup.LatestSnapshot(fs, root)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.logger.Info("No snapshots to restore")
			return nil, nil
		}
		snap = latest
	}
	res.Snapshot = snap.Name

	files, err := backup.SnapshotFiles(fs, snap.Path)
	if err != nil {
		return nil, err
	}
	p.logger.Infof("Restoring %d files from snapshot %s", len(files), snap.Name)

	var errs *multierror.Error
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, engine.NewInterruptedError("restore interrupted", err)
		}

		dst := p.cfg.HomePath(rel)
		ok, err := p.confirm.Confirm(ctx, fmt.Sprintf("Restore %s from snapshot %s?", dst, snap.Name))
		if err != nil {
			return nil, p.promptError(ctx, err)
		}
		if !ok {
			res.Skipped = append(res.Skipped, "restore "+rel)
			continue
		}

		if err := p.restoreFile(ctx, filepath.Join(snap.Path, rel), dst); err != nil {
			p.logger.WithError(err).Warnf("Failed to restore %s", dst)
			errs = multierror.Append(errs, err)
			continue
		}
		res.Restored = append(res.Restored, dst)
	}

	if errs != nil {
		p.tel.Metrics.RecordRollbackStep("restore", "failed")
		return errs, nil
	}
	p.tel.Metrics.RecordRollbackStep("restore", "done")
	return nil, nil
}

// restoreFile copies src over dst. A symlink at dst is removed first so the
// copy never writes through it into the linked repo.
func (p *Procedure) restoreFile(ctx context.Context, src, dst string) error {
	if _, err := p.gw.Readlink(dst); err == nil {
		if err := p.gw.Remove(ctx, dst); err != nil {
			return err
		}
	}
	return p.gw.CopyFile(ctx, src, dst)
}

// promptError classifies a failed confirmation: cancelled while waiting is
// an interrupt, anything else a precondition failure.
func (p *Procedure) promptError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return engine.NewInterruptedError("rollback interrupted", err)
	}
	return engine.NewPreconditionError("cannot read confirmation", err)
}
