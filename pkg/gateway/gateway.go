// Package gateway is the single chokepoint for environment-mutating effects.
//
// Phase bodies never call os/exec or write files directly. They describe
// the effect (a command, a file write, a symlink) and hand it to a Gateway.
// In apply mode the gateway performs it; in preview mode it only logs what
// would happen and reports success. Either way the effect is logged before
// anything is attempted, which gives an audit trail independent of outcome.
//
// Read-only queries (Succeeds, Output, Exists, ReadFile) run in both modes.
package gateway

import (
	"context"
	"fmt"
	"os"

	"github.com/openfroyo/bootstrap/pkg/fsutil"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/spf13/afero"
)

// Mode selects whether effects are performed.
type Mode string

const (
	// ModeApply performs effects.
	ModeApply Mode = "apply"

	// ModePreview logs effects without performing them.
	ModePreview Mode = "preview"
)

// Request is what a Guard sees before an effect is applied.
type Request struct {
	// Kind is "exec" or a file operation name (write, append, symlink,
	// mkdir, remove, remove_all, copy).
	Kind string `json:"kind"`

	// Mode is the gateway mode.
	Mode Mode `json:"mode"`

	// Command is the program and its arguments, for exec requests.
	Command []string `json:"command,omitempty"`

	// Path is the affected path, for file requests.
	Path string `json:"path,omitempty"`

	// Target is the second path of copy and symlink requests.
	Target string `json:"target,omitempty"`

	// Home is the home root, so rules can reason about paths outside it.
	Home string `json:"home"`
}

// Guard vets effects before they run. A non-nil error denies the effect.
type Guard interface {
	Check(ctx context.Context, req Request) error
}

// Options configures a Gateway.
type Options struct {
	Mode      Mode
	Runner    Runner
	FS        afero.Fs
	Guard     Guard
	Home      string
	Telemetry *telemetry.Telemetry
}

// Gateway performs or previews effects. It is not safe for concurrent use.
type Gateway struct {
	mode   Mode
	runner Runner
	fs     afero.Fs
	guard  Guard
	home   string
	tel    *telemetry.Telemetry
	logger *telemetry.Logger
}

// New creates a gateway. Missing options get working defaults: apply mode,
// an ExecRunner, the OS filesystem and no-op telemetry.
func New(opts Options) *Gateway {
	if opts.Mode == "" {
		opts.Mode = ModeApply
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner()
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}

	return &Gateway{
		mode:   opts.Mode,
		runner: opts.Runner,
		fs:     opts.FS,
		guard:  opts.Guard,
		home:   opts.Home,
		tel:    opts.Telemetry,
		logger: opts.Telemetry.Logger.NewComponentLogger("gateway"),
	}
}

// Mode returns the gateway mode.
func (g *Gateway) Mode() Mode {
	return g.mode
}

// Preview reports whether effects are suppressed.
func (g *Gateway) Preview() bool {
	return g.mode == ModePreview
}

// Home returns the home root the gateway reports to its guard.
func (g *Gateway) Home() string {
	return g.home
}

// FS returns the filesystem for read-only use by callers.
func (g *Gateway) FS() afero.Fs {
	return g.fs
}

// Execute runs a in apply mode; in preview mode it only logs a.
func (g *Gateway) Execute(ctx context.Context, a Action) error {
	req := Request{Kind: "exec", Command: a.Argv()}
	label := a.String()
	if a.Description != "" {
		label = a.Description + ": " + label
	}

	return g.effect(ctx, req, label, func(ctx context.Context) error {
		result, err := g.runner.Run(ctx, a)
		if result != nil {
			g.logger.Debugf("%s finished in %s", a.Name, result.Duration)
		}
		return err
	})
}

// Output runs a read-only command in either mode and returns its stdout.
// The query is logged like an effect so presence checks stay in the audit
// trail.
func (g *Gateway) Output(ctx context.Context, a Action) (string, error) {
	g.logger.Infof("[query] %s", a.String())
	result, err := g.runner.Run(ctx, a)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// Succeeds runs a read-only presence check in either mode. It reports whether
// the command exited zero.
func (g *Gateway) Succeeds(ctx context.Context, a Action) bool {
	_, err := g.Output(ctx, a)
	return err == nil
}

// Exists reports whether path exists.
func (g *Gateway) Exists(path string) bool {
	ok, err := fsutil.Exists(g.fs, path)
	return err == nil && ok
}

// ReadFile reads path in either mode.
func (g *Gateway) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(g.fs, path)
}

// WriteFile replaces path with data atomically.
func (g *Gateway) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	req := Request{Kind: "write", Path: path}
	return g.effect(ctx, req, fmt.Sprintf("write %s (%d bytes)", path, len(data)), func(context.Context) error {
		return fsutil.AtomicWrite(g.fs, path, data, perm)
	})
}

// AppendFile appends data to path, creating it when absent.
func (g *Gateway) AppendFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	req := Request{Kind: "append", Path: path}
	return g.effect(ctx, req, fmt.Sprintf("append %s (%d bytes)", path, len(data)), func(context.Context) error {
		f, err := g.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to append to %s: %w", path, err)
		}
		return f.Close()
	})
}

// MkdirAll creates path and its parents.
func (g *Gateway) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	req := Request{Kind: "mkdir", Path: path}
	return g.effect(ctx, req, "mkdir "+path, func(context.Context) error {
		return g.fs.MkdirAll(path, perm)
	})
}

// Symlink creates link pointing at target.
func (g *Gateway) Symlink(ctx context.Context, target, link string) error {
	req := Request{Kind: "symlink", Path: link, Target: target}
	return g.effect(ctx, req, fmt.Sprintf("symlink %s -> %s", link, target), func(context.Context) error {
		linker, ok := g.fs.(afero.Linker)
		if !ok {
			return fmt.Errorf("filesystem does not support symlinks")
		}
		return linker.SymlinkIfPossible(target, link)
	})
}

// Readlink returns the target of the symlink at path.
func (g *Gateway) Readlink(path string) (string, error) {
	reader, ok := g.fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("filesystem does not support symlinks")
	}
	return reader.ReadlinkIfPossible(path)
}

// Remove removes a file or empty directory.
func (g *Gateway) Remove(ctx context.Context, path string) error {
	req := Request{Kind: "remove", Path: path}
	return g.effect(ctx, req, "remove "+path, func(context.Context) error {
		return g.fs.Remove(path)
	})
}

// RemoveAll removes path recursively.
func (g *Gateway) RemoveAll(ctx context.Context, path string) error {
	req := Request{Kind: "remove_all", Path: path}
	return g.effect(ctx, req, "remove -r "+path, func(context.Context) error {
		return g.fs.RemoveAll(path)
	})
}

// CopyFile copies src to dst preserving permissions and timestamps.
func (g *Gateway) CopyFile(ctx context.Context, src, dst string) error {
	req := Request{Kind: "copy", Path: dst, Target: src}
	return g.effect(ctx, req, fmt.Sprintf("copy %s -> %s", src, dst), func(context.Context) error {
		return fsutil.CopyFile(g.fs, src, dst)
	})
}

// effect logs, guards, traces and (in apply mode) performs one effect.
func (g *Gateway) effect(ctx context.Context, req Request, label string, apply func(context.Context) error) error {
	req.Mode = g.mode
	req.Home = g.home

	g.logger.Infof("[%s] %s", g.mode, label)

	if g.guard != nil {
		if err := g.guard.Check(ctx, req); err != nil {
			if g.Preview() {
				g.logger.WithError(err).Warnf("[%s] would be denied: %s", g.mode, label)
			} else {
				g.tel.Metrics.RecordAction(req.Kind, string(g.mode), "denied")
				return fmt.Errorf("denied %s: %w", label, err)
			}
		}
	}

	if g.Preview() {
		g.tel.Metrics.RecordAction(req.Kind, string(g.mode), "skipped")
		return nil
	}

	spanCtx, span := g.tel.Tracer.StartActionSpan(ctx, req.Kind, label)
	err := apply(spanCtx)
	telemetry.EndSpan(span, err)

	if err != nil {
		g.tel.Metrics.RecordAction(req.Kind, string(g.mode), "failed")
		return err
	}
	g.tel.Metrics.RecordAction(req.Kind, string(g.mode), "ok")
	return nil
}
