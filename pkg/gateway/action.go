package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/apparentlymart/go-shquot/shquot"
)

// Action describes one external command. Arguments are passed to the
// program directly; nothing is ever concatenated into a shell string.
type Action struct {
	// Name is the program to run.
	Name string

	// Args are the program arguments.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the process environment.
	Env []string

	// Interactive attaches the terminal so the program can prompt the user.
	Interactive bool

	// Description is a short human label used in the audit log.
	Description string
}

// Command returns a new action running name with args.
func Command(name string, args ...string) Action {
	return Action{Name: name, Args: args}
}

// Describe sets the audit label.
func (a Action) Describe(description string) Action {
	a.Description = description
	return a
}

// InDir sets the working directory.
func (a Action) InDir(dir string) Action {
	a.Dir = dir
	return a
}

// WithEnv appends environment entries.
func (a Action) WithEnv(env ...string) Action {
	a.Env = append(append([]string(nil), a.Env...), env...)
	return a
}

// Attached marks the action as interactive.
func (a Action) Attached() Action {
	a.Interactive = true
	return a
}

// Argv returns the program followed by its arguments.
func (a Action) Argv() []string {
	return append([]string{a.Name}, a.Args...)
}

// Line joins the argv with single spaces, without quoting.
func (a Action) Line() string {
	return strings.Join(a.Argv(), " ")
}

// String renders the action as a POSIX shell command line, for logs only.
// The program name is left verbatim and the arguments are quoted.
func (a Action) String() string {
	cmd, args := shquot.POSIXShellSplit(a.Argv())
	if args == "" {
		return cmd
	}
	return cmd + " " + args
}

// Result holds the outcome of running an action.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ActionError reports a command that could not run or exited non-zero.
type ActionError struct {
	Action   Action
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Action.String(), e.ExitCode)
	if e.ExitCode < 0 && e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Action.String(), e.Err)
	}
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ActionError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Runner runs actions. The gateway owns the only Runner in a process.
type Runner interface {
	Run(ctx context.Context, a Action) (*Result, error)
}

// ExecRunner runs actions as child processes.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a runner attached to the process's terminal for
// interactive actions.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes a and returns its result. A non-zero exit is reported as an
// *ActionError alongside the result.
func (r *ExecRunner) Run(ctx context.Context, a Action) (*Result, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("action has no program")
	}

	cmd := exec.CommandContext(ctx, a.Name, a.Args...)
	if a.Dir != "" {
		cmd.Dir = a.Dir
	}
	if len(a.Env) > 0 {
		cmd.Env = append(os.Environ(), a.Env...)
	}

	var stdout, stderr bytes.Buffer
	if a.Interactive {
		cmd.Stdin = r.Stdin
		cmd.Stdout = io.MultiWriter(r.Stdout, &stdout)
		cmd.Stderr = io.MultiWriter(r.Stderr, &stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return result, &ActionError{Action: a, ExitCode: result.ExitCode, Stderr: result.Stderr, Err: err}
	}

	return result, nil
}
