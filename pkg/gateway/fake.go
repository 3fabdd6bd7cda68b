package gateway

import (
	"context"
	"strings"
)

// FakeRunner records actions instead of running them. Tests across packages
// use it to assert what a phase or rollback step would have executed.
type FakeRunner struct {
	// Calls lists every action passed to Run, in order.
	Calls []Action

	// Fail maps a command line prefix to the exit code it should fail with.
	// Command lines are the argv joined by single spaces (Action.Line).
	Fail map[string]int

	// Outputs maps a command line prefix to the stdout it should return.
	Outputs map[string]string

	// OnRun, when set, is called for each action before the result is
	// decided. It lets tests simulate side effects such as an installer
	// creating a directory.
	OnRun func(a Action)
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Fail:    make(map[string]int),
		Outputs: make(map[string]string),
	}
}

// Run records a and returns the configured outcome.
func (f *FakeRunner) Run(_ context.Context, a Action) (*Result, error) {
	f.Calls = append(f.Calls, a)
	if f.OnRun != nil {
		f.OnRun(a)
	}

	line := a.Line()
	for prefix, code := range f.Fail {
		if strings.HasPrefix(line, prefix) {
			res := &Result{ExitCode: code, Stderr: "fake failure"}
			return res, &ActionError{Action: a, ExitCode: code, Stderr: res.Stderr}
		}
	}

	res := &Result{}
	for prefix, out := range f.Outputs {
		if strings.HasPrefix(line, prefix) {
			res.Stdout = out
		}
	}
	return res, nil
}

// Commands returns the command lines of all recorded calls.
func (f *FakeRunner) Commands() []string {
	out := make([]string, len(f.Calls))
	for i, a := range f.Calls {
		out[i] = a.Line()
	}
	return out
}

// Ran reports whether any recorded command line starts with prefix.
func (f *FakeRunner) Ran(prefix string) bool {
	for _, a := range f.Calls {
		if strings.HasPrefix(a.Line(), prefix) {
			return true
		}
	}
	return false
}
