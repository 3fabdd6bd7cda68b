package engine

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/bootstrap/pkg/clock"
	"github.com/openfroyo/bootstrap/pkg/gateway"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/spf13/afero"
)

type countingCloser struct{ closed int }

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func setupTestFinalizer(t *testing.T) (*Finalizer, *gateway.FakeRunner, afero.Fs, *bytes.Buffer, *countingCloser) {
	t.Helper()

	var record bytes.Buffer
	tel := telemetry.NewNopTelemetry()
	tel.Logger = telemetry.NewLoggerWithWriters(
		telemetry.LoggingConfig{Level: "info"}, nil, &record, true,
		clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
	)

	fs := afero.NewMemMapFs()
	runner := gateway.NewFakeRunner()
	gw := gateway.New(gateway.Options{Runner: runner, FS: fs, Home: "/home/u", Telemetry: tel})

	closer := &countingCloser{}
	f := NewFinalizer(FinalizerOptions{
		Gateway:        gw,
		VolumesDir:     "/Volumes",
		MountPattern:   "bootstrap-*",
		WorkDir:        "/home/u/.bootstrap/work",
		Telemetry:      tel,
		Closers:        []io.Closer{closer},
		SuccessMessage: "Bootstrap complete",
	})
	return f, runner, fs, &record, closer
}

func TestFinishReleasesTransientResources(t *testing.T) {
	f, runner, fs, record, closer := setupTestFinalizer(t)

	for _, dir := range []string{"/Volumes/bootstrap-app", "/Volumes/Macintosh HD", "/home/u/.bootstrap/work/dl"} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if code := f.Finish(nil); code != ExitSuccess {
		t.Errorf("Expected exit 0, got %d", code)
	}

	cmds := runner.Commands()
	if len(cmds) != 1 || cmds[0] != "hdiutil detach /Volumes/bootstrap-app -quiet" {
		t.Errorf("Expected one detach of the matching volume, got %v", cmds)
	}
	if ok, _ := afero.DirExists(fs, "/home/u/.bootstrap/work"); ok {
		t.Error("Expected work dir to be removed")
	}
	if !strings.Contains(record.String(), "[2024-06-01 12:00:00] [INFO] Bootstrap complete") {
		t.Errorf("Expected success message, got %q", record.String())
	}
	if closer.closed != 1 {
		t.Errorf("Expected closer to be closed once, got %d", closer.closed)
	}
}

func TestFinishRunsOnce(t *testing.T) {
	f, _, _, record, closer := setupTestFinalizer(t)

	first := f.Finish(NewPhaseError("apps", errors.New("exit status 1")))
	second := f.Finish(nil)

	if first != ExitFailure || second != ExitFailure {
		t.Errorf("Expected the first outcome to stick, got %d then %d", first, second)
	}
	if closer.closed != 1 {
		t.Errorf("Expected a single cleanup, closer closed %d times", closer.closed)
	}
	if strings.Count(record.String(), "[ERROR]") != 1 {
		t.Errorf("Expected exactly one terminal message, got %q", record.String())
	}
	if !strings.Contains(record.String(), "phase apps failed") {
		t.Errorf("Expected the failing phase to be named, got %q", record.String())
	}
}

func TestFinishExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"success", nil, ExitSuccess},
		{"phase", NewPhaseError("shell", errors.New("boom")), ExitFailure},
		{"precondition", NewPreconditionError("unsupported platform linux", nil), ExitPrecondition},
		{"validation", NewValidationError("bad config", nil), ExitPrecondition},
		{"interrupted", NewInterruptedError("run interrupted", nil).WithPhase("apps"), ExitInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _, _, _, _ := setupTestFinalizer(t)
			if code := f.Finish(tt.err); code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, code)
			}
		})
	}
}
