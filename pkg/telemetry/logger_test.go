package telemetry

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/bootstrap/pkg/clock"
)

func setupTestLogger(t *testing.T, level string) (*Logger, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	var term, record bytes.Buffer
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	logger := NewLoggerWithWriters(LoggingConfig{Level: level}, &term, &record, true, clk)
	return logger, &term, &record
}

func TestLoggerRecordFormat(t *testing.T) {
	logger, term, record := setupTestLogger(t, "info")

	logger.WithPhase("shell").Info("Phase shell complete")
	logger.Warn("low disk")
	logger.WithError(errors.New("exit status 1")).Error("Phase apps failed")

	want := strings.Join([]string{
		"[2024-06-01 12:00:00] [INFO] Phase shell complete",
		"[2024-06-01 12:00:00] [WARN] low disk",
		"[2024-06-01 12:00:00] [ERROR] Phase apps failed: exit status 1",
		"",
	}, "\n")
	if record.String() != want {
		t.Errorf("unexpected durable records:\n%s\nwant:\n%s", record.String(), want)
	}

	if !strings.Contains(term.String(), "[INFO] Phase shell complete") {
		t.Errorf("expected terminal to mirror records, got %q", term.String())
	}
}

func TestLoggerDebugStaysOffDurableLog(t *testing.T) {
	logger, term, record := setupTestLogger(t, "debug")

	logger.Debug("check brew")

	if record.Len() != 0 {
		t.Errorf("expected no durable debug records, got %q", record.String())
	}
	if !strings.Contains(term.String(), "[DEBUG] check brew") {
		t.Errorf("expected debug on terminal, got %q", term.String())
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("ignored")
	if err := logger.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}
