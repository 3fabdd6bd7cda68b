package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/openfroyo/bootstrap/pkg/clock"
	"github.com/rs/zerolog"
)

// RecordTimeFormat is the timestamp layout of every log record.
const RecordTimeFormat = "2006-01-02 15:04:05"

// Logger wraps two zerolog loggers: one for the interactive surface and one
// for the durable log file. Both render records as
//
//	[<YYYY-MM-DD HH:MM:SS>] [<LEVEL>] <message>
//
// Structured fields only reach the interactive surface.
type Logger struct {
	term   zerolog.Logger
	record zerolog.Logger
	err    error
	config LoggingConfig
	file   io.Closer
}

// NewLogger creates a logger writing to stderr and, when cfg.File is set, to
// the durable log file (opened for append, created on first use).
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var termOut io.Writer
	noColor := true
	if cfg.Console {
		termOut = os.Stderr
		noColor = !isatty.IsTerminal(os.Stderr.Fd())
	}

	var recordOut io.Writer
	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		recordOut = f
	}

	l := NewLoggerWithWriters(cfg, termOut, recordOut, noColor, clock.RealClock{})
	if file != nil {
		l.file = file
	}
	return l, nil
}

// NewLoggerWithWriters builds a logger on explicit sinks. A nil writer
// disables that sink.
func NewLoggerWithWriters(cfg LoggingConfig, term, record io.Writer, noColor bool, clk clock.Clock) *Logger {
	level := parseLogLevel(cfg.Level)
	stamp := timestampHook{clock: clk}

	termLog := zerolog.Nop()
	if term != nil {
		termLog = zerolog.New(recordWriter(term, noColor, cfg.ShowFields)).
			Level(level).
			Hook(stamp)
	}

	recordLevel := level
	if recordLevel < zerolog.InfoLevel {
		recordLevel = zerolog.InfoLevel
	}
	recordLog := zerolog.Nop()
	if record != nil {
		recordLog = zerolog.New(recordWriter(record, true, false)).
			Level(recordLevel).
			Hook(stamp)
	}

	return &Logger{
		term:   termLog,
		record: recordLog,
		config: cfg,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{term: zerolog.Nop(), record: zerolog.Nop()}
}

// recordWriter renders events in the record format.
func recordWriter(out io.Writer, noColor, showFields bool) zerolog.ConsoleWriter {
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprintf("[%v]", i)
		},
		FormatLevel: func(i interface{}) string {
			return "[" + levelLabel(i) + "]"
		},
	}
	if !showFields {
		w.FieldsExclude = excludedFields
	}
	return w
}

// excludedFields lists every field key the codebase attaches, so sinks that
// hide fields render nothing after the message.
var excludedFields = []string{
	"component", "run_id", "phase", "action", "mode", "error",
	"snapshot", "path", "status", "duration", "policy", "step",
}

// timestampHook stamps each event with the injected clock, pre-formatted.
type timestampHook struct {
	clock clock.Clock
}

func (h timestampHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str(zerolog.TimestampFieldName, h.clock.Now().Format(RecordTimeFormat))
}

// levelLabel maps zerolog level names onto record labels.
func levelLabel(i interface{}) string {
	s, _ := i.(string)
	switch s {
	case zerolog.LevelWarnValue:
		return "WARN"
	case "":
		return "INFO"
	default:
		return strings.ToUpper(s)
	}
}

// Close releases the durable log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NewComponentLogger creates a child logger for a specific component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.WithField("component", component)
}

// WithField returns a logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	c := *l
	c.term = l.term.With().Interface(key, value).Logger()
	return &c
}

// WithRunID adds a run_id field to the logger.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.WithField("run_id", runID)
}

// WithPhase adds a phase field to the logger.
func (l *Logger) WithPhase(phase string) *Logger {
	return l.WithField("phase", phase)
}

// WithError attaches err. The durable record appends it to the message.
func (l *Logger) WithError(err error) *Logger {
	c := *l
	c.err = err
	return &c
}

func (l *Logger) log(level zerolog.Level, msg string) {
	te := l.term.WithLevel(level)
	if l.err != nil {
		te = te.Err(l.err)
	}
	te.Msg(msg)

	if l.err != nil {
		msg = msg + ": " + l.err.Error()
	}
	l.record.WithLevel(level).Msg(msg)
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) { l.log(zerolog.DebugLevel, msg) }

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(zerolog.DebugLevel, fmt.Sprintf(format, args...))
}

// Info logs an info-level message.
func (l *Logger) Info(msg string) { l.log(zerolog.InfoLevel, msg) }

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(zerolog.InfoLevel, fmt.Sprintf(format, args...))
}

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) { l.log(zerolog.WarnLevel, msg) }

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(zerolog.WarnLevel, fmt.Sprintf(format, args...))
}

// Error logs an error-level message.
func (l *Logger) Error(msg string) { l.log(zerolog.ErrorLevel, msg) }

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(zerolog.ErrorLevel, fmt.Sprintf(format, args...))
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
