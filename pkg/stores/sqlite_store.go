package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/openfroyo/bootstrap/pkg/backup"
	"github.com/openfroyo/bootstrap/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is how timestamps are stored. It sorts lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the run journal. It implements engine.Journal and
// backup.Recorder.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var (
	_ engine.Journal  = (*SQLiteStore)(nil)
	_ backup.Recorder = (*SQLiteStore)(nil)
)

// Config holds SQLite store configuration
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// OpenJournal creates, initializes and migrates the journal at path.
func OpenJournal(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database connection and applies connection PRAGMAs.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the process is the only writer, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// StartRun records the start of a run.
func (s *SQLiteStore) StartRun(ctx context.Context, run engine.RunRecord) error {
	query := `
		INSERT INTO runs (id, mode, status, started_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, run.ID, run.Mode, string(run.Status), formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordPhase records a phase transition.
func (s *SQLiteStore) RecordPhase(ctx context.Context, event engine.PhaseEvent) error {
	if err := event.Status.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO phase_events (run_id, phase, status, resumed, message, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.Phase,
		string(event.Status),
		event.Resumed,
		nullString(event.Message),
		event.Duration.Milliseconds(),
		formatTime(event.At),
	)
	if err != nil {
		return fmt.Errorf("failed to record phase event: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status engine.RunStatus, failedPhase string, finishedAt time.Time) error {
	query := `
		UPDATE runs
		SET status = ?, failed_phase = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, string(status), nullString(failedPhase), formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// RecordBackup records a file copied into a snapshot.
func (s *SQLiteStore) RecordBackup(ctx context.Context, entry backup.Entry) error {
	query := `
		INSERT INTO backup_entries (run_id, snapshot, source, destination, at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		nullString(entry.RunID),
		entry.Snapshot,
		entry.Source,
		entry.Destination,
		formatTime(entry.At),
	)
	if err != nil {
		return fmt.Errorf("failed to record backup entry: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.RunRecord, error) {
	query := `
		SELECT id, mode, status, failed_phase, started_at, finished_at
		FROM runs
		WHERE id = ?
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*engine.RunRecord, error) {
	query := `
		SELECT id, mode, status, failed_phase, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// ListPhaseEvents returns the phase transitions of a run in order.
func (s *SQLiteStore) ListPhaseEvents(ctx context.Context, runID string) ([]engine.PhaseEvent, error) {
	query := `
		SELECT run_id, phase, status, resumed, message, duration_ms, at
		FROM phase_events
		WHERE run_id = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phase events: %w", err)
	}
	defer rows.Close()

	var events []engine.PhaseEvent
	for rows.Next() {
		var (
			e          engine.PhaseEvent
			status, at string
			message    sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&e.RunID, &e.Phase, &status, &e.Resumed, &message, &durationMS, &at); err != nil {
			return nil, fmt.Errorf("failed to scan phase event: %w", err)
		}
		e.Status = engine.PhaseStatus(status)
		e.Message = message.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating phase events: %w", err)
	}
	return events, nil
}

// ListBackupEntries returns the entries recorded for a snapshot name.
func (s *SQLiteStore) ListBackupEntries(ctx context.Context, snapshot string) ([]backup.Entry, error) {
	query := `
		SELECT run_id, snapshot, source, destination, at
		FROM backup_entries
		WHERE snapshot = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup entries: %w", err)
	}
	defer rows.Close()

	var entries []backup.Entry
	for rows.Next() {
		var (
			e     backup.Entry
			runID sql.NullString
			at    string
		)
		if err := rows.Scan(&runID, &e.Snapshot, &e.Source, &e.Destination, &at); err != nil {
			return nil, fmt.Errorf("failed to scan backup entry: %w", err)
		}
		e.RunID = runID.String
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*engine.RunRecord, error) {
	var (
		run                 engine.RunRecord
		status, started     string
		failedPhase, finish sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Mode, &status, &failedPhase, &started, &finish); err != nil {
		return nil, err
	}

	run.Status = engine.RunStatus(status)
	run.FailedPhase = failedPhase.String

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finish.Valid {
		t, err := parseTime(finish.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
