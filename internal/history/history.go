// Package history persists finished script executions in SQLite so they
// survive restarts and feed the gateway's execution API.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/flemzord/mcphub/internal/sandbox"
)

const defaultBusyTimeout = 5000 // milliseconds

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		id          TEXT PRIMARY KEY,
		state       TEXT    NOT NULL,
		exit_code   INTEGER NOT NULL DEFAULT 0,
		stdout      TEXT    NOT NULL DEFAULT '',
		stderr      TEXT    NOT NULL DEFAULT '',
		started_at  TEXT    NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_executions_started ON executions(started_at)`,
}

// Store is the execution log backed by one SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. The database uses
// WAL mode, a 5 s busy timeout, and a single connection (SQLite serialises
// writes). The schema is migrated automatically.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("history: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set busy_timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// migrate creates or updates the database schema to the latest version.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("history: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("history: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: migrate: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("history: record schema version: %w", err)
	}
	return nil
}

// Record implements sandbox.Recorder.
func (s *Store) Record(ctx context.Context, ex sandbox.Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO executions (id, state, exit_code, stdout, stderr, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.State, ex.ExitCode, ex.Stdout, ex.Stderr,
		ex.StartedAt.UTC().Format(time.RFC3339Nano), ex.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", ex.ID, err)
	}
	return nil
}

// Get returns one execution by id.
func (s *Store) Get(ctx context.Context, id string) (sandbox.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, state, exit_code, stdout, stderr, started_at, duration_ms
		 FROM executions WHERE id = ?`, id)
	return scanExecution(row)
}

// List returns the most recent executions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]sandbox.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, exit_code, stdout, stderr, started_at, duration_ms
		 FROM executions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []sandbox.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Prune removes executions older than the retention window and returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (sandbox.Execution, error) {
	var ex sandbox.Execution
	var startedAt string
	var durationMS int64
	if err := row.Scan(&ex.ID, &ex.State, &ex.ExitCode, &ex.Stdout, &ex.Stderr, &startedAt, &durationMS); err != nil {
		return sandbox.Execution{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return sandbox.Execution{}, fmt.Errorf("history: parsing started_at: %w", err)
	}
	ex.StartedAt = ts
	ex.Duration = time.Duration(durationMS) * time.Millisecond
	return ex, nil
}
