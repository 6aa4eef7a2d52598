package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/gridci/gridci/pkg/report"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists run history in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a store for the database at path. Call Init before
// use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: path}, nil
}

// Init opens the database, enables WAL mode and foreign keys, and runs
// migrations.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// The default path lives under the user's home directory; SQLite does
	// not create missing parent directories itself.
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveReport persists a completed run and its job results in one transaction.
func (s *SQLiteStore) SaveReport(ctx context.Context, rep *report.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sum := rep.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, matrix, config_path, verdict, total, passed, failed,
			soft_failed, errored, aborted, excluded, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.Matrix, rep.ConfigPath, string(rep.Verdict),
		sum.Total, sum.Passed, sum.Failed, sum.SoftFailed, sum.Errored,
		sum.Aborted, sum.Excluded, rep.StartedAt, rep.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, res := range rep.Results {
		axes, err := json.Marshal(res.Job.Assignments)
		if err != nil {
			return fmt.Errorf("failed to encode job axes: %w", err)
		}
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_results (run_id, label, axes, status, exit_code, allowed, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.RunID, res.Job.Label(), string(axes), string(res.Status),
			res.ExitCode, res.AllowFailure, res.Duration().Milliseconds(), errMsg,
		)
		if err != nil {
			return fmt.Errorf("failed to insert job result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, matrix, config_path, verdict, total, passed, failed,
			soft_failed, errored, aborted, excluded, started_at, finished_at, created_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run := &RunRecord{}
		if err := rows.Scan(
			&run.ID, &run.Matrix, &run.ConfigPath, &run.Verdict,
			&run.Total, &run.Passed, &run.Failed, &run.SoftFailed,
			&run.Errored, &run.Aborted, &run.Excluded,
			&run.StartedAt, &run.FinishedAt, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	run := &RunRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, matrix, config_path, verdict, total, passed, failed,
			soft_failed, errored, aborted, excluded, started_at, finished_at, created_at
		FROM runs
		WHERE id = ?`, id).Scan(
		&run.ID, &run.Matrix, &run.ConfigPath, &run.Verdict,
		&run.Total, &run.Passed, &run.Failed, &run.SoftFailed,
		&run.Errored, &run.Aborted, &run.Excluded,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetJobResults retrieves the stored job results for a run, in insertion
// order (which is resolution order).
func (s *SQLiteStore) GetJobResults(ctx context.Context, runID string) ([]*JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, label, axes, status, exit_code, allowed, duration_ms, error
		FROM job_results
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job results: %w", err)
	}
	defer rows.Close()

	results := []*JobRecord{}
	for rows.Next() {
		jr := &JobRecord{}
		if err := rows.Scan(
			&jr.ID, &jr.RunID, &jr.Label, &jr.Axes, &jr.Status,
			&jr.ExitCode, &jr.Allowed, &jr.Duration, &jr.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job result: %w", err)
		}
		results = append(results, jr)
	}
	return results, rows.Err()
}

// PruneBefore deletes runs that started before the cutoff. Returns the number
// of runs removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}
