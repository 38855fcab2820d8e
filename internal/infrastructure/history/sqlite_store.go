package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// SQLiteStore persists pipeline reports in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.ReportRepository = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; also keeps in-memory databases on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			declared INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			exit_code INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS step_results (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			succeeded INTEGER NOT NULL,
			exit_code INTEGER,
			message TEXT,
			optional INTEGER NOT NULL DEFAULT 0,
			duration_ns INTEGER NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Save stores a report, replacing any previous report with the same run ID
func (s *SQLiteStore) Save(ctx context.Context, report *pipeline.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM step_results WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, report.RunID); err != nil {
			return fmt.Errorf("failed to replace run: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, declared, succeeded, exit_code, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Name, report.Declared, report.Succeeded(), report.ExitCode(),
		report.StartedAt.UnixNano(), report.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for i, result := range report.Results {
		var exitCode sql.NullInt64
		if result.ExitCode != nil {
			exitCode = sql.NullInt64{Int64: int64(*result.ExitCode), Valid: true}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO step_results (run_id, position, name, succeeded, exit_code, message, optional, duration_ns)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, i, result.Name, result.Succeeded, exitCode, result.Message, result.Optional, int64(result.Duration))
		if err != nil {
			return fmt.Errorf("failed to save step %s: %w", result.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// FindByID retrieves a report by its run ID
func (s *SQLiteStore) FindByID(ctx context.Context, runID string) (*pipeline.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, declared, started_at, finished_at FROM runs WHERE id = ?`, runID)

	report, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ports.ErrReportNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := s.loadResults(ctx, report); err != nil {
		return nil, err
	}

	return report, nil
}

// FindRecent returns up to limit reports, newest first
func (s *SQLiteStore) FindRecent(ctx context.Context, limit int) ([]*pipeline.Report, error) {
	if limit <= 0 {
		return []*pipeline.Report{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, declared, started_at, finished_at FROM runs
		 ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	reports := make([]*pipeline.Report, 0, limit)
	for rows.Next() {
		report, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	rows.Close()

	for _, report := range reports {
		if err := s.loadResults(ctx, report); err != nil {
			return nil, err
		}
	}

	return reports, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*pipeline.Report, error) {
	var (
		report            pipeline.Report
		started, finished int64
	)

	if err := row.Scan(&report.RunID, &report.Name, &report.Declared, &started, &finished); err != nil {
		return nil, err
	}

	report.StartedAt = time.Unix(0, started).UTC()
	report.FinishedAt = time.Unix(0, finished).UTC()
	report.Results = make([]pipeline.StepResult, 0, report.Declared)

	return &report, nil
}

func (s *SQLiteStore) loadResults(ctx context.Context, report *pipeline.Report) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, succeeded, exit_code, message, optional, duration_ns
		 FROM step_results WHERE run_id = ? ORDER BY position ASC`, report.RunID)
	if err != nil {
		return fmt.Errorf("failed to query step results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			result   pipeline.StepResult
			exitCode sql.NullInt64
			message  sql.NullString
			duration int64
		)

		if err := rows.Scan(&result.Name, &result.Succeeded, &exitCode, &message, &result.Optional, &duration); err != nil {
			return fmt.Errorf("failed to scan step result: %w", err)
		}

		if exitCode.Valid {
			code := int(exitCode.Int64)
			result.ExitCode = &code
		}
		result.Message = message.String
		result.Duration = time.Duration(duration)

		report.Append(result)
	}

	return rows.Err()
}
