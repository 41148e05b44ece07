// Package store persists dataset build runs and their generated examples.
// Two backends are provided: SQLite for single-node deployments and
// PostgreSQL for shared ones. Both implement domain.RunStore.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/fhir-dataset-forge/internal/domain"
)

// SQLiteStore implements domain.RunStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite run store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		output_format TEXT NOT NULL,
		use_cases TEXT NOT NULL DEFAULT '[]',
		patients INTEGER NOT NULL DEFAULT 0,
		stats TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS examples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		use_case TEXT NOT NULL,
		instruction TEXT NOT NULL,
		input_context TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL DEFAULT '',
		patient_id TEXT NOT NULL DEFAULT '',
		patient_name TEXT NOT NULL DEFAULT '',
		tokens_used INTEGER NOT NULL DEFAULT 0,
		generation_time REAL NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}',
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_examples_run_id ON examples(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// SaveRun stores a run and its examples in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.Run, examples []domain.GeneratedExample) error {
	useCases, err := json.Marshal(run.UseCases)
	if err != nil {
		return fmt.Errorf("failed to marshal use cases: %w", err)
	}
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, provider, model, output_format, use_cases, patients, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.CreatedAt, run.Provider, run.Model,
		run.OutputFormat, string(useCases), run.Patients, string(stats),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, example := range examples {
		metadata, err := json.Marshal(example.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO examples (
				run_id, position, use_case, instruction, input_context, output,
				patient_id, patient_name, tokens_used, generation_time, metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID, i, example.UseCase, example.Instruction, example.InputContext,
			example.Output, example.PatientID, example.PatientName,
			example.TokensUsed, example.GenerationTime, string(metadata),
		)
		if err != nil {
			return fmt.Errorf("failed to insert example: %w", err)
		}
	}

	return tx.Commit()
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a row into a Run struct.
func scanRun(s scanner) (*domain.Run, error) {
	run := &domain.Run{}
	var useCases, stats string

	err := s.Scan(
		&run.ID, &run.CreatedAt, &run.Provider, &run.Model,
		&run.OutputFormat, &useCases, &run.Patients, &stats,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(useCases), &run.UseCases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal use cases: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return run, nil
}

// GetRun retrieves one run by id, or nil when it does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, provider, model, output_format, use_cases, patients, stats
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs ordered by creation time, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, provider, model, output_format, use_cases, patients, stats
		FROM runs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// GetExamples returns a run's examples in generation order.
func (s *SQLiteStore) GetExamples(ctx context.Context, runID string) ([]domain.GeneratedExample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT use_case, instruction, input_context, output,
			patient_id, patient_name, tokens_used, generation_time, metadata
		FROM examples
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	defer rows.Close()

	var result []domain.GeneratedExample
	for rows.Next() {
		var example domain.GeneratedExample
		var metadata string

		err := rows.Scan(
			&example.UseCase, &example.Instruction, &example.InputContext,
			&example.Output, &example.PatientID, &example.PatientName,
			&example.TokensUsed, &example.GenerationTime, &metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(metadata), &example.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		result = append(result, example)
	}
	return result, rows.Err()
}

// DeleteRun removes a run and its examples.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM examples WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete examples: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	return tx.Commit()
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
