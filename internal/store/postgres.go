package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/fhir-dataset-forge/internal/domain"
)

// PostgresStore implements domain.RunStore using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL run store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL run store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// SaveRun stores a run and its examples in one transaction. Saving a run
// with an existing id replaces its metadata and appends its examples.
func (s *PostgresStore) SaveRun(ctx context.Context, run *domain.Run, examples []domain.GeneratedExample) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			output_format = EXCLUDED.output_format,
			use_cases = EXCLUDED.use_cases,
			patients = EXCLUDED.patients,
			stats = EXCLUDED.stats
	`,
		run.ID, run.CreatedAt, run.Provider, run.Model,
		run.OutputFormat, string(useCases), run.Patients, string(stats),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
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
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
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

// GetRun retrieves one run by id, or nil when it does not exist.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, provider, model, output_format, use_cases, patients, stats
		FROM runs
		WHERE id = $1
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
func (s *PostgresStore) ListRuns(ctx context.Context, limit, offset int) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, provider, model, output_format, use_cases, patients, stats
		FROM runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
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
func (s *PostgresStore) GetExamples(ctx context.Context, runID string) ([]domain.GeneratedExample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT use_case, instruction, input_context, output,
			patient_id, patient_name, tokens_used, generation_time, metadata
		FROM examples
		WHERE run_id = $1
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
func (s *PostgresStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM examples WHERE run_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete examples: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	return tx.Commit()
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
