package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		store.Close()
	})
	return store, mock
}

func TestPostgresStore_SaveRun(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	run := sampleRun("run-1", time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC))
	examples := sampleExamples()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WithArgs(
			run.ID, run.CreatedAt, run.Provider, run.Model,
			run.OutputFormat, sqlmock.AnyArg(), run.Patients, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for i := range examples {
		mock.ExpectExec("INSERT INTO examples").
			WithArgs(
				run.ID, i, examples[i].UseCase, examples[i].Instruction,
				examples[i].InputContext, examples[i].Output,
				examples[i].PatientID, examples[i].PatientName,
				examples[i].TokensUsed, examples[i].GenerationTime, sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.SaveRun(ctx, run, examples))
}

func TestPostgresStore_SaveRunRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	run := sampleRun("run-1", time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := store.SaveRun(context.Background(), run, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save run")
}

func TestPostgresStore_GetRun(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "created_at", "provider", "model", "output_format", "use_cases", "patients", "stats",
	}).AddRow(
		"run-1", created, "openai", "gpt-4o-mini", "sharegpt",
		`["medical_qa"]`, 2, `{"total_examples":10,"successful":10}`,
	)
	mock.ExpectQuery("SELECT (.+) FROM runs").WithArgs("run-1").WillReturnRows(rows)

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "openai", run.Provider)
	assert.Equal(t, []string{"medical_qa"}, run.UseCases)
	assert.Equal(t, 10, run.Stats.TotalExamples)
}

func TestPostgresStore_GetRunNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	run, err := store.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestPostgresStore_ListRuns(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "created_at", "provider", "model", "output_format", "use_cases", "patients", "stats",
	}).
		AddRow("run-2", created, "numih", "jpacifico/Chocolatine-2-14B-Instruct-v2.0.3", "alpaca", `[]`, 1, `{}`).
		AddRow("run-1", created.Add(-time.Hour), "numih", "jpacifico/Chocolatine-2-14B-Instruct-v2.0.3", "alpaca", `[]`, 1, `{}`)
	mock.ExpectQuery("SELECT (.+) FROM runs").WithArgs(10, 0).WillReturnRows(rows)

	runs, err := store.ListRuns(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestPostgresStore_DeleteRun(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM examples").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM runs").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteRun(context.Background(), "run-1"))
}
