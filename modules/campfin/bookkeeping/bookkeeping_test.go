package bookkeeping

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(sqlx.NewDb(db, "pgx")), mock
}

var importColumns = []string{"kind", "last_success_at", "last_run_id", "created", "updated", "unchanged", "skipped"}

func TestRepository_Get(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	mock.ExpectQuery(getImportQuery).
		WithArgs("candidate").
		WillReturnRows(sqlmock.NewRows(importColumns).AddRow("candidate", at, "run-1", 3, 1, 10, 0))

	imp, err := repo.Get(context.Background(), "candidate")
	require.NoError(t, err)
	require.Equal(t, Import{Kind: "candidate", LastSuccessAt: at, LastRunID: "run-1", Created: 3, Updated: 1, Unchanged: 10}, imp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetMissingIsNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(getImportQuery).WithArgs("pac").WillReturnRows(sqlmock.NewRows(importColumns))

	_, err := repo.Get(context.Background(), "pac")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Record(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	mock.ExpectExec(`
INSERT INTO etl_imports (kind, last_success_at, last_run_id, created, updated, unchanged, skipped)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (kind) DO UPDATE SET
	last_success_at = EXCLUDED.last_success_at,
	last_run_id = EXCLUDED.last_run_id,
	created = EXCLUDED.created,
	updated = EXCLUDED.updated,
	unchanged = EXCLUDED.unchanged,
	skipped = EXCLUDED.skipped`).
		WithArgs("filing", at, "run-2", 5, 0, 2, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Record(context.Background(), Import{
		Kind: "filing", LastSuccessAt: at, LastRunID: "run-2", Created: 5, Unchanged: 2, Skipped: 1,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Recent(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(getImportQuery).
		WithArgs("county").
		WillReturnRows(sqlmock.NewRows(importColumns).AddRow("county", now.Add(-time.Hour), "run-3", 0, 0, 4, 0))

	recent, imp, err := repo.Recent(context.Background(), "county", now, 6*time.Hour)
	require.NoError(t, err)
	require.True(t, recent)
	require.Equal(t, "run-3", imp.LastRunID)

	recent, _, err = repo.Recent(context.Background(), "county", now, 0)
	require.NoError(t, err)
	require.False(t, recent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShouldSkip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.False(t, ShouldSkip(time.Time{}, now, time.Hour))
	require.False(t, ShouldSkip(now.Add(-2*time.Hour), now, time.Hour))
	require.True(t, ShouldSkip(now.Add(-30*time.Minute), now, time.Hour))
	require.False(t, ShouldSkip(now, now, 0))
}
