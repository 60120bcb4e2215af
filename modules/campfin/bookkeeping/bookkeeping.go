// Package bookkeeping records the last successful import per kind so that
// scheduled runs can skip kinds imported recently.
package bookkeeping

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("no import recorded")

type Import struct {
	Kind          string    `db:"kind" json:"kind"`
	LastSuccessAt time.Time `db:"last_success_at" json:"last_success_at"`
	LastRunID     string    `db:"last_run_id" json:"last_run_id"`
	Created       int       `db:"created" json:"created"`
	Updated       int       `db:"updated" json:"updated"`
	Unchanged     int       `db:"unchanged" json:"unchanged"`
	Skipped       int       `db:"skipped" json:"skipped"`
}

const (
	getImportQuery = `
SELECT kind, last_success_at, last_run_id, created, updated, unchanged, skipped
FROM etl_imports WHERE kind = $1`

	listImportsQuery = `
SELECT kind, last_success_at, last_run_id, created, updated, unchanged, skipped
FROM etl_imports ORDER BY kind`

	recordImportQuery = `
INSERT INTO etl_imports (kind, last_success_at, last_run_id, created, updated, unchanged, skipped)
VALUES (:kind, :last_success_at, :last_run_id, :created, :updated, :unchanged, :skipped)
ON CONFLICT (kind) DO UPDATE SET
	last_success_at = EXCLUDED.last_success_at,
	last_run_id = EXCLUDED.last_run_id,
	created = EXCLUDED.created,
	updated = EXCLUDED.updated,
	unchanged = EXCLUDED.unchanged,
	skipped = EXCLUDED.skipped`
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, kind string) (Import, error) {
	var imp Import
	if err := r.db.GetContext(ctx, &imp, getImportQuery, kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Import{}, ErrNotFound
		}
		return Import{}, err
	}
	return imp, nil
}

func (r *Repository) List(ctx context.Context) ([]Import, error) {
	var out []Import
	if err := r.db.SelectContext(ctx, &out, listImportsQuery); err != nil {
		return nil, err
	}
	return out, nil
}

// Record stores imp as the latest successful import of its kind.
func (r *Repository) Record(ctx context.Context, imp Import) error {
	_, err := r.db.NamedExecContext(ctx, recordImportQuery, imp)
	return err
}

// ShouldSkip reports whether a kind last imported at last is still fresh.
// A zero interval never skips.
func ShouldSkip(last time.Time, now time.Time, minInterval time.Duration) bool {
	if minInterval <= 0 || last.IsZero() {
		return false
	}
	return now.Sub(last) < minInterval
}

// Recent looks up kind and reports whether it was imported within
// minInterval of now.
func (r *Repository) Recent(ctx context.Context, kind string, now time.Time, minInterval time.Duration) (bool, Import, error) {
	if minInterval <= 0 {
		return false, Import{}, nil
	}
	imp, err := r.Get(ctx, kind)
	if errors.Is(err, ErrNotFound) {
		return false, Import{}, nil
	}
	if err != nil {
		return false, Import{}, err
	}
	return ShouldSkip(imp.LastSuccessAt, now, minInterval), imp, nil
}
