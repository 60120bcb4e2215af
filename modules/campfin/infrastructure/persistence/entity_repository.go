package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"

	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

const (
	insertEntityQuery = `INSERT INTO entities (kind) VALUES ($1) RETURNING id`

	upsertEntityQuery = `
INSERT INTO entities (user_id, kind)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING id, (xmax = 0) AS inserted`

	stampEntityUserIDQuery = `UPDATE entities SET user_id = $1 WHERE id = $2 AND user_id IS NULL`
)

type EntityRepository struct{}

func NewEntityRepository() *EntityRepository {
	return &EntityRepository{}
}

// GetOrCreate returns the Entity of an upstream user id, inserting it when
// missing. Concurrent callers with the same user id get the same row. A nil
// userID always inserts.
func (r *EntityRepository) GetOrCreate(ctx context.Context, kind string, userID *int64) (int64, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, false, err
	}
	if userID == nil {
		var id int64
		if err := tx.QueryRow(ctx, insertEntityQuery, kind).Scan(&id); err != nil {
			return 0, false, gerrors.Wrap(err, "insert entity")
		}
		return id, true, nil
	}

	var id int64
	var inserted bool
	if err := tx.QueryRow(ctx, upsertEntityQuery, *userID, kind).Scan(&id, &inserted); err != nil {
		return 0, false, gerrors.Wrapf(err, "get or create entity for user %d", *userID)
	}
	return id, inserted, nil
}

// StampUserID records userID on an Entity that has none yet.
func (r *EntityRepository) StampUserID(ctx context.Context, entityID, userID int64) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, stampEntityUserIDQuery, userID, entityID); err != nil {
		return gerrors.Wrapf(mapPgError(err), "stamp user %d on entity %d", userID, entityID)
	}
	return nil
}
