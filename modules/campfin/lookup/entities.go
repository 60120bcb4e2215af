package lookup

import (
	"context"
	"strconv"
)

// EntityStore is the uncached get-or-create for Entities.
type EntityStore interface {
	GetOrCreate(ctx context.Context, kind string, userID *int64) (int64, bool, error)
}

// Entities caches Entity ids by upstream user id for one batch.
type Entities struct {
	store EntityStore
	cache *Cache
}

func NewEntities(store EntityStore, cache *Cache) *Entities {
	return &Entities{store: store, cache: cache}
}

func (e *Entities) GetOrCreate(ctx context.Context, kind string, userID *int64) (int64, bool, error) {
	if userID == nil {
		return e.store.GetOrCreate(ctx, kind, nil)
	}
	created := false
	id, err := e.cache.GetOrLoad(ctx, "entity", strconv.FormatInt(*userID, 10), func(ctx context.Context) (int64, error) {
		id, c, err := e.store.GetOrCreate(ctx, kind, userID)
		created = c
		return id, err
	})
	return id, created, err
}
