package persistence

import (
	"context"
	"strconv"

	gerrors "github.com/go-faster/errors"
	"github.com/huandu/go-sqlbuilder"

	"github.com/nmcampfin/campfin-etl/modules/campfin/changeset"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

const snapshotChunk = 10000

type SnapshotRepository struct {
	chunk int
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{chunk: snapshotChunk}
}

// Load fetches the stored rows of t whose key is in keys, one query per chunk
// of keys. Keys without a stored row are absent from the result.
func (r *SnapshotRepository) Load(ctx context.Context, t *mapping.Table, keys []string) (map[string]changeset.Snapshot, error) {
	out := make(map[string]changeset.Snapshot, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	fields := changeset.ComparedFields(t)
	for start := 0; start < len(keys); start += r.chunk {
		end := min(start+r.chunk, len(keys))
		param, err := keyParam(t.KeyType(), keys[start:end])
		if err != nil {
			return nil, err
		}
		query, args := BuildSnapshotQuery(t, fields, param)
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return nil, gerrors.Wrapf(err, "load %s snapshot", t.StorageTable)
		}
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				rows.Close()
				return nil, gerrors.Wrap(err, "read snapshot row")
			}
			snap := changeset.Snapshot{Values: make(map[string]any, len(fields))}
			snap.ID, _ = values[0].(int64)
			key := mapping.KeyString(values[1])
			for i, f := range fields {
				snap.Values[f.Target] = values[i+2]
			}
			out[key] = snap
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, gerrors.Wrapf(err, "load %s snapshot", t.StorageTable)
		}
	}
	return out, nil
}

// BuildSnapshotQuery selects id, key and the compared fields of t for the
// given array of keys.
func BuildSnapshotQuery(t *mapping.Table, fields []mapping.Field, keys any) (string, []any) {
	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, "id", t.KeyField)
	for _, f := range fields {
		cols = append(cols, f.Target)
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(cols...)
	sb.From(t.StorageTable)
	sb.Where(t.KeyField + " = ANY(" + sb.Var(keys) + ")")
	return sb.Build()
}

func keyParam(typ mapping.TargetType, keys []string) (any, error) {
	if typ != mapping.TypeInteger {
		return keys, nil
	}
	ints := make([]int64, 0, len(keys))
	for _, k := range keys {
		v, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, gerrors.Wrapf(err, "integer key %q", k)
		}
		ints = append(ints, v)
	}
	return ints, nil
}
