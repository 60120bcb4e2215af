// Package upsert applies a change-set to storage inside the caller's transaction.
package upsert

import (
	"context"
	"fmt"
	"strconv"

	gerrors "github.com/go-faster/errors"
	"github.com/huandu/go-sqlbuilder"
	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/modules/campfin/changeset"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
	"github.com/nmcampfin/campfin-etl/pkg/repo"
)

// maxParams is PostgreSQL's bind parameter limit per statement.
const maxParams = 65535

// EntityResolver returns the Entity id for an upstream user id, creating the
// Entity when none exists. A nil userID always creates a fresh Entity.
type EntityResolver interface {
	GetOrCreate(ctx context.Context, kind string, userID *int64) (int64, bool, error)
}

type Result struct {
	Created         int
	Updated         int
	Unchanged       int
	EntitiesCreated int
	SlugsUpdated    int
	LinksResolved   int
	// Gaps are references whose parent row does not exist (yet).
	Gaps []Gap
	// IDs maps every applied key to its internal id.
	IDs map[string]int64
}

// Gap is an unresolved parent reference of one row.
type Gap struct {
	Key    string
	Field  string
	Parent string
	Ref    string
}

type Executor struct {
	entities  EntityResolver
	batchSize int
}

func NewExecutor(entities EntityResolver, batchSize int) *Executor {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Executor{entities: entities, batchSize: batchSize}
}

// Apply inserts new rows, patches the changed fields of changed rows and
// leaves unchanged rows alone. ctx must carry the enclosing transaction.
func (e *Executor) Apply(ctx context.Context, t *mapping.Table, cs changeset.ChangeSet) (Result, error) {
	res := Result{Unchanged: len(cs.Unchanged), IDs: make(map[string]int64, len(cs.Records))}
	for k, id := range cs.IDs {
		res.IDs[k] = id
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return res, err
	}

	if err := e.insertNew(ctx, tx, t, cs, &res); err != nil {
		return res, err
	}
	if err := e.updateChanged(ctx, tx, t, cs, &res); err != nil {
		return res, err
	}
	if t.SlugField != "" {
		touched := make([]string, 0, len(cs.New)+len(cs.Changed))
		touched = append(touched, cs.New...)
		touched = append(touched, cs.Changed...)
		for _, key := range touched {
			updated, err := e.applySlug(ctx, tx, t, res.IDs[key], cs.Records[key])
			if err != nil {
				return res, err
			}
			if updated {
				res.SlugsUpdated++
			}
		}
	}

	if len(t.Links) > 0 && len(res.IDs) > 0 {
		ids := make([]int64, 0, len(res.IDs))
		for _, id := range res.IDs {
			ids = append(ids, id)
		}
		if err := e.resolveLinks(ctx, tx, t, ids, &res); err != nil {
			return res, err
		}
	}

	if log := composables.UseLogger(ctx); log != nil {
		log.WithFields(logrus.Fields{
			"kind":             t.Kind,
			"created":          res.Created,
			"updated":          res.Updated,
			"unchanged":        res.Unchanged,
			"entities_created": res.EntitiesCreated,
		}).Debug("upsert applied")
	}
	return res, nil
}

func (e *Executor) insertNew(ctx context.Context, tx repo.Tx, t *mapping.Table, cs changeset.ChangeSet, res *Result) error {
	if len(cs.New) == 0 {
		return nil
	}
	cols := insertColumns(t)
	chunk := e.batchSize
	if limit := maxParams / len(cols); chunk > limit {
		chunk = limit
	}

	for start := 0; start < len(cs.New); start += chunk {
		end := min(start+chunk, len(cs.New))
		rows := make([][]any, 0, end-start)
		for _, key := range cs.New[start:end] {
			rec := cs.Records[key]
			row := make([]any, 0, len(cols))
			for _, f := range t.StorageFields() {
				row = append(row, rec.Values[f.Target])
			}
			if t.EntityKind != "" {
				entityID, created, err := e.entityFor(ctx, t, rec)
				if err != nil {
					return err
				}
				if created {
					res.EntitiesCreated++
				}
				row = append(row, entityID)
			}
			rows = append(rows, row)
		}

		query, args := BuildInsert(t, cols, rows)
		dbRows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return gerrors.Wrapf(err, "insert %s", t.StorageTable)
		}
		for dbRows.Next() {
			var id int64
			var key string
			if err := dbRows.Scan(&id, &key); err != nil {
				dbRows.Close()
				return gerrors.Wrap(err, "scan inserted id")
			}
			res.IDs[key] = id
			res.Created++
		}
		dbRows.Close()
		if err := dbRows.Err(); err != nil {
			return gerrors.Wrapf(err, "insert %s", t.StorageTable)
		}
	}
	return nil
}

func (e *Executor) updateChanged(ctx context.Context, tx repo.Tx, t *mapping.Table, cs changeset.ChangeSet, res *Result) error {
	for _, key := range cs.Changed {
		rec := cs.Records[key]
		var entityID *int64
		if t.EntityKind != "" {
			id, created, err := e.entityFor(ctx, t, rec)
			if err != nil {
				return err
			}
			if created {
				res.EntitiesCreated++
			}
			entityID = &id
		}
		query, args := BuildUpdate(t, cs.IDs[key], cs.ChangedFields[key], rec, entityID)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return gerrors.Wrapf(err, "update %s key %s", t.StorageTable, key)
		}
		res.Updated++
	}
	return nil
}

func (e *Executor) entityFor(ctx context.Context, t *mapping.Table, rec mapping.Record) (int64, bool, error) {
	var userID *int64
	if v, ok := rec.Int(t.EntityUserIDField); ok {
		userID = &v
	}
	id, created, err := e.entities.GetOrCreate(ctx, t.EntityKind, userID)
	if err != nil {
		return 0, false, gerrors.Wrapf(err, "resolve entity for %s %s", t.Kind, rec.Key)
	}
	return id, created, nil
}

func (e *Executor) applySlug(ctx context.Context, tx repo.Tx, t *mapping.Table, id int64, rec mapping.Record) (bool, error) {
	parts := make([]string, 0, len(t.SlugSources))
	for _, s := range t.SlugSources {
		parts = append(parts, rec.String(s))
	}
	return AssignSlug(ctx, tx, t.StorageTable, t.SlugField, id, parts...)
}

// AssignSlug derives the slug of one row from parts, suffixing the id when
// another row already holds the base slug. It reports whether the stored slug
// changed.
func AssignSlug(ctx context.Context, tx repo.Tx, table, column string, id int64, parts ...string) (bool, error) {
	slug := Slugify(parts...)
	if slug == "" {
		slug = strconv.FormatInt(id, 10)
	}

	query, args := BuildSlugTaken(table, column, slug, id)
	var taken bool
	if err := tx.QueryRow(ctx, query, args...).Scan(&taken); err != nil {
		return false, gerrors.Wrapf(err, "check slug %s", slug)
	}
	if taken {
		slug = fmt.Sprintf("%s-%d", slug, id)
	}

	query, args = BuildSlugUpdate(table, column, slug, id)
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, gerrors.Wrapf(err, "update slug %s", slug)
	}
	return tag.RowsAffected() > 0, nil
}

// resolveLinks fills the foreign key columns of the batch rows from their
// external references. Rows of earlier batches are relinked on the next
// import that touches them.
func (e *Executor) resolveLinks(ctx context.Context, tx repo.Tx, t *mapping.Table, ids []int64, res *Result) error {
	for _, l := range t.Links {
		tag, err := tx.Exec(ctx, BuildLink(t, l), ids)
		if err != nil {
			return gerrors.Wrapf(err, "link %s.%s", t.StorageTable, l.Column)
		}
		res.LinksResolved += int(tag.RowsAffected())

		rows, err := tx.Query(ctx, BuildLinkGaps(t, l), ids)
		if err != nil {
			return gerrors.Wrapf(err, "find gaps %s.%s", t.StorageTable, l.Column)
		}
		for rows.Next() {
			g := Gap{Field: l.Field, Parent: l.ParentTable}
			if err := rows.Scan(&g.Key, &g.Ref); err != nil {
				rows.Close()
				return gerrors.Wrap(err, "scan gap")
			}
			res.Gaps = append(res.Gaps, g)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return gerrors.Wrapf(err, "find gaps %s.%s", t.StorageTable, l.Column)
		}
	}
	return nil
}

func insertColumns(t *mapping.Table) []string {
	fields := t.StorageFields()
	cols := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		cols = append(cols, f.Target)
	}
	if t.EntityKind != "" {
		cols = append(cols, "entity_id")
	}
	return cols
}

// BuildInsert renders a multi-row insert returning (id, key::text).
func BuildInsert(t *mapping.Table, cols []string, rows [][]any) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(t.StorageTable)
	sb.Cols(cols...)
	for _, row := range rows {
		sb.Values(row...)
	}
	sb.SQL(fmt.Sprintf("RETURNING id, %s::text", t.KeyField))
	return sb.Build()
}

// BuildUpdate renders the patch of one changed row. The entity link is only
// filled when the stored row has none.
func BuildUpdate(t *mapping.Table, id int64, fields []string, rec mapping.Record, entityID *int64) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(t.StorageTable)
	assignments := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		assignments = append(assignments, sb.Assign(f, rec.Values[f]))
	}
	if entityID != nil {
		assignments = append(assignments, fmt.Sprintf("entity_id = COALESCE(entity_id, %s)", sb.Var(*entityID)))
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", id))
	return sb.Build()
}

func BuildSlugTaken(table, column, slug string, id int64) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("1")
	sb.From(table)
	sb.Where(sb.Equal(column, slug), sb.NotEqual("id", id))
	inner, args := sb.Build()
	return "SELECT EXISTS (" + inner + ")", args
}

func BuildSlugUpdate(table, column, slug string, id int64) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(sb.Assign(column, slug))
	sb.Where(
		sb.Equal("id", id),
		fmt.Sprintf("%s IS DISTINCT FROM %s", column, sb.Var(slug)),
	)
	return sb.Build()
}

// BuildLink renders the set-oriented link update for rows with id = ANY($1).
// Identifiers come from validated mapping tables.
func BuildLink(t *mapping.Table, l mapping.Link) string {
	return fmt.Sprintf(
		"UPDATE %[1]s AS c SET %[2]s = p.id FROM %[3]s AS p WHERE p.%[4]s = c.%[5]s AND c.id = ANY($1) AND c.%[2]s IS DISTINCT FROM p.id",
		t.StorageTable, l.Column, l.ParentTable, l.ParentKey, l.Field,
	)
}

func BuildLinkGaps(t *mapping.Table, l mapping.Link) string {
	return fmt.Sprintf(
		"SELECT c.%[1]s::text, c.%[2]s::text FROM %[3]s AS c WHERE c.id = ANY($1) AND c.%[2]s IS NOT NULL AND c.%[4]s IS NULL ORDER BY c.id",
		t.KeyField, l.Field, t.StorageTable, l.Column,
	)
}
