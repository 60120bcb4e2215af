// Package merge folds alias rows into a primary row. What references a kind
// is declared once per kind as relation descriptors; one generic routine
// moves the references and removes the aliases.
package merge

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

// Relation is a column elsewhere that points at rows of a kind. Key names
// the referenced column: "id" or "external_id".
type Relation struct {
	Table  string
	Column string
	Key    string
}

type Kind struct {
	Name      string
	Table     string
	Relations []Relation
	// OwnsEntity marks kinds with one Entity per row. Rows hanging off the
	// alias Entities move to the primary's Entity.
	OwnsEntity bool
}

// EntityRelations point at entities.
var EntityRelations = []Relation{
	{Table: "filings", Column: "entity_id", Key: "id"},
}

var kinds = map[string]Kind{
	"candidate": {
		Name:  "candidate",
		Table: "candidates",
		Relations: []Relation{
			{Table: "campaigns", Column: "candidate_id", Key: "id"},
			{Table: "campaigns", Column: "candidate_external_id", Key: "external_id"},
		},
		OwnsEntity: true,
	},
	"pac": {
		Name:  "pac",
		Table: "pacs",
		Relations: []Relation{
			{Table: "campaigns", Column: "committee_id", Key: "id"},
		},
		OwnsEntity: true,
	},
	"contact": {
		Name:  "contact",
		Table: "contacts",
		Relations: []Relation{
			{Table: "transactions", Column: "contact_id", Key: "id"},
			{Table: "loans", Column: "contact_id", Key: "id"},
		},
	},
	"address": {
		Name:  "address",
		Table: "addresses",
		Relations: []Relation{
			{Table: "contacts", Column: "address_id", Key: "id"},
		},
	},
}

func Lookup(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for name := range kinds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type Result struct {
	Kind            string `json:"kind"`
	Primary         int64  `json:"primary"`
	Moved           int    `json:"moved"`
	Deleted         int    `json:"deleted"`
	EntitiesDeleted int    `json:"entities_deleted"`
}

// Statement is one step of a merge. Args are bound as $1 = primary id and
// $2 = alias ids.
type Statement struct {
	SQL string
	// Counts marks statements whose affected rows are references moved.
	Counts bool
}

// Plan renders the reference moves for k. Entity moves and deletes are
// rendered separately because they need ids read mid-merge.
func Plan(k Kind) []Statement {
	out := make([]Statement, 0, len(k.Relations))
	for _, r := range k.Relations {
		out = append(out, Statement{SQL: moveSQL(k.Table, r), Counts: true})
	}
	return out
}

func moveSQL(table string, r Relation) string {
	if r.Key == "id" {
		return fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = ANY($2)", r.Table, r.Column, r.Column)
	}
	return fmt.Sprintf(
		"UPDATE %[1]s SET %[2]s = p.%[3]s FROM %[4]s AS p WHERE p.id = $1 AND p.%[3]s IS NOT NULL AND %[1]s.%[2]s IN (SELECT %[3]s FROM %[4]s WHERE id = ANY($2) AND %[3]s IS NOT NULL)",
		r.Table, r.Column, r.Key, table,
	)
}

func deleteSQL(k Kind) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", k.Table)
}

func entitiesSQL(k Kind) string {
	entity := "NULL::bigint"
	if k.OwnsEntity {
		entity = "entity_id"
	}
	return fmt.Sprintf("SELECT id, %s FROM %s WHERE id = ANY($1)", entity, k.Table)
}

// orphanEntitiesSQL deletes alias entities nothing refers to any more.
const orphanEntitiesSQL = `
DELETE FROM entities e
WHERE e.id = ANY($1)
	AND NOT EXISTS (SELECT 1 FROM candidates c WHERE c.entity_id = e.id)
	AND NOT EXISTS (SELECT 1 FROM pacs p WHERE p.entity_id = e.id)
	AND NOT EXISTS (SELECT 1 FROM filings f WHERE f.entity_id = e.id)`

var (
	ErrNoAliases      = errors.New("no aliases given")
	ErrPrimaryIsAlias = errors.New("primary is also listed as an alias")
)

// Merge moves every reference to the aliases onto primary and deletes the
// aliases, in one transaction.
func Merge(ctx context.Context, k Kind, primary int64, aliases []int64) (Result, error) {
	res := Result{Kind: k.Name, Primary: primary}
	if len(aliases) == 0 {
		return res, ErrNoAliases
	}
	if slices.Contains(aliases, primary) {
		return res, errors.Wrapf(ErrPrimaryIsAlias, "primary %d", primary)
	}

	err := inTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}

		all := append([]int64{primary}, aliases...)
		rows, err := tx.Query(txCtx, entitiesSQL(k), all)
		if err != nil {
			return errors.Wrapf(err, "load %s rows", k.Name)
		}
		entityOf := make(map[int64]*int64, len(all))
		for rows.Next() {
			var id int64
			var entityID *int64
			if err := rows.Scan(&id, &entityID); err != nil {
				rows.Close()
				return errors.Wrap(err, "scan row")
			}
			entityOf[id] = entityID
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range all {
			if _, ok := entityOf[id]; !ok {
				return errors.Errorf("%s %d not found", k.Name, id)
			}
		}

		for _, st := range Plan(k) {
			tag, err := tx.Exec(txCtx, st.SQL, primary, aliases)
			if err != nil {
				return errors.Wrapf(err, "move references: %s", st.SQL)
			}
			if st.Counts {
				res.Moved += int(tag.RowsAffected())
			}
		}

		var aliasEntities []int64
		if k.OwnsEntity && entityOf[primary] != nil {
			for _, id := range aliases {
				if e := entityOf[id]; e != nil && *e != *entityOf[primary] {
					aliasEntities = append(aliasEntities, *e)
				}
			}
			for _, r := range EntityRelations {
				tag, err := tx.Exec(txCtx, moveSQL("entities", r), *entityOf[primary], aliasEntities)
				if err != nil {
					return errors.Wrapf(err, "move %s.%s", r.Table, r.Column)
				}
				res.Moved += int(tag.RowsAffected())
			}
		}

		tag, err := tx.Exec(txCtx, deleteSQL(k), aliases)
		if err != nil {
			return errors.Wrapf(err, "delete %s aliases", k.Name)
		}
		res.Deleted = int(tag.RowsAffected())

		if len(aliasEntities) > 0 {
			tag, err := tx.Exec(txCtx, orphanEntitiesSQL, aliasEntities)
			if err != nil {
				return errors.Wrap(err, "delete alias entities")
			}
			res.EntitiesDeleted = int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if log := composables.UseLogger(ctx); log != nil {
		log.WithFields(logrus.Fields{
			"kind":    k.Name,
			"primary": primary,
			"aliases": aliases,
			"moved":   res.Moved,
			"deleted": res.Deleted,
		}).Info("merged aliases")
	}
	return res, nil
}

func inTx(ctx context.Context, fn func(context.Context) error) error {
	if composables.InExplicitTx(ctx) {
		return fn(ctx)
	}
	return composables.InTx(ctx, fn)
}
