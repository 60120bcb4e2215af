package upsert_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nmcampfin/campfin-etl/modules/campfin/changeset"
	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/lookup"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
	"github.com/nmcampfin/campfin-etl/modules/campfin/upsert"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
	"github.com/nmcampfin/campfin-etl/pkg/itf"
)

// apply maps rows as kind, diffs them against storage and applies the
// change-set in one transaction.
func apply(ctx context.Context, t *testing.T, kind string, rows ...map[string]string) (changeset.ChangeSet, upsert.Result) {
	t.Helper()
	tbl, ok := mapping.DefaultRegistry().Table(kind)
	require.True(t, ok, kind)
	mapper := mapping.NewMapper(time.UTC)

	batch := make([]mapping.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := mapper.Map(extract.NewRow(i+2, row), tbl)
		require.NoError(t, err)
		batch = append(batch, rec)
	}

	var cs changeset.ChangeSet
	var res upsert.Result
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		stored, err := persistence.NewSnapshotRepository().Load(txCtx, tbl, changeset.Keys(batch))
		if err != nil {
			return err
		}
		cs = changeset.Resolve(batch, stored, tbl)
		entities := lookup.NewEntities(persistence.NewEntityRepository(), lookup.New())
		res, err = upsert.NewExecutor(entities, 100).Apply(txCtx, tbl, cs)
		return err
	})
	require.NoError(t, err)
	return cs, res
}

func candidate(id, userID int64, email string) map[string]string {
	return map[string]string{
		"candidateid":  fmt.Sprint(id),
		"entityid":     fmt.Sprint(userID),
		"firstname":    "Jane",
		"lastname":     "Doe",
		"emailaccount": email,
	}
}

func TestExecutor_CandidatesReloadWithNameCollision(t *testing.T) {
	env := itf.Setup(t)

	_, res := apply(env.Ctx, t, mapping.KindCandidate,
		candidate(11, 501, "jane@example.org"),
		candidate(12, 502, "other.jane@example.org"),
	)
	require.Equal(t, 2, res.Created)
	require.Equal(t, 2, res.EntitiesCreated)
	require.Equal(t, 2, res.SlugsUpdated)
	require.Equal(t, int64(2), env.CountRows(t, "entities"))

	var distinct int64
	require.NoError(t, env.Pool.QueryRow(env.Ctx,
		"SELECT count(DISTINCT entity_id) FROM candidates").Scan(&distinct))
	require.Equal(t, int64(2), distinct, "one entity per upstream user id")

	var slug11, slug12 string
	var id12, entity11 int64
	require.NoError(t, env.Pool.QueryRow(env.Ctx,
		"SELECT slug, entity_id FROM candidates WHERE external_id = 11").Scan(&slug11, &entity11))
	require.NoError(t, env.Pool.QueryRow(env.Ctx,
		"SELECT id, slug FROM candidates WHERE external_id = 12").Scan(&id12, &slug12))
	require.Equal(t, "jane-doe", slug11)
	require.Equal(t, fmt.Sprintf("jane-doe-%d", id12), slug12)

	cs, res := apply(env.Ctx, t, mapping.KindCandidate,
		candidate(11, 501, "jane@example.org"),
		candidate(12, 502, "other.jane@example.org"),
	)
	require.Empty(t, cs.New)
	require.Empty(t, cs.Changed)
	require.Len(t, cs.Unchanged, 2)
	require.Zero(t, res.Created)
	require.Zero(t, res.Updated)
	require.Zero(t, res.EntitiesCreated)
	require.Zero(t, res.SlugsUpdated)
	require.Equal(t, int64(2), env.CountRows(t, "entities"))

	// a changed row keeps the entity it is already linked to
	cs, res = apply(env.Ctx, t, mapping.KindCandidate, candidate(11, 999, "jane@new.example.org"))
	require.Equal(t, []string{"11"}, cs.Changed)
	require.Equal(t, 1, res.Updated)
	var email string
	var entityAfter int64
	require.NoError(t, env.Pool.QueryRow(env.Ctx,
		"SELECT email, entity_id FROM candidates WHERE external_id = 11").Scan(&email, &entityAfter))
	require.Equal(t, "jane@new.example.org", email)
	require.Equal(t, entity11, entityAfter)
}

func TestExecutor_LinkGapsResolveOnceParentArrives(t *testing.T) {
	env := itf.Setup(t)
	district := map[string]string{"districtid": "7", "electionofficeid": "3", "description": "District 7"}

	_, res := apply(env.Ctx, t, mapping.KindDistrict, district)
	require.Equal(t, 1, res.Created)
	require.Zero(t, res.LinksResolved)
	require.Equal(t, []upsert.Gap{{Key: "7", Field: "office_external_id", Parent: "offices", Ref: "3"}}, res.Gaps)

	_, res = apply(env.Ctx, t, mapping.KindOffice, map[string]string{"electionofficeid": "3", "description": "State Senate"})
	require.Equal(t, 1, res.Created)

	cs, res := apply(env.Ctx, t, mapping.KindDistrict, district)
	require.Len(t, cs.Unchanged, 1)
	require.Equal(t, 1, res.LinksResolved)
	require.Empty(t, res.Gaps)

	var linked bool
	require.NoError(t, env.Pool.QueryRow(env.Ctx,
		"SELECT d.office_id = o.id FROM districts d JOIN offices o ON o.external_id = d.office_external_id").Scan(&linked))
	require.True(t, linked)
}
