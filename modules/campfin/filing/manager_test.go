package filing

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memFiling struct {
	Filing
	deps []decimal.Decimal
}

type memRepo struct {
	next    int64
	filings map[int64]*memFiling
	totals  map[int64]Totals
}

func newMemRepo() *memRepo {
	return &memRepo{filings: map[int64]*memFiling{}, totals: map[int64]Totals{}}
}

func (r *memRepo) FindByKey(_ context.Context, key Key) ([]Existing, error) {
	var out []Existing
	for id, f := range r.filings {
		if f.Key == key {
			out = append(out, Existing{ID: id, Identity: f.Identity, Final: f.Final})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) Create(_ context.Context, f Filing) (int64, error) {
	r.next++
	r.filings[r.next] = &memFiling{Filing: f}
	return r.next, nil
}

func (r *memRepo) Update(_ context.Context, id int64, f Filing) error {
	r.filings[id].Filing = f
	return nil
}

func (r *memRepo) Delete(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(r.filings, id)
	}
	return nil
}

func (r *memRepo) OpeningBalance(_ context.Context, id int64) (*decimal.Decimal, error) {
	return r.filings[id].OpeningBalance, nil
}

func (r *memRepo) SumDependents(_ context.Context, id int64) (Sums, error) {
	var s Sums
	for _, a := range r.filings[id].deps {
		s.Contributions = s.Contributions.Add(a)
	}
	return s, nil
}

func (r *memRepo) SaveTotals(_ context.Context, id int64, t Totals) error {
	r.totals[id] = t
	return nil
}

func newTestManager(repo Repository) *Manager {
	m := NewManager(repo)
	m.inTx = func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	return m
}

func TestManager_SupersessionReplacesDependents(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	m := newTestManager(repo)

	first, err := m.Resolve(ctx, Filing{Key: q1, Identity: Identity{ReportID: 1}, Final: true})
	require.NoError(t, err)
	require.Equal(t, Create, first.Transition)
	repo.filings[first.ID].deps = []decimal.Decimal{d("100"), d("100"), d("100")}

	again, err := m.Resolve(ctx, Filing{Key: q1, Identity: Identity{ReportID: 1}, Final: true})
	require.NoError(t, err)
	require.Equal(t, Link, again.Transition)
	require.Equal(t, first.ID, again.ID)
	require.Len(t, repo.filings[first.ID].deps, 3)

	amended, err := m.Resolve(ctx, Filing{Key: q1, Identity: Identity{ReportID: 2}, Final: true})
	require.NoError(t, err)
	require.Equal(t, Supersede, amended.Transition)
	require.Equal(t, []int64{first.ID}, amended.Deleted)
	require.Len(t, repo.filings, 1)
	repo.filings[amended.ID].deps = []decimal.Decimal{d("100"), d("50")}

	totals, err := m.Recompute(ctx, amended.ID)
	require.NoError(t, err)
	require.True(t, d("150").Equal(totals.Contributions))
	require.True(t, d("150").Equal(repo.totals[amended.ID].Closing))
}

func TestManager_PromoteKeepsDependents(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	m := newTestManager(repo)

	pending, err := m.Resolve(ctx, Filing{Key: q1, Identity: Identity{ReportID: 1}})
	require.NoError(t, err)
	require.Equal(t, CreatePending, pending.Transition)
	repo.filings[pending.ID].deps = []decimal.Decimal{d("10")}

	final, err := m.Resolve(ctx, Filing{Key: q1, Identity: Identity{ReportID: 2}, Final: true})
	require.NoError(t, err)
	require.Equal(t, Promote, final.Transition)
	require.Equal(t, pending.ID, final.ID)
	require.True(t, repo.filings[pending.ID].Final)
	require.Len(t, repo.filings[pending.ID].deps, 1)
}

func TestManager_AttachLinksExistingFinal(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	m := newTestManager(repo)

	created, err := m.Attach(ctx, Filing{Key: q1, Final: true})
	require.NoError(t, err)
	require.Equal(t, Create, created.Transition)

	fromExport, err := m.Resolve(ctx, Filing{Key: q1, Identity: Identity{ReportID: 44}, Final: true})
	require.NoError(t, err)
	require.Equal(t, Link, fromExport.Transition)
	require.Equal(t, created.ID, fromExport.ID)
	require.Equal(t, int64(44), repo.filings[created.ID].Identity.ReportID)

	linked, err := m.Attach(ctx, Filing{Key: q1, Final: true})
	require.NoError(t, err)
	require.Equal(t, Link, linked.Transition)
	require.Equal(t, fromExport.ID, linked.ID)
	require.Len(t, repo.filings, 1)
}
