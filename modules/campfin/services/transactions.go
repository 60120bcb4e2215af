package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/modules/campfin/dependents"
	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
	"github.com/nmcampfin/campfin-etl/modules/campfin/filing"
	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/lookup"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

var ErrReplaceYearWithoutYear = errors.New("--replace-year requires --year")

type TransactionOptions struct {
	RunOptions
	Class    dependents.Class
	Year     int
	Quarters []int
	// ReplaceYear deletes the owner's dependents of the class in Year before
	// loading.
	ReplaceYear bool
}

func (o TransactionOptions) Validate() error {
	if o.Class != dependents.ClassContributions && o.Class != dependents.ClassExpenditures {
		return fmt.Errorf("unknown transaction class %q", o.Class)
	}
	if o.ReplaceYear && o.Year == 0 {
		return ErrReplaceYearWithoutYear
	}
	for _, q := range o.Quarters {
		if q < 1 || q > 4 {
			return fmt.Errorf("quarter %d out of range 1-4", q)
		}
	}
	return nil
}

// TransactionsImporter loads a CON or EXP export. Rows are grouped by the
// filing they belong to; each group replaces that filing's dependents of the
// class in one transaction.
type TransactionsImporter struct {
	registry   *mapping.Registry
	mapper     *mapping.Mapper
	owners     OwnerStore
	entities   EntityStore
	refs       ReferenceStore
	dependents DependentStore
	manager    *filing.Manager
	runner     *Runner
	extract    extract.Options
}

func NewTransactionsImporter(
	registry *mapping.Registry,
	mapper *mapping.Mapper,
	owners OwnerStore,
	entities EntityStore,
	refs ReferenceStore,
	deps DependentStore,
	manager *filing.Manager,
	runner *Runner,
	opts extract.Options,
) *TransactionsImporter {
	return &TransactionsImporter{
		registry:   registry,
		mapper:     mapper,
		owners:     owners,
		entities:   entities,
		refs:       refs,
		dependents: deps,
		manager:    manager,
		runner:     runner,
		extract:    opts,
	}
}

func classKind(c dependents.Class) string {
	if c == dependents.ClassExpenditures {
		return mapping.KindExpenditure
	}
	return mapping.KindContribution
}

func (i *TransactionsImporter) Import(ctx context.Context, path string, opts TransactionOptions) (*Summary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	kind := classKind(opts.Class)
	t, ok := i.registry.Table(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no mapping table", ErrUnsupportedKind, kind)
	}

	return i.runner.Run(ctx, kind, opts.RunOptions, func(ctx context.Context, s *Summary) error {
		records, skipped, err := i.read(path, t, s)
		if err != nil {
			return err
		}
		groups := dependents.GroupRecords(records, dependents.Filter{Year: opts.Year, Quarters: opts.Quarters})
		logWithFields(ctx, logrus.InfoLevel, "grouped transactions by filing", logrus.Fields{
			"kind":    kind,
			"rows":    len(records),
			"filings": len(groups),
			"year":    opts.Year,
		})

		return rehearse(ctx, opts.DryRun, func(ctx context.Context) error {
			run := &transactionRun{
				TransactionsImporter: i,
				opts:                 opts,
				summary:              s,
				cache:                lookup.New(),
				skipped:              skipped,
				replaced:             map[int64]bool{},
				touched:              map[int64]bool{},
			}
			defer run.cache.Reset()
			for _, g := range groups {
				if err := inTx(ctx, func(ctx context.Context) error { return run.loadGroup(ctx, g) }); err != nil {
					return fmt.Errorf("filing %s %q: %w", itoa(g.Key.OwnerUserID), g.Key.Description, err)
				}
			}
			return inTx(ctx, run.recomputeTouched)
		})
	})
}

// skippedRows counts rows that failed mapping, by the filing they name.
type skippedRows struct {
	byGroup map[dependents.GroupKey]int
	// unplaced rows name no readable filing.
	unplaced int
}

func (k skippedRows) in(g dependents.GroupKey) int {
	return k.byGroup[g] + k.unplaced
}

func (i *TransactionsImporter) read(path string, t *mapping.Table, s *Summary) ([]mapping.Record, skippedRows, error) {
	skipped := skippedRows{byGroup: map[dependents.GroupKey]int{}}
	src, err := extract.Open(path, i.extract)
	if err != nil {
		return nil, skipped, err
	}
	defer func() { _ = src.Close() }()

	group := t.Project("owner_user_id", "period_description", "period_start", "period_end")
	var out []mapping.Record
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out, skipped, nil
		}
		if err != nil {
			return nil, skipped, err
		}
		s.Found++
		rec, err := i.mapper.Map(row, t)
		if err != nil {
			s.skipRow(err)
			if part, perr := i.mapper.Map(row, group); perr == nil {
				skipped.byGroup[dependents.KeyOf(part)]++
			} else {
				skipped.unplaced++
			}
			continue
		}
		out = append(out, rec)
	}
}

// transactionRun is the state of one transactions import.
type transactionRun struct {
	*TransactionsImporter
	opts    TransactionOptions
	summary *Summary
	cache   *lookup.Cache
	skipped skippedRows
	// replaced holds owners whose year was already cleared.
	replaced map[int64]bool
	// touched holds filings that lost rows and were not reloaded.
	touched map[int64]bool
}

func (r *transactionRun) loadGroup(ctx context.Context, g dependents.Group) error {
	s := r.summary
	owners := NewOwnerResolver(r.owners, r.entities, r.cache)
	entityID, err := owners.Resolve(ctx, g.Key.OwnerUserID, g.CommitteeName)
	if err != nil {
		return fmt.Errorf("resolve owner: %w", err)
	}

	if r.opts.ReplaceYear && !r.replaced[entityID] {
		filings, n, err := r.dependents.DeleteYear(ctx, entityID, r.opts.Class, r.opts.Year)
		if err != nil {
			return err
		}
		r.replaced[entityID] = true
		s.Deleted += n
		for _, id := range filings {
			r.touched[id] = true
		}
	}

	start, end := g.Start, g.End
	periodID, err := r.cache.GetOrLoad(ctx, "filing_period", fmt.Sprintf("%s|%s|%s", g.Key.Description, start, end), func(ctx context.Context) (int64, error) {
		return r.refs.FilingPeriod(ctx, g.Key.Description, &start, &end, nil)
	})
	if err != nil {
		return err
	}
	out, err := r.manager.Attach(ctx, filing.Filing{
		Key:            filing.NewKey(entityID, g.Key.Description, start, end),
		Final:          true,
		FilingPeriodID: &periodID,
		DateClosed:     &end,
	})
	if err != nil {
		return err
	}
	filingTransitions.WithLabelValues(string(out.Transition)).Inc()
	if out.Transition == filing.Link {
		s.Linked++
	}

	incoming, dropped := r.build(g.Records)
	stored, err := r.dependents.Keys(ctx, out.ID, r.opts.Class, r.opts.Year)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(incoming))
	for _, d := range incoming {
		seen[d.SourceKey] = true
		if _, ok := stored[d.SourceKey]; ok {
			s.Unchanged++
			continue
		}
		resolved, err := r.resolve(ctx, d)
		if err != nil {
			return err
		}
		paymentTypeID := int64(0)
		if d.Kind == dependents.KindLoan {
			if paymentTypeID, err = r.contacts().loanTransactionType(ctx, dependents.LoanPayment); err != nil {
				return err
			}
		}
		inserted, err := r.dependents.Insert(ctx, out.ID, resolved, paymentTypeID)
		if err != nil {
			return err
		}
		if inserted {
			s.Created++
		} else {
			s.Unchanged++
		}
	}

	stale := make([]persistence.DependentRef, 0)
	for key, ref := range stored {
		if !seen[key] {
			stale = append(stale, ref)
		}
	}
	sort.Slice(stale, func(a, b int) bool { return stale[a].ID < stale[b].ID })
	// stored rows are only stale when every row of the filing was loaded
	if missing := dropped + r.skipped.in(g.Key); len(stale) > 0 && missing > 0 {
		s.warn(fmt.Sprintf("filing %s %q: kept %d stored rows, %d rows of the file were skipped",
			itoa(g.Key.OwnerUserID), g.Key.Description, len(stale), missing))
	} else if len(stale) > 0 {
		n, err := r.dependents.Delete(ctx, stale)
		if err != nil {
			return err
		}
		s.Deleted += n
	}

	if _, err := r.manager.Recompute(ctx, out.ID); err != nil {
		return err
	}
	delete(r.touched, out.ID)
	return nil
}

// build turns the records of one group into dependents with source keys.
// Rows of an unknown type are skipped and counted.
func (r *transactionRun) build(records []mapping.Record) ([]dependents.Dependent, int) {
	out := make([]dependents.Dependent, 0, len(records))
	dropped := 0
	for _, rec := range records {
		if r.opts.Class == dependents.ClassExpenditures {
			out = append(out, dependents.FromExpenditure(rec))
			continue
		}
		d, err := dependents.FromContribution(rec)
		if err != nil {
			r.summary.skip(fmt.Sprintf("%s line %d: %v", rec.Kind, rec.Line, err))
			dropped++
			continue
		}
		out = append(out, d)
	}
	dependents.AssignSourceKeys(out)
	return out, dropped
}

func (r *transactionRun) contacts() *contactResolver {
	return &contactResolver{refs: r.refs, cache: r.cache}
}

func (r *transactionRun) resolve(ctx context.Context, d dependents.Dependent) (persistence.ResolvedDependent, error) {
	out := persistence.ResolvedDependent{Dependent: d}
	cr := r.contacts()
	contactID, err := cr.resolve(ctx, d.Party)
	if err != nil {
		return out, fmt.Errorf("resolve contact: %w", err)
	}
	out.ContactID = contactID
	if d.Kind == dependents.KindTransaction {
		if out.TypeID, err = cr.transactionType(ctx, d.Type); err != nil {
			return out, fmt.Errorf("transaction type %q: %w", d.Type, err)
		}
	}
	return out, nil
}

// recomputeTouched refreshes totals of filings cleared by ReplaceYear that no
// group reloaded.
func (r *transactionRun) recomputeTouched(ctx context.Context) error {
	ids := make([]int64, 0, len(r.touched))
	for id := range r.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for _, id := range ids {
		if _, err := r.manager.Recompute(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
