package filing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

var tracer = otel.Tracer("github.com/nmcampfin/campfin-etl/modules/campfin/filing")

type Repository interface {
	FindByKey(ctx context.Context, key Key) ([]Existing, error)
	Create(ctx context.Context, f Filing) (int64, error)
	// Update rewrites the stored row in place and keeps its dependents.
	Update(ctx context.Context, id int64, f Filing) error
	// Delete removes filings with all their dependents.
	Delete(ctx context.Context, ids []int64) error
	OpeningBalance(ctx context.Context, id int64) (*decimal.Decimal, error)
	SumDependents(ctx context.Context, id int64) (Sums, error)
	SaveTotals(ctx context.Context, id int64, t Totals) error
}

type Outcome struct {
	ID         int64
	Transition Transition
	Deleted    []int64
}

type Manager struct {
	repo Repository
	inTx func(context.Context, func(context.Context) error) error
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, inTx: inTx}
}

// Resolve applies one lifecycle transition for in, atomically.
func (m *Manager) Resolve(ctx context.Context, in Filing) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "filing.Manager.Resolve")
	defer span.End()

	var out Outcome
	err := m.inTx(ctx, func(txCtx context.Context) error {
		existing, err := m.repo.FindByKey(txCtx, in.Key)
		if err != nil {
			return errors.Wrap(err, "find filings")
		}
		out, err = m.apply(txCtx, Decide(existing, in), in)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	span.SetAttributes(
		attribute.String("transition", string(out.Transition)),
		attribute.Int64("filing_id", out.ID),
	)
	return out, nil
}

// Attach returns the authoritative filing for in.Key, creating it when the key
// has none. An existing final filing is linked as is, whatever its identity.
func (m *Manager) Attach(ctx context.Context, in Filing) (Outcome, error) {
	var out Outcome
	err := m.inTx(ctx, func(txCtx context.Context) error {
		existing, err := m.repo.FindByKey(txCtx, in.Key)
		if err != nil {
			return errors.Wrap(err, "find filings")
		}
		for _, e := range existing {
			if e.Final {
				out = Outcome{ID: e.ID, Transition: Link}
				return nil
			}
		}
		out, err = m.apply(txCtx, Decide(existing, in), in)
		return err
	})
	return out, err
}

func (m *Manager) apply(ctx context.Context, d Decision, in Filing) (Outcome, error) {
	out := Outcome{Transition: d.Transition}

	if len(d.Delete) > 0 {
		if err := m.repo.Delete(ctx, d.Delete); err != nil {
			return out, errors.Wrap(err, "delete superseded filings")
		}
		out.Deleted = d.Delete
	}

	switch d.Transition {
	case Create, CreatePending, Supersede:
		id, err := m.repo.Create(ctx, in)
		if err != nil {
			return out, errors.Wrap(err, "create filing")
		}
		out.ID = id
	case Link, Promote:
		if d.Transition == Link {
			in.Final = d.TargetFinal
		}
		if err := m.repo.Update(ctx, d.Target, in); err != nil {
			return out, errors.Wrap(err, "update filing")
		}
		out.ID = d.Target
	}

	if log := composables.UseLogger(ctx); log != nil {
		log.WithFields(logrus.Fields{
			"filing_id":  out.ID,
			"transition": out.Transition,
			"deleted":    len(out.Deleted),
			"key":        in.Key.String(),
		}).Debug("filing lifecycle")
	}
	return out, nil
}

// Recompute replaces the stored totals of one filing with sums over its
// current dependents.
func (m *Manager) Recompute(ctx context.Context, id int64) (Totals, error) {
	opening, err := m.repo.OpeningBalance(ctx, id)
	if err != nil {
		return Totals{}, err
	}
	sums, err := m.repo.SumDependents(ctx, id)
	if err != nil {
		return Totals{}, err
	}
	t := Compute(opening, sums)
	if err := m.repo.SaveTotals(ctx, id, t); err != nil {
		return Totals{}, errors.Wrapf(err, "save totals for filing %d", id)
	}
	return t, nil
}

// inTx joins the transaction already in ctx or starts one.
func inTx(ctx context.Context, fn func(context.Context) error) error {
	if composables.InExplicitTx(ctx) {
		return fn(ctx)
	}
	return composables.InTx(ctx, fn)
}
