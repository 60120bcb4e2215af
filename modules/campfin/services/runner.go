package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nmcampfin/campfin-etl/modules/campfin/bookkeeping"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
	"github.com/nmcampfin/campfin-etl/pkg/runlock"
)

// RunOptions are shared by every import.
type RunOptions struct {
	DryRun bool
	// MinInterval skips the import when the kind succeeded more recently.
	MinInterval time.Duration
}

// Runner wraps one import with locking, skip-if-recent, bookkeeping and
// metrics. A nil Bookkeeper disables bookkeeping.
type Runner struct {
	locker  runlock.Locker
	lockTTL time.Duration
	books   Bookkeeper
	now     func() time.Time
}

func NewRunner(locker runlock.Locker, lockTTL time.Duration, books Bookkeeper) *Runner {
	if locker == nil {
		locker = runlock.Noop{}
	}
	return &Runner{locker: locker, lockTTL: lockTTL, books: books, now: time.Now}
}

func (r *Runner) Run(ctx context.Context, kind string, opts RunOptions, fn func(context.Context, *Summary) error) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "services.Import")
	defer span.End()
	span.SetAttributes(attribute.String("kind", kind), attribute.Bool("dry_run", opts.DryRun))

	s := newSummary(kind, composables.UseRunID(ctx))
	started := r.now()
	defer func() { recordSummary(s, r.now().Sub(started).Seconds()) }()

	if r.books != nil && opts.MinInterval > 0 {
		recent, last, err := r.books.Recent(ctx, kind, started, opts.MinInterval)
		if err != nil {
			s.fail(err)
			return s, err
		}
		if recent {
			s.Status = StatusSkipped
			s.skip(fmt.Sprintf("imported at %s, within %s", last.LastSuccessAt.Format(time.RFC3339), opts.MinInterval))
			logWithFields(ctx, logrus.InfoLevel, "import skipped, recently imported", logrus.Fields{"kind": kind})
			return s, nil
		}
	}

	lock, err := r.locker.Acquire(ctx, "import:"+kind, r.lockTTL)
	if err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			s.Status = StatusSkipped
			s.skip(err.Error())
			return s, nil
		}
		s.fail(err)
		return s, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logWithFields(ctx, logrus.WarnLevel, "release import lock", logrus.Fields{"kind": kind, "error": err})
		}
	}()

	if err := fn(ctx, s); err != nil {
		s.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logWithFields(ctx, logrus.ErrorLevel, "import failed", logrus.Fields{"kind": kind, "error": err})
		return s, err
	}
	if opts.DryRun && s.Status == StatusOK {
		s.Status = StatusDryRun
	}

	if r.books != nil && s.Status == StatusOK {
		if err := r.books.Record(ctx, bookkeeping.Import{
			Kind:          kind,
			LastSuccessAt: r.now(),
			LastRunID:     s.RunID,
			Created:       s.Created,
			Updated:       s.Updated,
			Unchanged:     s.Unchanged,
			Skipped:       s.Skipped,
		}); err != nil {
			s.fail(err)
			return s, err
		}
	}

	logWithFields(ctx, logrus.InfoLevel, "import finished", logrus.Fields{
		"kind":      kind,
		"status":    s.Status,
		"created":   s.Created,
		"updated":   s.Updated,
		"unchanged": s.Unchanged,
		"linked":    s.Linked,
		"skipped":   s.Skipped,
	})
	return s, nil
}
