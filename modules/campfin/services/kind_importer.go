package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/modules/campfin/changeset"
	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
	"github.com/nmcampfin/campfin-etl/modules/campfin/filing"
	"github.com/nmcampfin/campfin-etl/modules/campfin/lookup"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
	"github.com/nmcampfin/campfin-etl/modules/campfin/upsert"
)

var ErrUnsupportedKind = errors.New("kind is not loaded through the generic pipeline")

// KindImporter loads reference kinds through extract, map, resolve and apply.
// A run commits in one transaction; rows are resolved and written in batches.
type KindImporter struct {
	registry  *mapping.Registry
	mapper    *mapping.Mapper
	snapshots SnapshotLoader
	entities  EntityStore
	runner    *Runner
	batchSize int
	extract   extract.Options
}

func NewKindImporter(
	registry *mapping.Registry,
	mapper *mapping.Mapper,
	snapshots SnapshotLoader,
	entities EntityStore,
	runner *Runner,
	batchSize int,
	opts extract.Options,
) *KindImporter {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &KindImporter{
		registry:  registry,
		mapper:    mapper,
		snapshots: snapshots,
		entities:  entities,
		runner:    runner,
		batchSize: batchSize,
		extract:   opts,
	}
}

// Import loads the extract at path as kind. A malformed source aborts the
// run and rolls back every batch; rows that fail to map are skipped and
// reported.
func (i *KindImporter) Import(ctx context.Context, kind, path string, opts RunOptions) (*Summary, error) {
	if !slices.Contains(mapping.PipelineKinds, kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	t, ok := i.registry.Table(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no mapping table", ErrUnsupportedKind, kind)
	}

	return i.runner.Run(ctx, kind, opts, func(ctx context.Context, s *Summary) error {
		src, err := extract.Open(path, i.extract)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		return rehearse(ctx, opts.DryRun, func(ctx context.Context) error {
			return inTx(ctx, func(txCtx context.Context) error {
				return i.stream(txCtx, src, t, s)
			})
		})
	})
}

// stream maps the rows of src and applies them batch by batch.
func (i *KindImporter) stream(ctx context.Context, src *extract.Source, t *mapping.Table, s *Summary) error {
	batch := make([]mapping.Record, 0, i.batchSize)
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		s.Found++
		rec, err := i.mapper.Map(row, t)
		if err != nil {
			s.skipRow(err)
			continue
		}
		batch = append(batch, rec)
		if len(batch) == i.batchSize {
			if err := i.applyBatch(ctx, t, batch, s); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return i.applyBatch(ctx, t, batch, s)
	}
	return nil
}

// applyBatch resolves one batch against stored rows and writes it in the
// transaction carried by ctx.
func (i *KindImporter) applyBatch(ctx context.Context, t *mapping.Table, batch []mapping.Record, s *Summary) error {
	cache := lookup.New()
	defer cache.Reset()

	for _, rec := range batch {
		for _, w := range rec.Warnings {
			s.warn(fmt.Sprintf("%s line %d: %s", rec.Kind, rec.Line, w))
		}
	}

	stored, err := i.snapshots.Load(ctx, t, changeset.Keys(batch))
	if err != nil {
		return err
	}
	cs := changeset.Resolve(batch, stored, t)
	for _, key := range cs.Duplicates {
		s.warn(fmt.Sprintf("%s: key %s repeated in extract, last row wins", t.Kind, key))
	}

	exec := upsert.NewExecutor(lookup.NewEntities(i.entities, cache), i.batchSize)
	res, err := exec.Apply(ctx, t, cs)
	if err != nil {
		return err
	}
	s.Created += res.Created
	s.Updated += res.Updated
	s.Unchanged += res.Unchanged
	s.Linked += res.LinksResolved
	for _, g := range res.Gaps {
		s.gap(&filing.ReferentialGapError{Kind: t.Kind, Parent: g.Parent, Ref: fmt.Sprintf("%s=%s (key %s)", g.Field, g.Ref, g.Key)})
	}

	logWithFields(ctx, logrus.DebugLevel, "batch applied", logrus.Fields{
		"kind":             t.Kind,
		"rows":             len(batch),
		"entities_created": res.EntitiesCreated,
		"slugs_updated":    res.SlugsUpdated,
		"gaps":             len(res.Gaps),
	})
	return nil
}
