package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/nmcampfin/campfin-etl/modules/campfin/bookkeeping"
	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
	"github.com/nmcampfin/campfin-etl/modules/campfin/filing"
	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
	"github.com/nmcampfin/campfin-etl/modules/campfin/services"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
	"github.com/nmcampfin/campfin-etl/pkg/configuration"
	"github.com/nmcampfin/campfin-etl/pkg/runlock"
)

// app owns the connections of one command invocation.
type app struct {
	pool  *pgxpool.Pool
	db    *sqlx.DB
	books *bookkeeping.Repository
}

func openApp(ctx context.Context) (*app, error) {
	pool, err := connectDB(ctx)
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	db := sqlxFromPool(pool)
	return &app{pool: pool, db: db, books: bookkeeping.NewRepository(db)}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
	a.pool.Close()
}

// runContext carries the pool, a logger tagged with a fresh run id and the
// run id itself.
func (a *app) runContext(ctx context.Context) context.Context {
	runID := uuid.NewString()
	logger := configuration.Use().Logger().WithField("run_id", runID)
	ctx = composables.WithPool(ctx, a.pool)
	ctx = composables.WithLogger(ctx, logger)
	return composables.WithRunID(ctx, runID)
}

type sourceFlags struct {
	file        string
	encoding    string
	mappings    string
	dryRun      bool
	minInterval time.Duration
}

func (f sourceFlags) runOptions() services.RunOptions {
	return services.RunOptions{DryRun: f.dryRun, MinInterval: f.minInterval}
}

// importers builds every importer over one mapping registry.
type importers struct {
	kinds        *services.KindImporter
	filings      *services.FilingsImporter
	transactions *services.TransactionsImporter
	registry     *services.RegistryImporter
}

func loadRegistry(mappingsPath string) (*mapping.Registry, error) {
	registry, err := mapping.NewRegistry(mapping.BuiltinTables()...)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(mappingsPath) == "" {
		return registry, nil
	}
	f, err := os.Open(mappingsPath)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("open --mappings: %w", err))
	}
	defer func() { _ = f.Close() }()
	tables, err := mapping.LoadTablesYAML(f)
	if err != nil {
		return nil, withCode(exitValidation, err)
	}
	if err := registry.Override(tables...); err != nil {
		return nil, withCode(exitValidation, err)
	}
	return registry, nil
}

func (a *app) importers(flags sourceFlags) (*importers, error) {
	conf := configuration.Use()
	registry, err := loadRegistry(flags.mappings)
	if err != nil {
		return nil, err
	}
	locker, err := runlock.New(conf.ETL.LockBackend, conf.RedisURL)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}

	mapper := mapping.NewMapper(conf.ETL.Location())
	runner := services.NewRunner(locker, conf.ETL.LockTTL, a.books)
	opts := extract.Options{Encoding: flags.encoding, WorkDir: conf.ETL.WorkDir}

	owners := persistence.NewOwnerRepository()
	entities := persistence.NewEntityRepository()
	refs := persistence.NewReferenceRepository()
	manager := filing.NewManager(persistence.NewFilingRepository())

	return &importers{
		kinds: services.NewKindImporter(
			registry, mapper, persistence.NewSnapshotRepository(), entities, runner, conf.ETL.BatchSize, opts,
		),
		filings: services.NewFilingsImporter(registry, mapper, owners, entities, refs, manager, runner, opts),
		transactions: services.NewTransactionsImporter(
			registry, mapper, owners, entities, refs, persistence.NewDependentRepository(), manager, runner, opts,
		),
		registry: services.NewRegistryImporter(
			registry, mapper, owners, entities, refs, persistence.NewRegistryRepository(), runner, opts,
		),
	}, nil
}
