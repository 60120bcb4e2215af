package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/nmcampfin/campfin-etl/pkg/configuration"
)

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conf := configuration.Use()
	config, err := pgxpool.ParseConfig(conf.Database.Opts)
	if err != nil {
		return nil, fmt.Errorf("db config: %w", err)
	}
	if conf.Database.MaxConns > 0 {
		config.MaxConns = conf.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}

// sqlxFromPool exposes pool through database/sql for sqlx and goose. Closing
// the returned handle leaves the pool open.
func sqlxFromPool(pool *pgxpool.Pool) *sqlx.DB {
	return sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
}
