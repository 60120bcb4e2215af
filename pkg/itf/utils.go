// Package itf holds the PostgreSQL integration test harness: throwaway
// databases migrated with the embedded schema.
package itf

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/migrations"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
	"github.com/nmcampfin/campfin-etl/pkg/configuration"
)

// TestEnvironment is a migrated database and a context carrying its pool.
type TestEnvironment struct {
	Ctx  context.Context
	Pool *pgxpool.Pool
}

// CanDialPostgres reports whether DB_HOST:DB_PORT accepts connections.
func CanDialPostgres(tb testing.TB) bool {
	tb.Helper()

	host := strings.TrimSpace(os.Getenv("DB_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("DB_PORT"))
	if port == "" {
		port = "5432"
	}
	dialer := &net.Dialer{Timeout: 250 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Setup creates a database named after the test, migrates it and returns
// the environment. Without a reachable server the test is skipped, or fails
// on CI.
func Setup(tb testing.TB) *TestEnvironment {
	tb.Helper()

	if !CanDialPostgres(tb) {
		if strings.TrimSpace(os.Getenv("CI")) != "" || strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true") {
			tb.Fatalf("postgres is not reachable (DB_HOST/DB_PORT)")
		}
		tb.Skip("postgres is not reachable; skipping integration test")
	}

	CreateDB(tb.Name())
	pool := NewPool(DbOpts(tb.Name()))
	tb.Cleanup(pool.Close)

	if err := Migrate(context.Background(), pool); err != nil {
		tb.Fatal(err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	ctx := composables.WithPool(context.Background(), pool)
	ctx = composables.WithLogger(ctx, logrus.NewEntry(logger))
	return &TestEnvironment{Ctx: ctx, Pool: pool}
}

// Migrate applies every embedded migration to pool's database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	provider, err := migrations.NewProvider(db, configuration.Use().MigrationsDir)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

func NewPool(dbOpts string) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	config, err := pgxpool.ParseConfig(dbOpts)
	if err != nil {
		panic(err)
	}
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Minute * 5
	config.MaxConnIdleTime = time.Second * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		panic(fmt.Errorf("failed to create database pool: %w", err))
	}
	return pool
}

// CountRows returns the number of rows of table.
func (e *TestEnvironment) CountRows(tb testing.TB, table string) int64 {
	tb.Helper()

	var n int64
	if err := e.Pool.QueryRow(e.Ctx, "SELECT count(*)::bigint FROM "+table).Scan(&n); err != nil {
		tb.Fatal(err)
	}
	return n
}

const (
	// PostgreSQL database name maximum length is 63 characters
	maxDBNameLength = 63
	// 8 hash characters plus the underscore
	hashSuffixLength = 9
)

// sanitizeDBName lowercases name, replaces separators with underscores and
// keeps the result within PostgreSQL's identifier limit.
func sanitizeDBName(name string) string {
	sanitized := strings.ToLower(name)
	sanitized = strings.NewReplacer(
		"/", "_", " ", "_", "-", "_", ".", "_", "(", "_", ")", "_", "[", "_", "]", "_",
	).Replace(sanitized)
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if len(sanitized) <= maxDBNameLength {
		return sanitized
	}

	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(name)))[:8]
	return fmt.Sprintf("%s_%s", strings.TrimRight(sanitized[:maxDBNameLength-hashSuffixLength], "_"), hash)
}

func CreateDB(name string) {
	sanitizedName := sanitizeDBName(name)

	c := configuration.Use()
	adminConnStr := fmt.Sprintf(
		"host=%s port=%s user=%s dbname=postgres password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
	)
	db, err := sql.Open("postgres", adminConnStr)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("[WARNING] Error closing CreateDB connection: %v", err)
		}
	}()
	if _, err := db.ExecContext(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", sanitizedName)); err != nil {
		panic(err)
	}
	if _, err := db.ExecContext(context.Background(), fmt.Sprintf("CREATE DATABASE %s", sanitizedName)); err != nil {
		panic(err)
	}
}

func DbOpts(name string) string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, sanitizeDBName(name), c.Database.Password,
	)
}
