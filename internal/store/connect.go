/**
 * @description
 * Postgres pool setup with startup retries and the embedded ledger schema.
 */
package store

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// Options selects and configures the storage backend.
type Options struct {
	Driver          string
	DatabaseURL     string
	BoltPath        string
	AutoMigrate     bool
	ConnectAttempts uint
}

// Open connects to the configured backend.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Repository, error) {
	switch opts.Driver {
	case DriverBolt:
		repo, err := NewBoltRepository(opts.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store %s: %w", opts.BoltPath, err)
		}
		logger.Info("bolt ledger store opened", "path", opts.BoltPath)
		return repo, nil
	case DriverPostgres, "":
		pool, err := ConnectPostgres(ctx, opts.DatabaseURL, opts.ConnectAttempts, logger)
		if err != nil {
			return nil, err
		}
		if opts.AutoMigrate {
			if err := ApplySchema(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("database schema applied")
		}
		return NewPostgresRepository(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// ConnectPostgres builds a tuned pool and waits for the database to answer a ping.
func ConnectPostgres(ctx context.Context, databaseURL string, attempts uint, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if attempts == 0 {
		attempts = 1
	}
	err = retry.Do(
		func() error {
			return pool.Ping(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("database not reachable yet", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	logger.Info("database connection established")
	return pool, nil
}

// ApplySchema creates the ledger tables when they do not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
