// Package postgres implements repository.UserRepository on PostgreSQL via
// pgx.
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Pool is the subset of *pgxpool.Pool the repository uses. Tests substitute
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// startupBackoff governs how long New waits for the database to accept
// connections: 100ms doubling, six attempts in total.
func startupBackoff() retry.Backoff {
	return retry.WithMaxRetries(5, retry.NewExponential(100*time.Millisecond))
}

// DB is a PostgreSQL-backed user repository.
type DB struct {
	pool Pool
}

// New connects to dsn, waits for the server to answer and runs migrations.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.In("postgres").Wrapf(err, "creating pool")
	}

	if err := waitForPool(ctx, pool, startupBackoff(), logger); err != nil {
		pool.Close()
		return nil, err
	}

	db := NewWithPool(pool)
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// NewWithPool wraps an existing pool without touching the schema.
func NewWithPool(pool Pool) *DB {
	return &DB{pool: pool}
}

// Close releases the pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// waitForPool pings until the server answers or the backoff gives up.
func waitForPool(ctx context.Context, pool Pool, b retry.Backoff, logger *slog.Logger) error {
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("postgres not ready",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.In("postgres").With("attempts", attempt).Wrapf(err, "pinging database")
	}
	return nil
}

// Migrate creates the users table if it does not exist.
//
// text comparison in PostgreSQL is case-sensitive under the default
// collation, matching the SQLite store.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return oops.In("postgres").With("table", "users").Wrapf(err, "creating table")
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
