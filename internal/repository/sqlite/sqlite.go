// Package sqlite implements repository.UserRepository on SQLite.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 needs CGo and a C toolchain. modernc.org/sqlite is a pure
// Go translation of SQLite, so the binary cross-compiles like any other Go
// program.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB   : a connection pool (NOT a single connection!)
//   - sql.Row  : a single result row
//
// The pattern is always:
//  1. sql.Open(driverName, dataSourceName) → creates a pool
//  2. db.QueryRowContext / db.ExecContext  → runs queries
//  3. row.Scan(&field1, &field2)           → reads results into Go variables
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samber/oops"

	// The driver registers itself with database/sql as "sqlite". It is also
	// imported by name so error codes can be inspected.
	modernc "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/user-auth/internal/apperror"
)

// MemoryPath opens a private in-memory database, for tests and demos.
const MemoryPath = ":memory:"

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath and runs
// migrations.
//
// dbPath examples:
//   - "data/users.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database (lost on close)
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, oops.In("sqlite").With("path", dbPath).Wrapf(err, "opening database")
	}

	// Every connection to ":memory:" is a separate, empty database. Pinning
	// the pool to one connection keeps the schema and data in one place.
	if dbPath == MemoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, oops.In("sqlite").With("path", dbPath).Wrapf(err, "pinging database")
	}

	// PRAGMA STATEMENTS:
	// WAL lets readers proceed while a write is in progress. busy_timeout
	// makes a writer wait for the lock instead of failing immediately.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, oops.In("sqlite").With("pragma", pragma).Wrapf(err, "configuring database")
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, oops.In("sqlite").Wrapf(err, "running migrations")
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
//
// Username and email are compared with SQLite's default BINARY collation, so
// "Alice" and "alice" are different accounts.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return oops.With("table", "users").Wrapf(err, "creating table")
	}
	return nil
}

// isConstraintViolation reports whether err is a SQLite constraint failure
// (UNIQUE, NOT NULL, ...). Extended result codes keep the primary code in the
// low byte.
func isConstraintViolation(err error) bool {
	var sqliteErr *modernc.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// storeError classifies a driver error into the apperror taxonomy.
func storeError(err error, op string, attrs ...any) error {
	wrapped := oops.In("sqlite").With("operation", op).With(attrs...).Wrap(err)
	if isConstraintViolation(err) {
		return apperror.ConstraintViolation("user", wrapped)
	}
	return apperror.StoreUnavailable(wrapped)
}
