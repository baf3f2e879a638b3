package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/sakif/user-auth/internal/apperror"
	"github.com/sakif/user-auth/internal/model"
	"github.com/sakif/user-auth/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, password_hash, created_at`

// FindByUsername retrieves a user by exact username.
// Returns apperror.ErrNotFound if no user has that username.
func (db *DB) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`,
		username,
	)
	return scanUser(row, "username", username)
}

// FindByUsernameOrEmail retrieves any user holding the username or the email.
// This is the registration duplicate check.
func (db *DB) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? LIMIT 1`,
		username, email,
	)
	return scanUser(row, "username_or_email", username)
}

// FindByID retrieves a user by ID.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row, "id", strconv.FormatInt(id, 10))
}

// Insert adds a user and returns the assigned ID.
//
// The UNIQUE constraints on username and email are the final word on
// duplicates: if two registrations race past the service-level check, the
// second INSERT fails here with apperror.ErrConstraintViolation.
func (db *DB) Insert(ctx context.Context, username, email, passwordHash string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		username, email, passwordHash, time.Now().UTC(),
	)
	if err != nil {
		return 0, storeError(err, "insert user", "username", username)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeError(err, "read inserted id", "username", username)
	}
	return id, nil
}

func scanUser(row *sql.Row, by, value string) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, storeError(err, "select user by "+by)
	}
	return &u, nil
}
