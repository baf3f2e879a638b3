package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/sakif/user-auth/internal/apperror"
	"github.com/sakif/user-auth/internal/model"
	"github.com/sakif/user-auth/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, password_hash, created_at`

// FindByUsername retrieves a user by exact username.
func (db *DB) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		username,
	)
	return scanUser(row, "username", username)
}

// FindByUsernameOrEmail retrieves any user holding the username or the email.
func (db *DB) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $2 LIMIT 1`,
		username, email,
	)
	return scanUser(row, "username_or_email", username)
}

// FindByID retrieves a user by ID.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row, "id", strconv.FormatInt(id, 10))
}

// Insert adds a user and returns the ID assigned by the sequence.
func (db *DB) Insert(ctx context.Context, username, email, passwordHash string) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		username, email, passwordHash,
	).Scan(&id)
	if err != nil {
		return 0, storeError(err, "insert user", "username", username)
	}
	return id, nil
}

func scanUser(row pgx.Row, by, value string) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, storeError(err, "select user by "+by)
	}
	return &u, nil
}

// storeError classifies a pgx error into the apperror taxonomy.
func storeError(err error, op string, attrs ...any) error {
	wrapped := oops.In("postgres").With("operation", op).With(attrs...).Wrap(err)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return apperror.ConstraintViolation("user", wrapped)
	}
	return apperror.StoreUnavailable(wrapped)
}
