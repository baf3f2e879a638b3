// Package repository declares the credential store contract.
//
// Implementations live in sub-packages (sqlite, postgres) and must translate
// their driver errors into the apperror kinds:
//
//	record absent          → apperror.ErrNotFound
//	UNIQUE collision       → apperror.ErrConstraintViolation
//	anything else (I/O)    → apperror.ErrStoreUnavailable
package repository

import (
	"context"

	"github.com/sakif/user-auth/internal/model"
)

// UserRepository reads and writes user records.
type UserRepository interface {
	// FindByUsername looks up a user by exact, case-sensitive username.
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	// FindByUsernameOrEmail returns any user whose username equals username
	// or whose email equals email.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	// Insert stores a new user and returns the assigned ID.
	Insert(ctx context.Context, username, email, passwordHash string) (int64, error)
}
