// Package apperror defines the error taxonomy shared by every layer.
//
// ERROR KINDS:
// Services and stores return *AppError values whose Err field is one of the
// sentinels below. Callers classify with errors.Is, never by comparing
// messages:
//
//	if errors.Is(err, apperror.ErrInvalidCredentials) { ... }
//
// Some kinds are refinements of broader ones. A missing field is also a
// validation error, and AlreadyExists is also a conflict, so generic code
// (like the JSON error writer) can match on the broad kind while the auth
// flows match on the precise one.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	ErrMissingField        = errors.New("missing field")
	ErrPasswordMismatch    = errors.New("password mismatch")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAlreadyExists       = errors.New("already exists")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrUnauthenticated     = errors.New("unauthenticated")
)

// parents lists the broader kind a refined sentinel also matches.
var parents = map[error]error{
	ErrMissingField:        ErrValidation,
	ErrPasswordMismatch:    ErrValidation,
	ErrAlreadyExists:       ErrConflict,
	ErrConstraintViolation: ErrConflict,
}

type AppError struct {
	Err     error  // error kind (one of the sentinels)
	Message string // Human-readable error message, safe to show to users
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, for server logs only
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes the kind, its parent kind and the cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	errs := []error{e.Err}
	if p, ok := parents[e.Err]; ok {
		errs = append(errs, p)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// MissingField reports that a required input was empty after trimming.
func MissingField(field, message string) *AppError {
	return &AppError{
		Err:     ErrMissingField,
		Message: message,
		Field:   field,
	}
}

// PasswordMismatch reports that a password and its confirmation differ.
func PasswordMismatch(message string) *AppError {
	return &AppError{
		Err:     ErrPasswordMismatch,
		Message: message,
		Field:   "confirm_password",
	}
}

// InvalidCredentials is returned for both an unknown username and a wrong
// password. The two cases must stay indistinguishable to the caller.
func InvalidCredentials(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: message,
	}
}

// AlreadyExists reports a registration whose username or email is taken.
func AlreadyExists(message string) *AppError {
	return &AppError{
		Err:     ErrAlreadyExists,
		Message: message,
	}
}

// ConstraintViolation is the store-level form of a uniqueness collision.
func ConstraintViolation(resource string, cause error) *AppError {
	return &AppError{
		Err:     ErrConstraintViolation,
		Message: fmt.Sprintf("%s violates a uniqueness constraint", resource),
		Cause:   cause,
	}
}

// StoreUnavailable wraps an I/O failure from a credential store. The cause
// is kept for logging; Message is generic so it can never leak internals.
func StoreUnavailable(cause error) *AppError {
	return &AppError{
		Err:     ErrStoreUnavailable,
		Message: "service temporarily unavailable",
		Cause:   cause,
	}
}

// Unauthenticated reports a request without an authenticated session.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "authentication required",
	}
}
