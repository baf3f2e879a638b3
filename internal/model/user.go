// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Username and Email are each unique across all users; the stores enforce
// that with UNIQUE constraints. A user is created once by registration and
// never modified afterwards.
//
// WHY ID int64?
// The database assigns the identifier (AUTOINCREMENT / BIGSERIAL), and the
// session layer binds sessions to it. It is never chosen by the client.
type User struct {
	ID           int64     `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"` // never serialized
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
