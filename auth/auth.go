/*
Package auth provides the identity and authorization gate.

PURPOSE:
  Resolves the caller's identity from a bearer credential and supplies the
  verified subject to the ledger engines, which enforce ownership. Tokens
  are self-contained signed JWTs verified independently by every
  ledger-facing service, so no shared session store exists.

COMPONENTS:
  - Tokens:     HS256 issue/verify (token.go)
  - Registry:   username/password user store with bcrypt hashes (service.go)
  - Middleware: chi middleware extracting and verifying the bearer token
                (middleware.go)

FAILURE MAPPING:
  Missing, malformed, expired, or tampered credentials are all the same
  thing to a caller: Unauthorized. The middleware never leaks which check
  failed.
*/
package auth

import (
	"context"
	"time"
)

// User is a registered identity. PasswordHash is a bcrypt hash, never the
// raw secret.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists registered users. Implemented by store/sqlite.
type UserStore interface {
	// CreateUser persists a user. A duplicate username returns
	// ledger.ErrDuplicateUser; concurrent duplicate registrations resolve
	// so exactly one wins.
	CreateUser(ctx context.Context, u User) error

	// GetUserByUsername returns the user or ledger.ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}
