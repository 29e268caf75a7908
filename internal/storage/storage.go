// Package storage holds the relational persistence layer: user accounts and
// the refresh-token table. The engine consumes the repository interfaces;
// the Postgres implementations live alongside an in-memory variant used for
// tests and single-process development.
package storage

import (
	"context"
	"errors"
	"time"

	"authd/internal/scope"
)

var (
	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateEmail reports a unique-constraint violation on users.email.
	ErrDuplicateEmail = errors.New("storage: email already registered")
)

// User is the account row. Password holds an irreversible hash; DeletedAt
// non-nil marks a soft-deleted account that no lookup returns.
type User struct {
	UserID      string
	Email       string
	DisplayName string
	Password    string
	Scope       scope.Scope
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// RefreshToken is one issued session. Token stores the SHA-256 hex of the
// raw secret; the raw value is never persisted. A row past ExpiresAt is
// invalid even before it is purged.
type RefreshToken struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Users is the account repository consumed by the engine.
type Users interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, userID string) (*User, error)
	InsertUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	// DeleteUser soft-deletes the account. Sessions are invalidated by the
	// caller through the refresh-token repository.
	DeleteUser(ctx context.Context, userID string) error
}

// RefreshTokens is the session-row repository consumed by the engine.
type RefreshTokens interface {
	InsertRefreshToken(ctx context.Context, rt *RefreshToken) error
	// FindRefreshTokenWithUser resolves a token hash to its row and owning
	// user in a single joined lookup.
	FindRefreshTokenWithUser(ctx context.Context, tokenHash string) (*RefreshToken, *User, error)
	// DeleteRefreshToken removes the row and reports whether it existed.
	DeleteRefreshToken(ctx context.Context, tokenHash string) (bool, error)
	// DeleteRefreshTokensForUser invalidates every session of a user.
	DeleteRefreshTokensForUser(ctx context.Context, userID string) error
}
