// Package session manages long-lived refresh sessions. A session is an
// opaque 64-byte secret handed to the client; only its SHA-256 hex digest is
// persisted, so a database leak cannot be replayed as a credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authd/internal/crypto"
	"authd/internal/storage"
)

var (
	// ErrRefreshInvalid reports an unknown, already-rotated, or orphaned
	// refresh token.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshExpired reports a known session past its expiry.
	ErrRefreshExpired = errors.New("refresh token expired")
)

// Manager issues and rotates refresh sessions.
type Manager struct {
	tokens     storage.RefreshTokens
	refreshTTL time.Duration
}

// NewManager builds a Manager over the session repository.
func NewManager(tokens storage.RefreshTokens, refreshTTL time.Duration) (*Manager, error) {
	if refreshTTL <= 0 {
		return nil, errors.New("invalid refresh TTL")
	}
	return &Manager{tokens: tokens, refreshTTL: refreshTTL}, nil
}

// RefreshTTL returns the configured session lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// Issue creates a new session for userID and returns the raw secret. The
// stored row holds only the digest.
func (m *Manager) Issue(ctx context.Context, userID string) (string, error) {
	raw, err := crypto.OpaqueSecret(crypto.RefreshSecretBytes)
	if err != nil {
		return "", err
	}
	rt := &storage.RefreshToken{
		Token:     crypto.Hash(raw),
		UserID:    userID,
		ExpiresAt: time.Now().Add(m.refreshTTL),
	}
	if err := m.tokens.InsertRefreshToken(ctx, rt); err != nil {
		return "", fmt.Errorf("persist refresh token: %w", err)
	}
	return raw, nil
}

// Rotate exchanges a valid raw refresh token for a fresh one, invalidating
// the old session. An expired row is deleted on sight. The delete of the old
// row doubles as replay protection: two concurrent rotations of the same
// token cannot both succeed against a store whose delete reports existence.
func (m *Manager) Rotate(ctx context.Context, raw string) (string, *storage.User, error) {
	hash := crypto.Hash(raw)

	rt, user, err := m.tokens.FindRefreshTokenWithUser(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, ErrRefreshInvalid
		}
		return "", nil, err
	}

	if time.Now().After(rt.ExpiresAt) {
		if _, err := m.tokens.DeleteRefreshToken(ctx, hash); err != nil {
			return "", nil, err
		}
		return "", nil, ErrRefreshExpired
	}

	deleted, err := m.tokens.DeleteRefreshToken(ctx, hash)
	if err != nil {
		return "", nil, err
	}
	if !deleted {
		// Lost the race to another rotation of the same token.
		return "", nil, ErrRefreshInvalid
	}

	fresh, err := m.Issue(ctx, user.UserID)
	if err != nil {
		return "", nil, err
	}
	return fresh, user, nil
}

// Terminate ends the session for a raw refresh token. It reports whether a
// session existed, so logout can answer idempotently.
func (m *Manager) Terminate(ctx context.Context, raw string) (bool, error) {
	return m.tokens.DeleteRefreshToken(ctx, crypto.Hash(raw))
}

// TerminateAll ends every session of a user, used on account deletion.
func (m *Manager) TerminateAll(ctx context.Context, userID string) error {
	return m.tokens.DeleteRefreshTokensForUser(ctx, userID)
}
