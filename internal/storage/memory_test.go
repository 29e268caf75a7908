package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/scope"
)

func newTestUser(id, email string) *User {
	return &User{
		UserID:      id,
		Email:       email,
		DisplayName: "Test User",
		Password:    "$2a$12$notarealhash",
		Scope:       scope.Unverified,
		IsActive:    true,
	}
}

func TestMemoryUserLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u := newTestUser("u1", "a@b.com")
	require.NoError(t, m.InsertUser(ctx, u))
	assert.False(t, u.CreatedAt.IsZero())

	got, err := m.FindUserByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	got, err = m.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got.Email)

	got.Scope = scope.User
	require.NoError(t, m.UpdateUser(ctx, got))
	got, err = m.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, scope.User, got.Scope)
}

func TestMemoryDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertUser(ctx, newTestUser("u1", "a@b.com")))
	err := m.InsertUser(ctx, newTestUser("u2", "a@b.com"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	// A soft-deleted account frees its address for re-registration.
	require.NoError(t, m.DeleteUser(ctx, "u1"))
	assert.NoError(t, m.InsertUser(ctx, newTestUser("u3", "a@b.com")))
}

func TestMemorySoftDeleteHidesUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertUser(ctx, newTestUser("u1", "a@b.com")))
	require.NoError(t, m.DeleteUser(ctx, "u1"))

	_, err := m.FindUserByID(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.FindUserByEmail(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrNotFound)

	err = m.DeleteUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	err = m.UpdateUser(ctx, newTestUser("u1", "a@b.com"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRefreshTokenJoin(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertUser(ctx, newTestUser("u1", "a@b.com")))
	rt := &RefreshToken{
		Token:     "hash-1",
		UserID:    "u1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, m.InsertRefreshToken(ctx, rt))
	assert.False(t, rt.CreatedAt.IsZero())

	gotRT, gotUser, err := m.FindRefreshTokenWithUser(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", gotRT.UserID)
	assert.Equal(t, "a@b.com", gotUser.Email)

	_, _, err = m.FindRefreshTokenWithUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Sessions of a soft-deleted owner resolve to not-found.
	require.NoError(t, m.DeleteUser(ctx, "u1"))
	_, _, err = m.FindRefreshTokenWithUser(ctx, "hash-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDeleteRefreshToken(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertUser(ctx, newTestUser("u1", "a@b.com")))
	require.NoError(t, m.InsertRefreshToken(ctx, &RefreshToken{Token: "hash-1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}))

	existed, err := m.DeleteRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = m.DeleteRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryDeleteRefreshTokensForUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertUser(ctx, newTestUser("u1", "a@b.com")))
	require.NoError(t, m.InsertUser(ctx, newTestUser("u2", "c@d.com")))
	for _, tok := range []*RefreshToken{
		{Token: "h1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
		{Token: "h2", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
		{Token: "h3", UserID: "u2", ExpiresAt: time.Now().Add(time.Hour)},
	} {
		require.NoError(t, m.InsertRefreshToken(ctx, tok))
	}

	require.NoError(t, m.DeleteRefreshTokensForUser(ctx, "u1"))

	_, _, err := m.FindRefreshTokenWithUser(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = m.FindRefreshTokenWithUser(ctx, "h2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = m.FindRefreshTokenWithUser(ctx, "h3")
	assert.NoError(t, err)
}
