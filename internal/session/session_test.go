package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/crypto"
	"authd/internal/scope"
	"authd/internal/storage"
)

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	mgr, err := NewManager(store, ttl)
	require.NoError(t, err)
	return mgr, store
}

func seedUser(t *testing.T, store *storage.Memory, id, email string) {
	t.Helper()
	require.NoError(t, store.InsertUser(context.Background(), &storage.User{
		UserID:   id,
		Email:    email,
		Password: "hash",
		Scope:    scope.User,
		IsActive: true,
	}))
}

func TestIssueStoresOnlyDigest(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t, time.Hour)
	seedUser(t, store, "u1", "a@b.com")

	raw, err := mgr.Issue(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, raw, crypto.RefreshSecretBytes*2) // hex of 64 random bytes

	// The raw value is not a usable lookup key; only its digest is.
	_, _, err = store.FindRefreshTokenWithUser(ctx, raw)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	rt, user, err := store.FindRefreshTokenWithUser(ctx, crypto.Hash(raw))
	require.NoError(t, err)
	assert.Equal(t, "u1", rt.UserID)
	assert.Equal(t, "a@b.com", user.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), rt.ExpiresAt, time.Minute)
}

func TestRotateIssuesDistinctTokenAndKillsOld(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t, time.Hour)
	seedUser(t, store, "u1", "a@b.com")

	raw, err := mgr.Issue(ctx, "u1")
	require.NoError(t, err)

	fresh, user, err := mgr.Rotate(ctx, raw)
	require.NoError(t, err)
	assert.NotEqual(t, raw, fresh)
	assert.Equal(t, "u1", user.UserID)

	// The consumed token is gone for good.
	_, _, err = mgr.Rotate(ctx, raw)
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	// The fresh one still works.
	_, _, err = mgr.Rotate(ctx, fresh)
	assert.NoError(t, err)
}

func TestRotateUnknownToken(t *testing.T) {
	mgr, _ := newTestManager(t, time.Hour)
	_, _, err := mgr.Rotate(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestRotateExpiredTokenDeletesRow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	seedUser(t, store, "u1", "a@b.com")

	raw, err := crypto.OpaqueSecret(crypto.RefreshSecretBytes)
	require.NoError(t, err)
	require.NoError(t, store.InsertRefreshToken(ctx, &storage.RefreshToken{
		Token:     crypto.Hash(raw),
		UserID:    "u1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	mgr, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, _, err = mgr.Rotate(ctx, raw)
	assert.ErrorIs(t, err, ErrRefreshExpired)

	// Second attempt sees no row at all.
	_, _, err = mgr.Rotate(ctx, raw)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestRotateDeletedUser(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t, time.Hour)
	seedUser(t, store, "u1", "a@b.com")

	raw, err := mgr.Issue(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(ctx, "u1"))
	_, _, err = mgr.Rotate(ctx, raw)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestTerminate(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t, time.Hour)
	seedUser(t, store, "u1", "a@b.com")

	raw, err := mgr.Issue(ctx, "u1")
	require.NoError(t, err)

	existed, err := mgr.Terminate(ctx, raw)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = mgr.Terminate(ctx, raw)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestTerminateAll(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t, time.Hour)
	seedUser(t, store, "u1", "a@b.com")
	seedUser(t, store, "u2", "c@d.com")

	raw1, err := mgr.Issue(ctx, "u1")
	require.NoError(t, err)
	raw2, err := mgr.Issue(ctx, "u1")
	require.NoError(t, err)
	other, err := mgr.Issue(ctx, "u2")
	require.NoError(t, err)

	require.NoError(t, mgr.TerminateAll(ctx, "u1"))

	_, _, err = mgr.Rotate(ctx, raw1)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	_, _, err = mgr.Rotate(ctx, raw2)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	_, _, err = mgr.Rotate(ctx, other)
	assert.NoError(t, err)
}
