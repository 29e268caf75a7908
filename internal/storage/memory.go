package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-process implementation of Users and
// RefreshTokens. It backs tests and single-process development; semantics
// mirror the Postgres implementations, including soft deletion.
type Memory struct {
	mu      sync.Mutex
	users   map[string]*User         // keyed by user id, soft-deleted rows included
	tokens  map[string]*RefreshToken // keyed by token hash
	nowFunc func() time.Time
}

// NewMemory builds an empty store.
func NewMemory() *Memory {
	return &Memory{
		users:   map[string]*User{},
		tokens:  map[string]*RefreshToken{},
		nowFunc: time.Now,
	}
}

func cloneUser(u *User) *User {
	c := *u
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func cloneToken(rt *RefreshToken) *RefreshToken {
	c := *rt
	return &c
}

// FindUserByEmail returns the live account for email.
func (m *Memory) FindUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email && u.DeletedAt == nil {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// FindUserByID returns the live account for userID.
func (m *Memory) FindUserByID(_ context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

// InsertUser persists a new account, enforcing email uniqueness among
// live rows.
func (m *Memory) InsertUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email && u.DeletedAt == nil {
			return ErrDuplicateEmail
		}
	}
	now := m.nowFunc()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.UserID] = cloneUser(user)
	return nil
}

// UpdateUser writes the mutable fields of a live account.
func (m *Memory) UpdateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[user.UserID]
	if !ok || cur.DeletedAt != nil {
		return ErrNotFound
	}
	cur.Email = user.Email
	cur.DisplayName = user.DisplayName
	cur.Password = user.Password
	cur.Scope = user.Scope
	cur.IsActive = user.IsActive
	cur.UpdatedAt = m.nowFunc()
	user.UpdatedAt = cur.UpdatedAt
	return nil
}

// DeleteUser soft-deletes the account.
func (m *Memory) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[userID]
	if !ok || cur.DeletedAt != nil {
		return ErrNotFound
	}
	now := m.nowFunc()
	cur.DeletedAt = &now
	cur.IsActive = false
	cur.UpdatedAt = now
	return nil
}

// InsertRefreshToken persists one hashed session row.
func (m *Memory) InsertRefreshToken(_ context.Context, rt *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = m.nowFunc()
	}
	m.tokens[rt.Token] = cloneToken(rt)
	return nil
}

// FindRefreshTokenWithUser resolves a token hash to its row and live owner.
func (m *Memory) FindRefreshTokenWithUser(_ context.Context, tokenHash string) (*RefreshToken, *User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[tokenHash]
	if !ok {
		return nil, nil, ErrNotFound
	}
	u, ok := m.users[rt.UserID]
	if !ok || u.DeletedAt != nil {
		return nil, nil, ErrNotFound
	}
	return cloneToken(rt), cloneUser(u), nil
}

// DeleteRefreshToken removes the row and reports whether it existed.
func (m *Memory) DeleteRefreshToken(_ context.Context, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[tokenHash]
	delete(m.tokens, tokenHash)
	return ok, nil
}

// DeleteRefreshTokensForUser removes every session row of a user.
func (m *Memory) DeleteRefreshTokensForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, rt := range m.tokens {
		if rt.UserID == userID {
			delete(m.tokens, hash)
		}
	}
	return nil
}
