package storage

import (
	"context"
	"database/sql"
	"errors"

	"authd/internal/scope"
)

// PostgresRefreshTokens implements RefreshTokens over database/sql.
// The table carries ON DELETE CASCADE from users, so hard user deletion
// transitively invalidates sessions; soft deletion goes through
// DeleteRefreshTokensForUser.
type PostgresRefreshTokens struct {
	db *sql.DB
}

// NewPostgresRefreshTokens wraps the given connection pool.
func NewPostgresRefreshTokens(db *sql.DB) *PostgresRefreshTokens {
	return &PostgresRefreshTokens{db: db}
}

// InsertRefreshToken persists one hashed session row.
func (r *PostgresRefreshTokens) InsertRefreshToken(ctx context.Context, rt *RefreshToken) error {
	const q = `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	return r.db.QueryRowContext(ctx, q, rt.Token, rt.UserID, rt.ExpiresAt).Scan(&rt.CreatedAt)
}

// FindRefreshTokenWithUser joins the session row with its live owner.
func (r *PostgresRefreshTokens) FindRefreshTokenWithUser(ctx context.Context, tokenHash string) (*RefreshToken, *User, error) {
	const q = `
		SELECT rt.token, rt.user_id, rt.created_at, rt.expires_at,
		       u.user_id, u.email, u.display_name, u.password, u.scope,
		       u.is_active, u.created_at, u.updated_at, u.deleted_at
		FROM refresh_tokens rt
		JOIN users u ON u.user_id = rt.user_id
		WHERE rt.token = $1 AND u.deleted_at IS NULL
	`
	rt := &RefreshToken{}
	u := &User{}
	var (
		rawScope  string
		deletedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, tokenHash).Scan(
		&rt.Token, &rt.UserID, &rt.CreatedAt, &rt.ExpiresAt,
		&u.UserID, &u.Email, &u.DisplayName, &u.Password, &rawScope,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	sc, err := scope.Parse(rawScope)
	if err != nil {
		return nil, nil, err
	}
	u.Scope = sc
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return rt, u, nil
}

// DeleteRefreshToken removes the row and reports whether it existed, so
// callers can distinguish "logged out now" from "already logged out".
func (r *PostgresRefreshTokens) DeleteRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	const q = `DELETE FROM refresh_tokens WHERE token = $1`
	res, err := r.db.ExecContext(ctx, q, tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteRefreshTokensForUser removes every session row of a user.
func (r *PostgresRefreshTokens) DeleteRefreshTokensForUser(ctx context.Context, userID string) error {
	const q = `DELETE FROM refresh_tokens WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, q, userID)
	return err
}
