package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id      UUID PRIMARY KEY,
		email        TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		password     TEXT NOT NULL,
		scope        TEXT NOT NULL DEFAULT 'unverified',
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at   TIMESTAMPTZ
	)`,
	// Uniqueness holds among live rows only, so a deleted account frees its
	// address.
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_live_idx
		ON users (email) WHERE deleted_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS refresh_tokens_user_idx ON refresh_tokens (user_id)`,
}

// Migrate applies the schema. Every statement is idempotent, so running at
// each startup is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
