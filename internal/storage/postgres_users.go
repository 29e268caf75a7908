package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"authd/internal/scope"
)

// PostgresUsers implements Users over database/sql with the lib/pq driver.
type PostgresUsers struct {
	db *sql.DB
}

// NewPostgresUsers wraps the given connection pool.
func NewPostgresUsers(db *sql.DB) *PostgresUsers {
	return &PostgresUsers{db: db}
}

const userColumns = `user_id, email, display_name, password, scope, is_active, created_at, updated_at, deleted_at`

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var (
		rawScope  string
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&u.UserID, &u.Email, &u.DisplayName, &u.Password, &rawScope,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sc, err := scope.Parse(rawScope)
	if err != nil {
		return nil, err
	}
	u.Scope = sc
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

// FindUserByEmail returns the live (non-deleted) account for email.
func (r *PostgresUsers) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 AND deleted_at IS NULL
	`
	return scanUser(r.db.QueryRowContext(ctx, q, email))
}

// FindUserByID returns the live account for userID.
func (r *PostgresUsers) FindUserByID(ctx context.Context, userID string) (*User, error) {
	const q = `
		SELECT ` + userColumns + `
		FROM users
		WHERE user_id = $1 AND deleted_at IS NULL
	`
	return scanUser(r.db.QueryRowContext(ctx, q, userID))
}

// InsertUser persists a new account, filling server-side timestamps.
func (r *PostgresUsers) InsertUser(ctx context.Context, user *User) error {
	const q = `
		INSERT INTO users (user_id, email, display_name, password, scope, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, q,
		user.UserID, user.Email, user.DisplayName, user.Password, string(user.Scope), user.IsActive,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// UpdateUser writes the mutable columns of an existing account.
func (r *PostgresUsers) UpdateUser(ctx context.Context, user *User) error {
	const q = `
		UPDATE users
		SET email = $2, display_name = $3, password = $4, scope = $5,
		    is_active = $6, updated_at = now()
		WHERE user_id = $1 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, q,
		user.UserID, user.Email, user.DisplayName, user.Password, string(user.Scope), user.IsActive,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	return nil
}

// DeleteUser soft-deletes the account.
func (r *PostgresUsers) DeleteUser(ctx context.Context, userID string) error {
	const q = `
		UPDATE users
		SET deleted_at = now(), is_active = FALSE, updated_at = now()
		WHERE user_id = $1 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, q, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
