package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
)

// FindUserByEmail selects a library user by email, case-insensitively.
func (db *DB) FindUserByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `
SELECT id, email, username, full_name, password_hash, created_at
FROM library_users WHERE lower(email)=lower($1)`
	row := db.Pool.QueryRow(ctx, q, email)
	var u model.Account
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// InsertUser inserts a new library user row.
func (db *DB) InsertUser(ctx context.Context, u model.Account) error {
	const q = `
INSERT INTO library_users (id, email, username, full_name, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := db.Pool.Exec(ctx, q, u.ID, u.Email, u.Username, u.FullName, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}
