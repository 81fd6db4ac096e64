package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/model"
)

const userColumns = `id, username, password_hash, role, department, created_at, deleted_at`

// CreateUser creates a new user.
func CreateUser(ctx context.Context, db *sqlx.DB, username, passwordHash string, role model.Role, department string) (*model.User, error) {
	if !role.Valid() {
		return nil, invalid("invalid role %q", role)
	}
	id, err := insert(ctx, db,
		`INSERT INTO users (username, password_hash, role, department, created_at) VALUES (?, ?, ?, ?, ?)`,
		username, passwordHash, role, department, now(),
	)
	if isUniqueViolation(err) {
		return nil, invalid("username %q already exists", username)
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sqlx.DB, id int64) (*model.User, error) {
	return getUser(ctx, db, id)
}

func getUser(ctx context.Context, q sqlx.ExtContext, id int64) (*model.User, error) {
	u := &model.User{}
	err := get(ctx, q, u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, notFound("user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the live user with username.
func GetUserByUsername(ctx context.Context, db *sqlx.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := get(ctx, db, u,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username)
	if isNoRows(err) {
		return nil, notFound("user %q not found", username)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, db *sqlx.DB) ([]model.User, error) {
	var users []model.User
	err := sel(ctx, db, &users, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// UpdateUser updates a user's role and department.
func UpdateUser(ctx context.Context, db *sqlx.DB, id int64, role model.Role, department string) error {
	if !role.Valid() {
		return invalid("invalid role %q", role)
	}
	res, err := exec(ctx, db,
		`UPDATE users SET role = ?, department = ? WHERE id = ? AND deleted_at IS NULL`,
		role, department, id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user %d not found", id)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sqlx.DB, id int64, passwordHash string) error {
	res, err := exec(ctx, db,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user %d not found", id)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, db *sqlx.DB, id int64) error {
	res, err := exec(ctx, db,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now(), id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user %d not found", id)
	}
	return nil
}
