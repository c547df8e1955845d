package db

import (
	"context"

	"github.com/crossskill/coachhub/internal/domain/user"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureAdminUser inserts admin when the users table is empty, mirroring the
// file store's first-run seed. It reports whether a row was written.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, admin user.User) (bool, error) {
	if admin.Username == "" || admin.PasswordHash == "" {
		return false, nil
	}

	tag, err := pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, email, name, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $7
		WHERE NOT EXISTS (SELECT 1 FROM users)
		ON CONFLICT DO NOTHING
	`, admin.ID, admin.Username, admin.PasswordHash, admin.Role, admin.Email, admin.Name, admin.CreatedAt)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}
