package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crossskill/coachhub/internal/domain/user"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/crossskill/coachhub/internal/repo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, password_hash, role, email, name, external_id, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func scanUser(row pgx.Row) (user.User, error) {
	var (
		u          user.User
		role       string
		externalID *string
	)

	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.Email, &u.Name, &externalID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}

	u.Role = user.Role(role)
	if externalID != nil {
		u.ExternalID = *externalID
	}
	return u, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	var out []user.User

	err := r.prom.ObserveDB("users.list", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_username", `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UsersRepo) getOne(ctx context.Context, op, query string, arg string) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB(op, func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, query, arg))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, repo.ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) Exists(ctx context.Context, username, email string) (bool, error) {
	var exists bool

	err := r.prom.ObserveDB("users.exists", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM users WHERE username = $1 OR email = $2
		)`, username, email).Scan(&exists)
	})
	return exists, err
}

// Create relies on the unique indexes for the final duplicate check.
func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	var externalID *string
	if u.ExternalID != "" {
		externalID = &u.ExternalID
	}

	err := r.prom.ObserveDB("users.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO users (id, username, password_hash, role, email, name, external_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, u.ID, u.Username, u.PasswordHash, string(u.Role), u.Email, u.Name, externalID, u.CreatedAt, u.UpdatedAt)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.User{}, repo.ErrDuplicateUser
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, username, hash string, at time.Time) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB("users.update_password", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, `
			UPDATE users SET password_hash = $2, updated_at = $3
			WHERE username = $1
			RETURNING `+userColumns, username, hash, at))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, repo.ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
