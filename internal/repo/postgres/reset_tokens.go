package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/crossskill/coachhub/internal/domain/resettoken"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/crossskill/coachhub/internal/repo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ResetTokensRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewResetTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *ResetTokensRepo {
	return &ResetTokensRepo{pool: pool, prom: prom}
}

// Issue stores t and drops tokens that have already expired.
func (r *ResetTokensRepo) Issue(ctx context.Context, t resettoken.Token, now time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = r.prom.ObserveDB("reset_tokens.purge", func() error {
		_, err := tx.Exec(ctx, `DELETE FROM reset_tokens WHERE expires_at <= $1`, now)
		return err
	})
	if err != nil {
		return err
	}

	err = r.prom.ObserveDB("reset_tokens.insert", func() error {
		_, err := tx.Exec(ctx, `
			INSERT INTO reset_tokens (token, email, expires_at, created_at)
			VALUES ($1, $2, $3, $4)
		`, t.Token, t.Email, t.ExpiresAt, now)
		return err
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ResetTokensRepo) Lookup(ctx context.Context, token string, now time.Time) (resettoken.Token, error) {
	var t resettoken.Token

	err := r.prom.ObserveDB("reset_tokens.lookup", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT token, email, expires_at FROM reset_tokens
			WHERE token = $1 AND expires_at > $2
		`, token, now).Scan(&t.Token, &t.Email, &t.ExpiresAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resettoken.Token{}, repo.ErrTokenNotFound
		}
		return resettoken.Token{}, err
	}
	return t, nil
}

// Consume deletes the token if it is still live. Of two concurrent callers
// only one gets the row back.
func (r *ResetTokensRepo) Consume(ctx context.Context, token string, now time.Time) (resettoken.Token, error) {
	var t resettoken.Token

	err := r.prom.ObserveDB("reset_tokens.consume", func() error {
		return r.pool.QueryRow(ctx, `
			DELETE FROM reset_tokens
			WHERE token = $1 AND expires_at > $2
			RETURNING token, email, expires_at
		`, token, now).Scan(&t.Token, &t.Email, &t.ExpiresAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resettoken.Token{}, repo.ErrTokenNotFound
		}
		return resettoken.Token{}, err
	}
	return t, nil
}

func (r *ResetTokensRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var n int64

	err := r.prom.ObserveDB("reset_tokens.purge", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE expires_at <= $1`, now)
		n = tag.RowsAffected()
		return err
	})
	return int(n), err
}
