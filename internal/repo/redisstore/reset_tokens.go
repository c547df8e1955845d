package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossskill/coachhub/internal/domain/resettoken"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/crossskill/coachhub/internal/repo"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "coachhub:reset:"

type ResetTokensRepo struct {
	rdb  *redis.Client
	log  *slog.Logger
	prom *observability.Prom
}

func NewResetTokensRepo(rdb *redis.Client, log *slog.Logger, prom *observability.Prom) *ResetTokensRepo {
	if log == nil {
		log = slog.Default()
	}
	return &ResetTokensRepo{rdb: rdb, log: log, prom: prom}
}

func key(token string) string { return keyPrefix + token }

// Issue stores t with a TTL matching its remaining lifetime. A token that is
// already expired is not stored.
func (r *ResetTokensRepo) Issue(ctx context.Context, t resettoken.Token, now time.Time) error {
	ttl := t.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode reset token: %w", err)
	}

	if err := r.rdb.Set(ctx, key(t.Token), raw, ttl).Err(); err != nil {
		r.prom.StoreError("reset_tokens", "issue")
		return fmt.Errorf("%w: %v", repo.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *ResetTokensRepo) Lookup(ctx context.Context, token string, now time.Time) (resettoken.Token, error) {
	raw, err := r.rdb.Get(ctx, key(token)).Bytes()
	return r.decode(ctx, "lookup", raw, err, now)
}

// Consume uses GETDEL so only one caller ever receives the token.
func (r *ResetTokensRepo) Consume(ctx context.Context, token string, now time.Time) (resettoken.Token, error) {
	raw, err := r.rdb.GetDel(ctx, key(token)).Bytes()
	return r.decode(ctx, "consume", raw, err, now)
}

func (r *ResetTokensRepo) decode(ctx context.Context, op string, raw []byte, err error, now time.Time) (resettoken.Token, error) {
	if errors.Is(err, redis.Nil) {
		return resettoken.Token{}, repo.ErrTokenNotFound
	}
	if err != nil {
		r.prom.StoreError("reset_tokens", op)
		return resettoken.Token{}, fmt.Errorf("%w: %v", repo.ErrStoreUnavailable, err)
	}

	var t resettoken.Token
	if err := json.Unmarshal(raw, &t); err != nil {
		r.log.WarnContext(ctx, "discarding undecodable reset token", "err", err)
		return resettoken.Token{}, repo.ErrTokenNotFound
	}

	if t.Expired(now) {
		return resettoken.Token{}, repo.ErrTokenNotFound
	}
	return t, nil
}

// PurgeExpired is a no-op: Redis evicts tokens when their TTL runs out.
func (r *ResetTokensRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (r *ResetTokensRepo) Ping(ctx context.Context) error {
	return Ping(ctx, r.rdb)
}
