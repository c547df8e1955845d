package filestore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crossskill/coachhub/internal/domain/resettoken"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/crossskill/coachhub/internal/repo"
)

type ResetTokensRepo struct {
	mu   sync.Mutex
	file jsonFile[resettoken.Token]
	log  *slog.Logger
	prom *observability.Prom
}

func NewResetTokensRepo(path string, log *slog.Logger, prom *observability.Prom) *ResetTokensRepo {
	if log == nil {
		log = slog.Default()
	}
	return &ResetTokensRepo{
		file: jsonFile[resettoken.Token]{path: path},
		log:  log,
		prom: prom,
	}
}

// load must be called with mu held. Unreadable files are treated as empty;
// tokens are short-lived, so the next save is allowed to replace them.
func (r *ResetTokensRepo) load(ctx context.Context) []resettoken.Token {
	tokens, _, err := r.file.read()
	if err != nil {
		r.prom.StoreError("reset_tokens", "read")
		r.log.ErrorContext(ctx, "reset token store unreadable, treating as empty", "path", r.file.path, "err", err)
		return []resettoken.Token{}
	}
	return tokens
}

func (r *ResetTokensRepo) save(ctx context.Context, op string, tokens []resettoken.Token) error {
	if err := r.file.write(tokens); err != nil {
		r.prom.StoreError("reset_tokens", op)
		r.log.ErrorContext(ctx, "could not write reset token store", "path", r.file.path, "op", op, "err", err)
		return repo.ErrStoreUnavailable
	}
	return nil
}

func splitExpired(tokens []resettoken.Token, now time.Time) (live []resettoken.Token, expired int) {
	live = tokens[:0]
	for _, t := range tokens {
		if t.Expired(now) {
			expired++
			continue
		}
		live = append(live, t)
	}
	return live, expired
}

// Issue stores t after dropping every token already expired at now.
func (r *ResetTokensRepo) Issue(ctx context.Context, t resettoken.Token, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens, purged := splitExpired(r.load(ctx), now)
	tokens = append(tokens, t)

	if err := r.save(ctx, "issue", tokens); err != nil {
		return err
	}
	r.prom.ResetTokens("purged", purged)
	return nil
}

// Lookup returns the live token. Expired tokens seen along the way are purged.
func (r *ResetTokensRepo) Lookup(ctx context.Context, token string, now time.Time) (resettoken.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens, purged := splitExpired(r.load(ctx), now)
	if purged > 0 {
		if err := r.save(ctx, "purge", tokens); err == nil {
			r.prom.ResetTokens("purged", purged)
		}
	}

	for _, t := range tokens {
		if t.Token == token {
			return t, nil
		}
	}
	return resettoken.Token{}, repo.ErrTokenNotFound
}

// Consume removes token if it is still live at now and returns it. A second
// call with the same token gets ErrTokenNotFound.
func (r *ResetTokensRepo) Consume(ctx context.Context, token string, now time.Time) (resettoken.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens := r.load(ctx)
	for i, t := range tokens {
		if t.Token != token {
			continue
		}
		if t.Expired(now) {
			break
		}

		rest := append(tokens[:i:i], tokens[i+1:]...)
		if err := r.save(ctx, "consume", rest); err != nil {
			return resettoken.Token{}, err
		}
		return t, nil
	}
	return resettoken.Token{}, repo.ErrTokenNotFound
}

func (r *ResetTokensRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens, purged := splitExpired(r.load(ctx), now)
	if purged == 0 {
		return 0, nil
	}

	if err := r.save(ctx, "purge", tokens); err != nil {
		return 0, err
	}
	r.prom.ResetTokens("purged", purged)
	return purged, nil
}
