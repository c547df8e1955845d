package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crossskill/coachhub/internal/domain/resettoken"
	"github.com/crossskill/coachhub/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokensRepo(t *testing.T) (*ResetTokensRepo, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reset-tokens.json")
	return NewResetTokensRepo(path, nil, nil), path
}

func TestResetTokensLookupAndConsume(t *testing.T) {
	r, _ := newTokensRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tok := resettoken.Token{Email: "a@x.com", Token: "tok-1", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, r.Issue(ctx, tok, now))

	got, err := r.Lookup(ctx, "tok-1", now)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	consumed, err := r.Consume(ctx, "tok-1", now)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", consumed.Token)

	_, err = r.Consume(ctx, "tok-1", now)
	assert.ErrorIs(t, err, repo.ErrTokenNotFound)

	_, err = r.Lookup(ctx, "tok-1", now)
	assert.ErrorIs(t, err, repo.ErrTokenNotFound)
}

func TestResetTokensExpiry(t *testing.T) {
	r, _ := newTokensRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Issue(ctx, resettoken.Token{Email: "a@x.com", Token: "tok", ExpiresAt: now.Add(time.Hour)}, now))

	_, err := r.Lookup(ctx, "tok", now.Add(time.Hour))
	assert.ErrorIs(t, err, repo.ErrTokenNotFound, "a token is dead exactly at expiresAt")

	_, err = r.Consume(ctx, "tok", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, repo.ErrTokenNotFound)
}

func TestResetTokensMultiplePerEmail(t *testing.T) {
	r, _ := newTokensRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.Issue(ctx, resettoken.Token{Email: "a@x.com", Token: "first", ExpiresAt: now.Add(time.Hour)}, now))
	require.NoError(t, r.Issue(ctx, resettoken.Token{Email: "a@x.com", Token: "second", ExpiresAt: now.Add(time.Hour)}, now))

	_, err := r.Lookup(ctx, "first", now)
	assert.NoError(t, err)
	_, err = r.Lookup(ctx, "second", now)
	assert.NoError(t, err)
}

func TestResetTokensPurge(t *testing.T) {
	r, _ := newTokensRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Issue(ctx, resettoken.Token{Email: "a@x.com", Token: "old", ExpiresAt: now.Add(time.Minute)}, now))
	require.NoError(t, r.Issue(ctx, resettoken.Token{Email: "b@x.com", Token: "new", ExpiresAt: now.Add(time.Hour)}, now))

	n, err := r.PurgeExpired(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.PurgeExpired(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = r.Lookup(ctx, "new", now.Add(30*time.Minute))
	assert.NoError(t, err)
}

func TestResetTokensIssuePurgesExpired(t *testing.T) {
	r, _ := newTokensRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Issue(ctx, resettoken.Token{Email: "a@x.com", Token: "old", ExpiresAt: now.Add(time.Minute)}, now))
	later := now.Add(time.Hour)
	require.NoError(t, r.Issue(ctx, resettoken.Token{Email: "a@x.com", Token: "fresh", ExpiresAt: later.Add(time.Hour)}, later))

	r.mu.Lock()
	tokens := r.load(ctx)
	r.mu.Unlock()

	require.Len(t, tokens, 1)
	assert.Equal(t, "fresh", tokens[0].Token)
}

func TestResetTokensCorruptFileIsReplacedOnIssue(t *testing.T) {
	r, path := newTokensRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, err := r.Lookup(ctx, "anything", now)
	assert.ErrorIs(t, err, repo.ErrTokenNotFound)

	require.NoError(t, r.Issue(ctx, resettoken.Token{Email: "a@x.com", Token: "tok", ExpiresAt: now.Add(time.Hour)}, now))
	_, err = r.Lookup(ctx, "tok", now)
	assert.NoError(t, err)
}
