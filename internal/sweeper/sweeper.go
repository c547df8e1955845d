// Package sweeper periodically deletes expired reset tokens.
package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crossskill/coachhub/internal/observability"
)

type Store interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	Interval time.Duration
	// Timeout bounds a single purge.
	Timeout time.Duration
}

type Sweeper struct {
	cfg   Config
	store Store
	log   *slog.Logger
	prom  *observability.Prom

	now      func() time.Time
	lastRun  atomic.Int64
	lastFail atomic.Bool
}

func New(cfg Config, store Store, log *slog.Logger, prom *observability.Prom) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Sweeper{
		cfg:   cfg,
		store: store,
		log:   log,
		prom:  prom,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.InfoContext(ctx, "sweeper started", "interval", s.cfg.Interval.String())

	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "sweeper stopping")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce purges expired tokens and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	now := s.now()
	n, err := s.store.PurgeExpired(ctx, now)
	s.lastRun.Store(now.Unix())

	if err != nil {
		s.lastFail.Store(true)
		s.log.ErrorContext(ctx, "reset token sweep failed", "err", err)
		return 0
	}
	s.lastFail.Store(false)

	if n > 0 {
		s.prom.ResetTokens("purged", n)
		s.log.InfoContext(ctx, "expired reset tokens purged", "count", n)
	}
	return n
}

// LastRun is zero until the first sweep completes.
func (s *Sweeper) LastRun() time.Time {
	v := s.lastRun.Load()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func (s *Sweeper) Healthy() bool {
	return !s.lastFail.Load()
}
