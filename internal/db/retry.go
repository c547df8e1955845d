package db

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backoff returns the wait before retry number attempt (0-based): 500ms
// doubling up to 10s, plus up to 250ms of jitter.
func Backoff(attempt int) time.Duration {
	base := 500 * time.Millisecond
	capDelay := 10 * time.Second

	delay := capDelay
	if attempt < 16 {
		delay = min(time.Duration(float64(base)*math.Pow(2, float64(attempt))), capDelay)
	}

	// jitter so replicas starting together do not retry in lockstep
	return delay + time.Duration(rand.Intn(250))*time.Millisecond
}

// ConnectWithRetry calls NewPool until it succeeds, attempts run out or ctx is
// done. Useful when the API and the database start together.
func ConnectWithRetry(ctx context.Context, dbURL string, attempts int, log *slog.Logger) (*pgxpool.Pool, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		pool, err := NewPool(ctx, dbURL)
		if err == nil {
			return pool, nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}

		wait := Backoff(i)
		log.WarnContext(ctx, "database not ready, retrying", "attempt", i+1, "wait", wait.String(), "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}
