package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crossskill/coachhub/internal/breaker"
	"github.com/crossskill/coachhub/internal/observability"
)

var ErrCircuitOpen = fmt.Errorf("%w: %w", ErrUnavailable, breaker.ErrOpen)

type ProtectedConfig struct {
	Timeout          time.Duration // hard timeout per call
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenMaxCalls int
}

// Protected bounds every call with a timeout and stops calling a directory
// that keeps failing. Rejections are answers, not failures, and never trip
// the breaker.
type Protected struct {
	inner   Directory
	timeout time.Duration
	breaker *breaker.Breaker
	prom    *observability.Prom
}

func NewProtected(inner Directory, cfg ProtectedConfig, prom *observability.Prom) *Protected {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Protected{
		inner:   inner,
		timeout: cfg.Timeout,
		breaker: breaker.New(breaker.Config{
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.Cooldown,
			HalfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		}),
		prom: prom,
	}
}

func (p *Protected) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	var out RegisterResult
	err := p.call(ctx, "register", func(ctx context.Context) error {
		var err error
		out, err = p.inner.Register(ctx, in)
		return err
	})
	return out, err
}

func (p *Protected) RequestPasswordReset(ctx context.Context, email, resetLink string) error {
	return p.call(ctx, "reset_request", func(ctx context.Context) error {
		return p.inner.RequestPasswordReset(ctx, email, resetLink)
	})
}

func (p *Protected) ConfirmPasswordReset(ctx context.Context, email, newPassword string) error {
	return p.call(ctx, "reset_confirm", func(ctx context.Context) error {
		return p.inner.ConfirmPasswordReset(ctx, email, newPassword)
	})
}

func (p *Protected) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if !p.breaker.Allow() {
		p.prom.DirectoryCall(op, "circuit_open", 0)
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)

	var rejected *RejectedError
	result := "ok"
	switch {
	case err == nil:
	case errors.As(err, &rejected):
		result = "rejected"
	default:
		result = "unavailable"
	}

	p.breaker.Done(result == "unavailable")
	p.prom.DirectoryCall(op, result, time.Since(start))

	return err
}
