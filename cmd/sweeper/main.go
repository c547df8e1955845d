package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/crossskill/coachhub/internal/config"
	"github.com/crossskill/coachhub/internal/db"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/crossskill/coachhub/internal/repo/filestore"
	"github.com/crossskill/coachhub/internal/repo/postgres"
	"github.com/crossskill/coachhub/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// The sweeper purges expired reset tokens out of process, for deployments
// that run several API replicas against one store.
func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	prom := observability.NewProm(prometheus.NewRegistry())

	var (
		store sweeper.Store
		deps  pingFunc
	)

	switch cfg.ResetTokenDriver {
	case config.DriverPostgres:
		pool, err := db.ConnectWithRetry(ctx, cfg.DBURL, 5, log)
		if err != nil {
			log.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		store = postgres.NewResetTokensRepo(pool, prom)
		deps = pool.Ping
	case config.DriverFile:
		store = filestore.NewResetTokensRepo(cfg.ResetTokensFile, log, prom)
		deps = func(context.Context) error { return nil }
	default:
		// redis expires keys on its own
		log.Error("sweeper has nothing to do for this reset token driver", "driver", cfg.ResetTokenDriver)
		os.Exit(1)
	}

	s := sweeper.New(sweeper.Config{Interval: cfg.SweepInterval}, store, log, prom)

	var shuttingDown atomic.Bool
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.SweeperPort),
		Handler:           sweeper.HealthRouter(s, deps, shuttingDown.Load),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("sweeper health server failed", "err", err)
		}
	}()

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sweeper stopped with error", "err", err)
	}

	shuttingDown.Store(true)

	sctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)

	log.Info("sweeper shutdown complete")
}
