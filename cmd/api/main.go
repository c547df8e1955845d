package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crossskill/coachhub/internal/audit"
	"github.com/crossskill/coachhub/internal/auth"
	"github.com/crossskill/coachhub/internal/config"
	"github.com/crossskill/coachhub/internal/db"
	"github.com/crossskill/coachhub/internal/directory"
	"github.com/crossskill/coachhub/internal/domain/user"
	httpx "github.com/crossskill/coachhub/internal/http"
	"github.com/crossskill/coachhub/internal/http/middlewares"
	"github.com/crossskill/coachhub/internal/livekit"
	"github.com/crossskill/coachhub/internal/notifications"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/crossskill/coachhub/internal/repo/filestore"
	"github.com/crossskill/coachhub/internal/repo/postgres"
	"github.com/crossskill/coachhub/internal/repo/redisstore"
	"github.com/crossskill/coachhub/internal/security"
	"github.com/crossskill/coachhub/internal/sweeper"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type userStore interface {
	auth.UserStore
	Ping(ctx context.Context) error
}

type tokenStore interface {
	auth.ResetTokenStore
	sweeper.Store
}

type stores struct {
	users  userStore
	tokens tokenStore
	ping   func(ctx context.Context) error
	close  func()
}

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	tracing := false
	if cfg.OTELEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: "coachhub-api",
			Version:     version,
			Environment: cfg.Env,
			Endpoint:    cfg.OTELEndpoint,
		})
		if err != nil {
			log.Warn("tracing disabled", "err", err)
		} else {
			tracing = true
			defer func() {
				sctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	seed, err := seedAdmin(cfg)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, seed, log, prom)
	if err != nil {
		return err
	}
	defer st.close()

	dir := newDirectory(cfg, prom)

	notifier := notifications.NewLogNotifier(log)
	notifier.RedactLink = cfg.IsProduction()

	svc := auth.NewService(st.users, st.tokens, dir, notifier, auth.Config{
		FrontendURL:      cfg.FrontendURL,
		ResetTokenTTL:    cfg.ResetTokenTTL,
		ExposeResetToken: !cfg.IsProduction(),
	}, log, prom)

	issuer := livekit.NewIssuer(cfg.LiveKitAPIKey, cfg.LiveKitSecret, cfg.LiveKitURL, cfg.LiveKitTokenTTL)
	if !issuer.Configured() {
		log.Warn("livekit credentials not configured, /token will fail")
	}

	var auditLog *audit.Logger
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath, log)
		if err != nil {
			return err
		}
		defer auditLog.Close()
	}

	limiter := middlewares.NewRateLimiter(middlewares.RateLimiterConfig{
		Rate:  rate.Limit(cfg.AuthRateLimit),
		Burst: cfg.AuthRateBurst,
	})
	defer limiter.Stop()

	sw := sweeper.New(sweeper.Config{Interval: cfg.SweepInterval}, st.tokens, log, prom)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		_ = sw.Run(ctx)
	}()

	router := httpx.NewRouter(httpx.Deps{
		Config:      cfg,
		Log:         log,
		Prom:        prom,
		Auth:        svc,
		Issuer:      issuer,
		Audit:       auditLog,
		Ping:        st.ping,
		AuthLimiter: limiter,
		Tracing:     tracing,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			"port", cfg.Port,
			"env", cfg.Env,
			"store", cfg.StoreDriver,
			"reset_tokens", cfg.ResetTokenDriver,
			"version", version,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("server shutting down")

	sctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}

	select {
	case <-sweepDone:
	case <-sctx.Done():
		log.Error("sweeper did not stop in time")
	}

	log.Info("shutdown complete")
	return nil
}

func seedAdmin(cfg config.Config) (user.User, error) {
	hash, err := security.HashPassword(cfg.AdminPassword)
	if err != nil {
		return user.User{}, fmt.Errorf("hash seed admin password: %w", err)
	}
	return user.User{
		ID:           "1",
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		Email:        cfg.AdminEmail,
		Name:         cfg.AdminName,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func openStores(ctx context.Context, cfg config.Config, seed user.User, log *slog.Logger, prom *observability.Prom) (stores, error) {
	var (
		pool    *pgxpool.Pool
		rdb     *redis.Client
		closers []func()
	)
	st := stores{}
	st.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.StoreDriver == config.DriverPostgres || cfg.ResetTokenDriver == config.DriverPostgres {
		var err error
		pool, err = db.ConnectWithRetry(ctx, cfg.DBURL, 5, log)
		if err != nil {
			return st, err
		}
		closers = append(closers, pool.Close)

		if err := db.Migrate(ctx, pool); err != nil {
			st.close()
			return st, err
		}
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		created, err := db.EnsureAdminUser(ctx, pool, seed)
		if err != nil {
			st.close()
			return st, err
		}
		if created {
			log.Info("seeded admin user", "username", seed.Username)
		}
		st.users = postgres.NewUsersRepo(pool, prom)
	case config.DriverFile:
		st.users = filestore.NewUsersRepo(cfg.UsersFile, seed, log, prom)
	default:
		st.close()
		return st, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	pings := []func(context.Context) error{st.users.Ping}

	switch cfg.ResetTokenDriver {
	case config.DriverPostgres:
		st.tokens = postgres.NewResetTokensRepo(pool, prom)
	case config.DriverRedis:
		rdb = redisstore.NewClient(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, func() { _ = rdb.Close() })

		if err := redisstore.Ping(ctx, rdb); err != nil {
			st.close()
			return st, err
		}
		tokens := redisstore.NewResetTokensRepo(rdb, log, prom)
		st.tokens = tokens
		pings = append(pings, tokens.Ping)
	case config.DriverFile:
		st.tokens = filestore.NewResetTokensRepo(cfg.ResetTokensFile, log, prom)
	default:
		st.close()
		return st, fmt.Errorf("unknown RESET_TOKEN_DRIVER %q", cfg.ResetTokenDriver)
	}

	st.ping = func(ctx context.Context) error {
		for _, p := range pings {
			if err := p(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	return st, nil
}

func newDirectory(cfg config.Config, prom *observability.Prom) directory.Directory {
	if cfg.DirectoryBaseURL == "" {
		return directory.Disabled{}
	}

	client := directory.NewClient(directory.Config{
		BaseURL:   cfg.DirectoryBaseURL,
		APIKey:    cfg.DirectoryAPIKey,
		APISecret: cfg.DirectoryAPISecret,
	}, &http.Client{Timeout: cfg.DirectoryTimeout})

	return directory.NewProtected(client, directory.ProtectedConfig{
		Timeout:          cfg.DirectoryTimeout,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	}, prom)
}
