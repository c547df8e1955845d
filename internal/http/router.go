package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/crossskill/coachhub/internal/audit"
	"github.com/crossskill/coachhub/internal/config"
	"github.com/crossskill/coachhub/internal/http/handlers"
	"github.com/crossskill/coachhub/internal/http/middlewares"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "coachhub-api"

type Deps struct {
	Config config.Config
	Log    *slog.Logger
	Prom   *observability.Prom

	Auth   handlers.AuthService
	Issuer handlers.TokenIssuer
	Audit  *audit.Logger

	// Ping backs /readyz. Nil means always ready.
	Ping func(ctx context.Context) error

	// AuthLimiter throttles /api/auth per client IP. Nil disables it.
	AuthLimiter *middlewares.RateLimiter

	// Tracing adds otelgin spans; set once a tracer provider is installed.
	Tracing bool
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != config.EnvDev {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	expose := !d.Config.IsProduction()
	maxBody := d.Config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	r := gin.New()

	// middleware
	r.Use(handlers.Recovery(expose))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.SecurityHeaders(d.Config.IsProduction()))
	r.Use(middlewares.CORSMiddleware(d.Config.AllowedOrigins))
	if d.Tracing {
		r.Use(otelgin.Middleware(serviceName))
	}
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondError(ctx, http.StatusNotFound, "not_found", "Not found", nil)
	})

	// health
	health := handlers.NewHealthHandler(d.Config.Env, d.Ping)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if d.Prom != nil {
		r.GET("/metrics", gin.WrapH(d.Prom.Handler()))
	}

	// auth
	authHandler := handlers.NewAuthHandler(d.Auth, expose)

	authGroup := r.Group("/api/auth")
	if d.AuthLimiter != nil {
		authGroup.Use(d.AuthLimiter.Middleware(middlewares.KeyByIP))
	}
	authGroup.Use(middlewares.RequireJSON(), middlewares.MaxBodyBytes(maxBody))
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
		authGroup.POST("/reset-password/confirm", authHandler.ResetPasswordConfirm)
	}

	// live sessions
	liveKit := handlers.NewLiveKitHandler(d.Issuer, d.Audit)
	r.GET("/token", liveKit.Token)

	auditHandler := handlers.NewAuditHandler(d.Audit)
	r.POST("/audit", middlewares.RequireJSON(), middlewares.MaxBodyBytes(maxBody), auditHandler.Record)

	return r
}
