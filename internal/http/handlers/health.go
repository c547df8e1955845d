package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	env  string
	ping func(ctx context.Context) error
	now  func() time.Time
}

// NewHealthHandler reports readiness through ping. A nil ping is always ready.
func NewHealthHandler(env string, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{
		env:  env,
		ping: ping,
		now:  time.Now,
	}
}

func (h *HealthHandler) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   h.now().UTC().Format(time.RFC3339Nano),
		"environment": h.env,
	})
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.ping != nil {
		cctx, cancel := context.WithTimeout(ctx.Request.Context(), time.Second)
		defer cancel()

		if err := h.ping(cctx); err != nil {
			_ = ctx.Error(err)
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
