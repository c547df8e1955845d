package sweeper

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthRouter serves /healthz and /readyz for a standalone sweeper process.
func HealthRouter(s *Sweeper, deps Pinger, isShuttingDown func() bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "healthy": s.Healthy()}
		if last := s.LastRun(); !last.IsZero() {
			body["lastRun"] = last.Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/readyz", func(c *gin.Context) {
		if isShuttingDown() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		defer cancel()

		if err := deps.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return r
}
