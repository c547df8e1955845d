package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	// Stores
	StoreErrorsTotal *prometheus.CounterVec
	DbQueryDuration  *prometheus.HistogramVec
	DbErrorsTotal    *prometheus.CounterVec

	// External directory
	DirectoryCallsTotal   *prometheus.CounterVec
	DirectoryCallDuration *prometheus.HistogramVec

	// Auth
	AuthResultsTotal *prometheus.CounterVec
	ResetTokensTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewProm registers the collectors on reg. When reg is also a Gatherer it is
// used by Handler.
func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coachhub",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "coachhub",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				// bcrypt dominates the auth routes
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "coachhub",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coachhub",
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Persistence errors by store and logical op.",
			},
			[]string{"store", "op"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "coachhub",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coachhub",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		DirectoryCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coachhub",
				Subsystem: "directory",
				Name:      "calls_total",
				Help:      "External directory calls by op and result.",
			},
			[]string{"op", "result"}, // result=ok|rejected|unavailable|circuit_open
		),
		DirectoryCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "coachhub",
				Subsystem: "directory",
				Name:      "call_duration_seconds",
				Help:      "External directory call latency.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"op"},
		),
		AuthResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coachhub",
				Subsystem: "auth",
				Name:      "results_total",
				Help:      "Auth operation outcomes.",
			},
			[]string{"op", "result"},
		),
		ResetTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coachhub",
				Subsystem: "auth",
				Name:      "reset_tokens_total",
				Help:      "Password reset token lifecycle events.",
			},
			[]string{"event"}, // event=issued|consumed|purged
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.StoreErrorsTotal, p.DbQueryDuration, p.DbErrorsTotal,
		p.DirectoryCallsTotal, p.DirectoryCallDuration,
		p.AuthResultsTotal, p.ResetTokensTotal,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		p.gatherer = g
	} else {
		p.gatherer = prometheus.DefaultGatherer
	}

	return p
}

// The helpers below are nil-safe so components can run without metrics in tests.

func (p *Prom) StoreError(store, op string) {
	if p == nil {
		return
	}
	p.StoreErrorsTotal.WithLabelValues(store, op).Inc()
}

func (p *Prom) DirectoryCall(op, result string, d time.Duration) {
	if p == nil {
		return
	}
	p.DirectoryCallsTotal.WithLabelValues(op, result).Inc()
	p.DirectoryCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *Prom) AuthResult(op, result string) {
	if p == nil {
		return
	}
	p.AuthResultsTotal.WithLabelValues(op, result).Inc()
}

func (p *Prom) ResetTokens(event string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.ResetTokensTotal.WithLabelValues(event).Add(float64(n))
}

func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
