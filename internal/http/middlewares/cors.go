package middlewares

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET,POST,PUT,DELETE,OPTIONS,PATCH"
	corsHeaders = "Content-Type, Authorization, X-Requested-With"
)

// OriginMatcher checks origins against an allow-list. Entries may contain "*"
// to match one host label segment, e.g. "https://main.*.amplifyapp.com".
type OriginMatcher struct {
	exact    map[string]struct{}
	patterns []string
}

func NewOriginMatcher(allowedOrigins []string) *OriginMatcher {
	m := &OriginMatcher{exact: make(map[string]struct{}, len(allowedOrigins))}

	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if strings.Contains(origin, "*") {
			m.patterns = append(m.patterns, origin)
			continue
		}
		m.exact[origin] = struct{}{}
	}

	return m
}

func (m *OriginMatcher) Allowed(origin string) bool {
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, p := range m.patterns {
		// path.Match's "*" stops at "/", so a wildcard cannot swallow the scheme or a path.
		if ok, err := path.Match(p, origin); err == nil && ok {
			return true
		}
	}
	return false
}

func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	matcher := NewOriginMatcher(allowedOrigins)

	return func(ctx *gin.Context) {
		origin := ctx.GetHeader("Origin")
		if origin != "" && matcher.Allowed(origin) {
			ctx.Header("Access-Control-Allow-Origin", origin)
			ctx.Header("Access-Control-Allow-Credentials", "true")
			ctx.Header("Access-Control-Allow-Methods", corsMethods)
			ctx.Header("Access-Control-Allow-Headers", corsHeaders)
			ctx.Header("Vary", "Origin")
		}

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		ctx.Next()
	}
}
