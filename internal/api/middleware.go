package api

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/steveyegge/cutover/internal/types"
)

const (
	headerTenant  = "X-Tenant-ID"
	headerProgram = "X-Program-ID"
	headerActor   = "X-Actor"

	scopeKey = "cutover.scope"
)

// requireScope reads the tenant/program headers. Both are required.
func (s *Server) requireScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := types.Scope{
			TenantID:  strings.TrimSpace(c.GetHeader(headerTenant)),
			ProgramID: strings.TrimSpace(c.GetHeader(headerProgram)),
		}
		if scope.TenantID == "" {
			s.writeError(c, types.Invalid(headerTenant, "header is required"))
			return
		}
		if scope.ProgramID == "" {
			s.writeError(c, types.Invalid(headerProgram, "header is required"))
			return
		}
		c.Set(scopeKey, scope)
		c.Next()
	}
}

func scopeOf(c *gin.Context) types.Scope {
	v, _ := c.Get(scopeKey)
	scope, _ := v.(types.Scope)
	return scope
}

func actorOf(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(headerActor))
}

// requestLogger logs each request through slog and feeds the request
// metrics.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.metrics.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.latency.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}
		s.log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"tenant", c.GetHeader(headerTenant),
			"program", c.GetHeader(headerProgram),
		)
	}
}
