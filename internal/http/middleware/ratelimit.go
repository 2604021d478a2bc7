package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/ctxutil"
	"github.com/substratelabs/failurelens-backend/internal/ratelimit"
)

// RateLimit applies a sliding-window limit keyed by the authenticated user,
// or by client IP for anonymous callers.
func RateLimit(l *ratelimit.Limiter, prefix string, limit int, window time.Duration, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := prefix + ":" + c.ClientIP()
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != uuid.Nil {
			key = prefix + ":" + rd.UserID.String()
		}
		ok, remaining := l.Allow(key, limit, window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			m.IncRateLimited(prefix)
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.AbortError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		c.Next()
	}
}
