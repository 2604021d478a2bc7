package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/ctxutil"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

const auditWriteTimeout = 5 * time.Second

// RequestLogger logs each request and, when audit is set, stores an
// APIRequestLog row from a detached goroutine. Audit failures are only logged.
func RequestLogger(log *logger.Logger, audit repos.RequestLogRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		dur := time.Since(start)
		td := ctxutil.GetTraceData(c.Request.Context())
		rd := ctxutil.GetRequestData(c.Request.Context())

		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", dur.Milliseconds(),
		}
		reqID := ""
		if td != nil {
			reqID = td.RequestID
			fields = append(fields, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		var userID *uuid.UUID
		if rd != nil && rd.UserID != uuid.Nil {
			id := rd.UserID
			userID = &id
			fields = append(fields, "user_id", id.String())
		}

		if log != nil {
			switch {
			case status >= 500:
				log.Error("HTTP request", fields...)
			case status >= 400:
				log.Warn("HTTP request", fields...)
			default:
				log.Debug("HTTP request", fields...)
			}
		}

		if audit == nil || c.Request.Method == "OPTIONS" {
			return
		}
		row := &types.APIRequestLog{
			ID:         uuid.New(),
			UserID:     userID,
			Method:     strings.ToUpper(c.Request.Method),
			Path:       path,
			Status:     status,
			DurationMS: dur.Milliseconds(),
			RequestID:  reqID,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			defer cancel()
			if err := audit.Create(dbctx.Context{Ctx: ctx}, row); err != nil && log != nil {
				log.Warn("Request audit write failed", "path", row.Path, "error", err)
			}
		}()
	}
}
