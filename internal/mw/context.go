package mw

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/apperr"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's request id or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(appctx.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Tenant reads the tenant and actor headers into the request context.
// Requests without a tenant are rejected with 401.
func Tenant(tenantHeader, actorHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(tenantHeader))
		if tenantID == "" {
			c.AbortWithStatusJSON(apperr.ErrTenantRequired.HTTPStatus, apperr.ErrTenantRequired.WithParams(map[string]any{
				"header": tenantHeader,
			}))
			return
		}
		ctx := appctx.WithTenant(c.Request.Context(), tenantID)
		if actor := strings.TrimSpace(c.GetHeader(actorHeader)); actor != "" {
			ctx = appctx.WithActor(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Logger writes one structured line per request.
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		tenantID, _ := appctx.TenantID(ctx)
		fields := logrus.Fields{
			"request_id": appctx.RequestID(ctx),
			"tenant_id":  tenantID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}
		entry := logger.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error(c.Errors.String())
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}
