package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"session-auth/backend/internal/platform/logger"
	sessiondomain "session-auth/backend/internal/session/domain"
)

// RequestLogger puts a request-scoped logger and the client metadata into the
// request context and logs every completed request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return func(c *gin.Context) {
		start := time.Now()
		meta := sessiondomain.ClientMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		ctx := WithClientMeta(c.Request.Context(), meta)
		ctx = logger.ToContext(ctx, log.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		logger.FromContext(c.Request.Context()).Info("request",
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
			zap.String("ip", meta.IPAddress),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
