package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/pkg/middleware/requestid"
)

// ActorHeader carries the caller identity forwarded by the gateway.
const ActorHeader = "X-Actor-ID"

// Audit records an audit entry after a successful state-changing request. The
// resource id is taken from the :id route parameter when present.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("audit")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			return
		}

		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			actor = "anonymous"
		}
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("actor", actor),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, zap.String("resource_id", id))
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		logger.Info("audit", fields...)
	}
}
