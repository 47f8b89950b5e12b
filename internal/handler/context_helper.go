package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/middleware"
)

// actorFromContext names the caller for audit columns. There is no authentication layer,
// so the value is whatever the upstream gateway forwards.
func actorFromContext(c *gin.Context) string {
	if actor := strings.TrimSpace(c.GetHeader(middleware.ActorHeader)); actor != "" {
		return actor
	}
	return "anonymous"
}
