package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/service"
)

// Metrics returns middleware that captures request metrics using the provided service.
// Probe and scrape routes are left out of the histograms.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if _, ok := skipped[path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
