package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(limiter *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/generate", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func postFrom(router *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterRejectsOverBudget(t *testing.T) {
	limiter := NewRateLimiter(2, nil)
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	router := newLimitedRouter(limiter)

	assert.Equal(t, http.StatusNoContent, postFrom(router, "10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, postFrom(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, postFrom(router, "10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, postFrom(router, "10.0.0.2"))

	now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusNoContent, postFrom(router, "10.0.0.1"))
}

func TestRateLimiterDisabled(t *testing.T) {
	router := newLimitedRouter(NewRateLimiter(0, nil))
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusNoContent, postFrom(router, "10.0.0.1"))
	}
}

func TestRateLimiterSweep(t *testing.T) {
	limiter := NewRateLimiter(5, nil)
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	router := newLimitedRouter(limiter)
	postFrom(router, "10.0.0.1")

	assert.Equal(t, 0, limiter.Sweep())
	now = now.Add(11 * time.Minute)
	assert.Equal(t, 1, limiter.Sweep())
}
