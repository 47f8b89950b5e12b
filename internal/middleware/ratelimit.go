package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewRateLimiter allows perMinute requests per client with a burst of the same size.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 0
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   limit,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		logger:  logger,
		now:     time.Now,
	}
}

// Middleware rejects requests over budget with 429.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit == rate.Inf {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if !l.allow(ip) {
			l.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.FullPath()))
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Sweep forgets clients idle longer than the idle TTL.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	removed := 0
	for ip, client := range l.clients {
		if client.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) allow(ip string) bool {
	l.mu.Lock()
	client, ok := l.clients[ip]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = client
	}
	now := l.now()
	client.lastSeen = now
	l.mu.Unlock()
	return client.limiter.AllowN(now, 1)
}
