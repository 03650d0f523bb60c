package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map between cleanups.
const maxTrackedClients = 1000

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	RequestsPerMinute int           // Sustained requests per client per minute; 0 disables limiting
	BurstSize         int           // Allow burst of N requests
	CleanupInterval   time.Duration // How often to clean up old entries
}

// ClientRateLimiter manages one token bucket per client address.
type ClientRateLimiter struct {
	config      RateLimiterConfig
	limiters    map[string]*rate.Limiter
	mu          sync.Mutex
	logger      *zap.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewClientRateLimiter creates a limiter and starts its cleanup goroutine. Call Stop to
// end it.
func NewClientRateLimiter(config RateLimiterConfig, logger *zap.Logger) *ClientRateLimiter {
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := &ClientRateLimiter{
		config:      config,
		limiters:    make(map[string]*rate.Limiter),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	// Start cleanup goroutine
	go limiter.cleanupRoutine()

	return limiter
}

// cleanupRoutine periodically removes stale entries
func (l *ClientRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup forgets every client once too many are tracked; a forgotten client starts
// again with a full burst.
func (l *ClientRateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) > maxTrackedClients {
		l.logger.Info("Cleaning up rate limiter cache", zap.Int("client_limiters", len(l.limiters)))
		l.limiters = make(map[string]*rate.Limiter)
	}
}

// Stop stops the cleanup routine
func (l *ClientRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

func (l *ClientRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, exists := l.limiters[key]
	if !exists {
		every := rate.Inf
		if l.config.RequestsPerMinute > 0 {
			every = rate.Limit(float64(l.config.RequestsPerMinute) / 60.0)
		}
		lim = rate.NewLimiter(every, l.config.BurstSize)
		l.limiters[key] = lim
	}
	return lim
}

// Allow checks if a request from key can proceed and consumes a token if so
func (l *ClientRateLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

// Remaining returns the whole tokens left for key.
func (l *ClientRateLimiter) Remaining(key string) int {
	tokens := l.limiter(key).Tokens()
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}

// RateLimitMiddleware creates a Gin middleware limiting requests per client IP.
func RateLimitMiddleware(limiter *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter.config.RequestsPerMinute <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP()
		allowed := limiter.Allow(key)
		limit := limiter.config.BurstSize
		remaining := limiter.Remaining(key)

		// Add rate limit headers
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if logger := LoggerFrom(c); logger != nil {
				logger.Warn("Rate limit exceeded",
					zap.String("client_ip", key),
					zap.Int("limit", limit))
			}

			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}
