package middleware

import (
	"sync"

	"telecare/pkg/config"
	"telecare/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LimiterStore hands out one token bucket per key.
type LimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewLimiterStore(r rate.Limit, burst int) *LimiterStore {
	return &LimiterStore{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

func (s *LimiterStore) Get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.rate, s.burst)
		s.limiters[key] = limiter
	}
	return limiter
}

// Allow consumes one token for key.
func (s *LimiterStore) Allow(key string) bool {
	return s.Get(key).Allow()
}

// NewHTTPRateLimitMiddleware limits requests per authenticated participant,
// or per client IP before authentication.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := NewLimiterStore(rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond), cfg.RateLimiting.HTTP.Burst)
	return func(c *gin.Context) {
		key := c.ClientIP()
		if pid := c.GetString("participant_id"); pid != "" {
			key = "participant:" + pid
		}
		if !store.Allow(key) {
			c.Header("Retry-After", "1")
			abort(c, errors.NewRateLimitError())
			return
		}
		c.Next()
	}
}
