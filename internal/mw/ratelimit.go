package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ClientRateLimiter hands out one token bucket per client. Buckets of clients
// that stay quiet for longer than idle are evicted.
type ClientRateLimiter struct {
	buckets *cache.Cache
	mu      sync.Mutex
	r       rate.Limit
	b       int
	idle    time.Duration
}

// NewClientRateLimiter creates a limiter allowing r requests per second with bursts of b.
func NewClientRateLimiter(r rate.Limit, b int, idle time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		buckets: cache.New(idle, 2*idle),
		r:       r,
		b:       b,
		idle:    idle,
	}
}

// Limiter returns the bucket for key, creating it on first use. Every call
// extends the bucket's lifetime.
func (l *ClientRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, found := l.buckets.Get(key); found {
		limiter := v.(*rate.Limiter)
		l.buckets.Set(key, limiter, l.idle)
		return limiter
	}
	limiter := rate.NewLimiter(l.r, l.b)
	l.buckets.Set(key, limiter, l.idle)
	return limiter
}

// Clients reports how many buckets are live.
func (l *ClientRateLimiter) Clients() int {
	return l.buckets.ItemCount()
}

// RateLimiter is a middleware for per-client-IP rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	return rateLimit(NewClientRateLimiter(r, b, 10*time.Minute))
}

func rateLimit(limiter *ClientRateLimiter) gin.HandlerFunc {
	retryAfter := "1"
	if limiter.r > 0 && limiter.r < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / float64(limiter.r))))
	}
	return func(c *gin.Context) {
		if !limiter.Limiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
