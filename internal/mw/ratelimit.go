package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/apperr"
)

// KeyedRateLimiter keeps one token bucket per key.
type KeyedRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	r        rate.Limit
	b        int
}

func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		b:        b,
	}
}

// Get returns the limiter for key, creating it on first use.
func (k *KeyedRateLimiter) Get(key string) *rate.Limiter {
	k.mu.RLock()
	limiter, exists := k.limiters[key]
	k.mu.RUnlock()
	if exists {
		return limiter
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if limiter, exists = k.limiters[key]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(k.r, k.b)
	k.limiters[key] = limiter
	return limiter
}

var errRateLimited = apperr.New("RATE_LIMITED", "too many requests", http.StatusTooManyRequests)

// RateLimiter limits requests per tenant, falling back to the client IP for
// requests that carry no tenant.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(r, b)
	return func(c *gin.Context) {
		key, ok := appctx.TenantID(c.Request.Context())
		if !ok {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.Get(key).Allow() {
			c.AbortWithStatusJSON(errRateLimited.HTTPStatus, errRateLimited)
			return
		}
		c.Next()
	}
}
