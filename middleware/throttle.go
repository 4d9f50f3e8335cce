package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	throttleMaxClients = 10_000
	throttleIdleTTL    = 10 * time.Minute
)

// Throttle applies a per-client-IP token bucket to every request. A
// non-positive rate disables it.
func Throttle(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(math.Ceil(perSecond))
	}
	buckets := expirable.NewLRU[string, *rate.Limiter](throttleMaxClients, nil, throttleIdleTTL)
	var mu sync.Mutex

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if lim, ok := buckets.Get(ip); ok {
			return lim
		}
		lim := rate.NewLimiter(rate.Limit(perSecond), burst)
		buckets.Add(ip, lim)
		return lim
	}

	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/perSecond))))
	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}
