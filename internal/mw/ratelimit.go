// Package mw holds the gin middleware shared by the parking API route
// groups.
package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiters hands out one token bucket per client IP. Buckets live for
// the process lifetime; there is no eviction, since the population is the
// API's device base and each entry is small.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	r       rate.Limit
	b       int
}

func (cl *clientLimiters) bucket(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	lim, ok := cl.buckets[ip]
	if !ok {
		lim = rate.NewLimiter(cl.r, cl.b)
		cl.buckets[ip] = lim
	}
	return lim
}

// RateLimiter caps each client IP at r requests per second with burst b,
// answering 429 once a client exceeds its bucket.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiters := &clientLimiters{
		buckets: make(map[string]*rate.Limiter),
		r:       r,
		b:       b,
	}
	return func(c *gin.Context) {
		if !limiters.bucket(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
