package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
	"github.com/patrickmn/go-cache"
)

// RateLimit allows every client IP rate requests per second with bursts of
// ten times that. Buckets of idle clients expire after ten minutes. A rate of
// zero disables the limit.
func RateLimit(rate float64) gin.HandlerFunc {
	if rate <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	buckets := cache.New(time.Minute*10, time.Minute*5)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		b := ratelimit.NewBucketWithRate(rate, int64(rate*10)+1)
		if err := buckets.Add(ip, b, cache.DefaultExpiration); err != nil {
			if v, ok := buckets.Get(ip); ok {
				b = v.(*ratelimit.Bucket)
			}
		}
		if b.TakeAvailable(1) == 0 {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please slow down."})
			return
		}
		c.Next()
	}
}
