package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const rateLimitWindow = time.Minute

// Counter is a fixed-window counter, implemented by the redis client.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RateLimit allows perMinute requests per client ip. A nil counter or a
// non-positive limit disables it; counter errors let the request through.
func RateLimit(counter Counter, perMinute int, prefix string, deny DenyFunc) gin.HandlerFunc {
	if deny == nil {
		deny = jsonDeny
	}
	return func(c *gin.Context) {
		if counter == nil || perMinute <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := prefix + c.ClientIP()
		n, err := counter.Incr(ctx, key, rateLimitWindow)
		if err != nil {
			if l := Logger(c); l != nil {
				l.Warn().Err(err).Msg("rate limit counter unavailable")
			}
			c.Next()
			return
		}
		if n > int64(perMinute) {
			retry := rateLimitWindow
			if ttl, err := counter.TTL(ctx, key); err == nil && ttl > 0 {
				retry = ttl
			}
			c.Header("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
			deny(c, http.StatusTooManyRequests, "too many requests, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// WithAPIKey requires the x-api-key header to equal key. An empty key disables the check.
func WithAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader("x-api-key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}
