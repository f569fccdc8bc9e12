package middlewares

import (
	"net"
	"net/http"
	"strconv"

	"github.com/calder-labs/webbase/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// LoginRateLimiter throttles credential-guessing by client IP using the
// Redis fixed-window limiter. A nil limiter disables throttling (dev setups
// without Redis).
func LoginRateLimiter(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := "login:" + clientIP(c)

		if !limiter.Allow(c.Request.Context(), key) {
			retryAfter := int(limiter.RetryAfter().Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})
			return
		}

		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	// Normalize away any port.
	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
