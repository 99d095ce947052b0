package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/br0z1/social-media-app/internal/logger"
)

// windowCounter is satisfied by cache.RedisClient
type windowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisRateLimitMiddleware creates a distributed fixed-window limiter shared
// by every server instance. When Redis errors the request is judged by the
// local limiter instead.
func RedisRateLimitMiddleware(counter windowCounter, maxRequests int, window time.Duration, fallback *RateLimiter) gin.HandlerFunc {
	limit := strconv.Itoa(maxRequests)
	return func(c *gin.Context) {
		key := c.ClientIP()
		c.Header("X-RateLimit-Limit", limit)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		count, ttl, err := counter.IncrWindow(ctx, fmt.Sprintf("rate_limit:%s", key), window)
		cancel()

		if err != nil {
			logger.Log.Warn("Redis rate limiter unavailable, using local limiter",
				logger.WithIP(key),
				zap.Error(err),
			)
			if ok, retry := fallback.Reserve(key); !ok {
				rejectRateLimited(c, key, retry)
				return
			}
			c.Next()
			return
		}

		if count > int64(maxRequests) {
			if ttl <= 0 {
				ttl = window
			}
			rejectRateLimited(c, key, ttl)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(maxRequests)-count, 10))
		c.Next()
	}
}
