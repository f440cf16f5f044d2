// Package httpmiddleware holds gin middleware shared by the HTTP binaries.
package httpmiddleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"classroom/internal/auth"
	"classroom/internal/metrics"
)

// RateLimiter is a fixed-window request counter in Redis, shared by every API
// replica.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
	log    *zap.Logger
}

// NewRateLimiter allows perMinute requests per caller per minute.
func NewRateLimiter(client *redis.Client, perMinute int, log *zap.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RateLimiter{
		client: client,
		limit:  perMinute,
		window: time.Minute,
		prefix: "ratelimit:",
		now:    time.Now,
		log:    log,
	}
}

// Allow counts one request for key and reports whether it is within the limit.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	k := fmt.Sprintf("%s%s:%d", l.prefix, key, slot)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, 2*l.window)
		return nil
	})
	if err != nil {
		return true, err
	}
	return incr.Val() <= int64(l.limit), nil
}

// GinMiddleware limits by bearer subject, or by client IP for anonymous
// callers. Requests pass when Redis is unreachable.
func (l *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if sub := auth.Requester(c); sub != "" {
			key = "sub:" + sub
		}
		ok, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			l.log.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			metrics.RateLimited.Inc()
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": "RATE_LIMITED"})
			return
		}
		c.Next()
	}
}
