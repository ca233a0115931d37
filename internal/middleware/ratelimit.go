package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitKeyPrefix = "rate_limit:"

// fixedWindowScript increments the counter and reads its remaining TTL in
// one round trip. A key with no expiry (first hit, or an expiry lost to a
// partial failure) gets the full window re-applied so a stuck counter can
// never block an identity forever.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Result describes the limiter's decision for a single request.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RedisRateLimiter enforces a fixed-window request budget per identity,
// with the counters shared across instances through Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	logger *zap.Logger
	max    int
	window time.Duration
}

// NewRedisRateLimiter creates a limiter allowing max requests per window.
// A non-positive max disables the limiter.
func NewRedisRateLimiter(client redis.UniversalClient, logger *zap.Logger, max int, window time.Duration) *RedisRateLimiter {
	if max <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.L()
	}
	return &RedisRateLimiter{client: client, logger: logger, max: max, window: window}
}

// Check records a hit for identity and reports whether it stays within
// budget. Backend failures allow the request through: availability over
// strict throttling.
func (r *RedisRateLimiter) Check(ctx context.Context, identity string) Result {
	key := rateLimitKeyPrefix + identity

	values, err := fixedWindowScript.Run(ctx, r.client, []string{key}, r.window.Milliseconds()).Int64Slice()
	if err != nil || len(values) != 2 {
		r.logger.Warn("rate limiter unavailable, allowing request",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return Result{Allowed: true, Limit: r.max, Remaining: r.max}
	}

	count, ttl := values[0], time.Duration(values[1])*time.Millisecond
	resetAt := time.Now().Add(ttl)

	remaining := r.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    count <= int64(r.max),
		Limit:      r.max,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: ttl,
	}
}

// Handler returns gin middleware throttling by the identity that keyFn
// derives from the request. A nil limiter passes everything through.
func (r *RedisRateLimiter) Handler(keyFn func(*gin.Context) string) gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		result := r.Check(c.Request.Context(), keyFn(c))

		header := c.Writer.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.ResetAt.IsZero() {
			header.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		}

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			header.Set("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}

		c.Next()
	}
}

// ClientIPKey keys the limiter on the caller's IP.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// LoginKey keys the login limiter on IP plus the attempted email, so one
// address cannot burn the budget of every account behind a shared NAT.
func LoginKey(c *gin.Context) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindBodyWithJSON(&body); err != nil || body.Email == "" {
		return c.ClientIP()
	}
	return fmt.Sprintf("%s:%s", c.ClientIP(), body.Email)
}
