package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// rateLimitUserPrefix is the Redis key prefix for per-user API limits.
	rateLimitUserPrefix = "ratelimit:user:"
	// rateLimitUserTTL is the TTL for per-user rate limit keys.
	rateLimitUserTTL = 120 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript is a Lua script implementing the token bucket algorithm.
// Refill and consumption happen in one atomic step.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- bucket capacity
	local now = tonumber(ARGV[3])       -- current time in seconds
	local ttl = tonumber(ARGV[4])       -- TTL in seconds

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = math.max(0, now - last_update)
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

func userRateLimitKey(userID string) string {
	return rateLimitUserPrefix + userID
}

// CheckUserRateLimit consumes one token from userID's bucket.
// On Redis failure the request is allowed and the error is returned so the
// caller can log it.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	now := c.now()
	if ratePerMinute <= 0 {
		return &RateLimitResult{
			Allowed:   true,
			Limit:     burst,
			Remaining: int64(burst),
			ResetAt:   now.Add(time.Minute),
		}, nil
	}

	rate := float64(ratePerMinute) / 60.0

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{userRateLimitKey(userID)},
		rate, burst, now.Unix(), int(rateLimitUserTTL.Seconds()),
	).Int64Slice()
	if err != nil || len(result) != 3 {
		if err == nil {
			err = fmt.Errorf("unexpected script result %v", result)
		}
		return &RateLimitResult{
			Allowed:   true,
			Limit:     burst,
			Remaining: int64(burst),
			ResetAt:   now.Add(time.Minute),
		}, fmt.Errorf("rate limit script: %w", err)
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		Limit:      burst,
		Remaining:  result[2],
		ResetAt:    now.Add(time.Duration(float64(time.Second) / rate)),
		RetryAfter: time.Duration(result[1]) * time.Second,
	}, nil
}
