package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowCounter bumps the hit counter of a window and arms its expiry on the first hit.
// It replies with the hit count and the milliseconds left in the window.
var windowCounter = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local left = redis.call("PTTL", KEYS[1])
if left < 0 then
  left = tonumber(ARGV[1])
end
return {hits, left}
`)

const defaultRedisPrefix = "estate-billing"

// RedisRateLimiter counts hits per scope and subject in fixed Redis windows.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: normalizeRedisPrefix(prefix) + ":rate_limit"}
}

// ConsumeRateLimit records one hit and returns the running count for the window and
// the seconds until it resets. A nil limiter or a non-positive limit never counts.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}
	window = max(window, time.Second)

	key := r.prefix + ":" + scope + ":" + subject
	reply, err := windowCounter.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(reply) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values, expected 2", len(reply))
	}

	left := time.Duration(reply[1]) * time.Millisecond
	retryAfter := int((left + time.Second - 1) / time.Second)
	return int(reply[0]), max(retryAfter, 1), nil
}

func normalizeRedisPrefix(prefix string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		return defaultRedisPrefix
	}
	return trimmed
}
