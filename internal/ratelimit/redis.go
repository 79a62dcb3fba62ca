package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncr does the read-check-increment atomically on the server, so
// concurrent callers across processes cannot both slip under the limit.
// ARGV: limit, expiry seconds.
var checkAndIncr = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
  return 0
end
redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisLimiter implements the durable fixed-window strategy: every call in
// [windowStart, windowStart+window) shares one counter whose id is derived
// deterministically from the key and the bucket boundaries.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:"}
}

// CounterID hashes (key, window, windowStart) so the same bucket always maps
// to the same counter regardless of which process computes it.
func CounterID(key string, windowSeconds, windowStart int64) string {
	raw := fmt.Sprintf("%s|%d|%d", key, windowSeconds, windowStart)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// WindowStart floors now to the current fixed bucket boundary.
func WindowStart(now time.Time, window time.Duration) int64 {
	windowSeconds := int64(window / time.Second)
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	return now.Unix() / windowSeconds * windowSeconds
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	windowSeconds := int64(window / time.Second)
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	windowStart := WindowStart(now, window)
	counterKey := l.prefix + CounterID(key, windowSeconds, windowStart)

	// Counters outlive their window by a factor of three so a slow clock
	// on a peer process still finds the bucket.
	expiry := windowSeconds * 3

	res, err := checkAndIncr.Run(ctx, l.client, []string{counterKey}, limit, expiry).Int()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit transaction: %w", err)
	}
	if res == 1 {
		return Decision{Allowed: true}, nil
	}

	retryAfter := time.Duration(windowStart+windowSeconds-now.Unix()) * time.Second
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}
