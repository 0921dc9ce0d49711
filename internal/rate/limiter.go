package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is one fixed-window budget: at most Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule limits anything.
func (r Rule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Limiter enforces fixed-window budgets shared by every process pointed at
// the same Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Limiter. Keys are written as "<prefix>:rl:<bucket>:<key>".
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	return &Limiter{redis: redisClient, prefix: prefix}
}

// Allow records a hit for key in bucket and returns ErrRateLimited once the
// rule's budget is spent. A disabled rule always allows.
func (l *Limiter) Allow(ctx context.Context, bucket, key string, rule Rule) error {
	if !rule.Enabled() {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.key(bucket, key), rule.Window)
	if err != nil {
		return err
	}
	if count > int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Attempts returns the hits recorded for key in the current window.
func (l *Limiter) Attempts(ctx context.Context, bucket, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(bucket, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, bucket, key string) error {
	if err := l.redis.Del(ctx, l.key(bucket, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(bucket, key string) string {
	var b strings.Builder
	b.Grow(len(l.prefix) + len(bucket) + len(key) + 5)
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteByte(':')
	}
	b.WriteString("rl:")
	b.WriteString(bucket)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
