package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements [Store] on top of a go-redis client. Values are stored
// as JSON documents under "<prefix>:<key>".
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore wraps redisClient. An empty prefix defaults to "ac".
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ac"
	}
	return &RedisStore{redis: redisClient, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, decode(data, dst)
}

// Set implements [Store].
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Del implements [Store]. It reports whether a key was removed.
func (s *RedisStore) Del(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Take implements [Store] with GETDEL, so two instances racing on the same
// one-time record never both observe it.
func (s *RedisStore) Take(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.redis.GetDel(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, decode(data, dst)
}

// Ping checks connectivity; used by readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func decode(data []byte, dst any) error {
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
