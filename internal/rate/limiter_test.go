package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "ac"), mr
}

func TestAllowEnforcesFixedWindow(t *testing.T) {
	l, mr := newLimiter(t)
	ctx := context.Background()
	rule := Rule{Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "login", "203.0.113.7", rule); err != nil {
			t.Fatalf("hit %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "login", "203.0.113.7", rule); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(ctx, "login", "198.51.100.1", rule); err != nil {
		t.Fatalf("other key must have its own budget: %v", err)
	}
	if err := l.Allow(ctx, "register", "203.0.113.7", rule); err != nil {
		t.Fatalf("other bucket must have its own budget: %v", err)
	}

	if ttl := mr.TTL("ac:rl:login:203.0.113.7"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected window ttl %v", ttl)
	}

	mr.FastForward(time.Minute)
	if err := l.Allow(ctx, "login", "203.0.113.7", rule); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestAttemptsAndReset(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()
	rule := Rule{Limit: 10, Window: time.Minute}

	if n, err := l.Attempts(ctx, "login", "k"); err != nil || n != 0 {
		t.Fatalf("expected 0 attempts on a fresh key, got %d, %v", n, err)
	}
	_ = l.Allow(ctx, "login", "k", rule)
	_ = l.Allow(ctx, "login", "k", rule)
	if n, _ := l.Attempts(ctx, "login", "k"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	if err := l.Reset(ctx, "login", "k"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := l.Attempts(ctx, "login", "k"); n != 0 {
		t.Fatalf("expected 0 after reset, got %d", n)
	}
}

func TestDisabledRuleAlwaysAllows(t *testing.T) {
	l, mr := newLimiter(t)
	for i := 0; i < 5; i++ {
		if err := l.Allow(context.Background(), "login", "k", Rule{}); err != nil {
			t.Fatalf("disabled rule limited: %v", err)
		}
	}
	if mr.Exists("ac:rl:login:k") {
		t.Fatal("disabled rule must not touch redis")
	}
}

func TestRedisFailureIsReported(t *testing.T) {
	l, mr := newLimiter(t)
	mr.SetError("boom")
	err := l.Allow(context.Background(), "login", "k", Rule{Limit: 1, Window: time.Second})
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
