package fingerprint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/kv"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	clock := &fakeClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	e, err := New(cfg, kv.NewRedisStore(rdb, "fp"), WithClock(clock.now))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, clock, mr
}

func testConfig() Config {
	return Config{
		Secret:      "server-secret",
		WindowSize:  time.Hour,
		MaxAttempts: 3,
		ResetAfter:  15 * time.Minute,
	}
}

func TestGenerateDeterministicWithinWindow(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	a := e.Generate("10.0.0.1", "Mozilla/5.0", base.Add(time.Minute))
	b := e.Generate("10.0.0.1", "Mozilla/5.0", base.Add(59*time.Minute))
	if a != b {
		t.Fatal("expected identical fingerprints inside one window")
	}

	c := e.Generate("10.0.0.1", "Mozilla/5.0", base.Add(61*time.Minute))
	if a == c {
		t.Fatal("expected fingerprint to change across window boundary")
	}
}

func TestGenerateNormalizesInputs(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		ip1, ua1   string
		ip2, ua2   string
		wantEquals bool
	}{
		{"ipv6 loopback collapses", "::1", "ua", "127.0.0.1", "ua", true},
		{"mapped ipv4 unmapped", "::ffff:10.1.2.3", "ua", "10.1.2.3", "ua", true},
		{"whitespace and case", "  10.0.0.1 ", "  Mozilla ", "10.0.0.1", "mozilla", true},
		{"missing ua is unknown", "10.0.0.1", "", "10.0.0.1", "unknown", true},
		{"different ip", "10.0.0.1", "ua", "10.0.0.2", "ua", false},
		{"different ua", "10.0.0.1", "ua-a", "10.0.0.1", "ua-b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Generate(tt.ip1, tt.ua1, now) == e.Generate(tt.ip2, tt.ua2, now)
			if got != tt.wantEquals {
				t.Fatalf("equality = %v, want %v", got, tt.wantEquals)
			}
		})
	}
}

func TestGenerateDependsOnSecret(t *testing.T) {
	e1, _, _ := newTestEngine(t, testConfig())
	cfg := testConfig()
	cfg.Secret = "other-secret"
	e2, _, _ := newTestEngine(t, cfg)
	now := time.Now()
	if e1.Generate("1.1.1.1", "ua", now) == e2.Generate("1.1.1.1", "ua", now) {
		t.Fatal("expected secret to change fingerprint")
	}
}

func TestCompareMatchDoesNotChargeBudget(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := e.Compare(ctx, "abc", "abc", "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("compare %d: ok=%v err=%v", i, ok, err)
		}
	}
	n, err := e.Attempts(ctx, "10.0.0.1")
	if err != nil || n != 0 {
		t.Fatalf("expected zero attempts, got %d err=%v", n, err)
	}
}

func TestCompareRateLimitIsDistinctFromMismatch(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := e.Compare(ctx, "abc", "xyz", "10.0.0.1")
		if err != nil {
			t.Fatalf("mismatch %d should not be throttled yet: %v", i+1, err)
		}
		if ok {
			t.Fatal("expected mismatch")
		}
	}

	_, err := e.Compare(ctx, "abc", "abc", "10.0.0.1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Other IPs are unaffected.
	ok, err := e.Compare(ctx, "abc", "abc", "10.0.0.2")
	if err != nil || !ok {
		t.Fatalf("other ip: ok=%v err=%v", ok, err)
	}
}

func TestCompareWindowResetsAfterQuietPeriod(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = e.Compare(ctx, "a", "b", "10.0.0.1")
	}
	if _, err := e.Compare(ctx, "a", "a", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected throttled, got %v", err)
	}

	clock.advance(15 * time.Minute)
	ok, err := e.Compare(ctx, "a", "a", "10.0.0.1")
	if err != nil || !ok {
		t.Fatalf("expected reset window, got ok=%v err=%v", ok, err)
	}
}

func TestCompareWithoutIPSkipsThrottle(t *testing.T) {
	e, _, mr := newTestEngine(t, testConfig())
	mr.SetError("down")

	ok, err := e.Compare(context.Background(), "a", "a", "")
	if err != nil || !ok {
		t.Fatalf("expected trusted compare without store, got ok=%v err=%v", ok, err)
	}
}

func TestCompareStoreFailureSurfaces(t *testing.T) {
	e, _, mr := newTestEngine(t, testConfig())
	mr.SetError("down")

	_, err := e.Compare(context.Background(), "a", "a", "10.0.0.1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty secret", func(c *Config) { c.Secret = " " }},
		{"zero window", func(c *Config) { c.WindowSize = 0 }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero reset", func(c *Config) { c.ResetAfter = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
