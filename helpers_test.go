package authcore

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/accountstore/memory"
	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

var (
	laptop = DeviceContext{ClientIP: "203.0.113.7", UserAgent: "Mozilla/5.0 Laptop"}
	phone  = DeviceContext{ClientIP: "198.51.100.9", UserAgent: "Phone/1.0"}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "authcore-test"
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.Fingerprint.Secret = "fingerprint-test-secret"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type testEnv struct {
	engine   *Engine
	clock    *testClock
	mr       *miniredis.Miniredis
	accounts *memory.Store
}

type envOption func(*Builder)

func withAdapters(adapters ...providers.Provider) envOption {
	return func(b *Builder) { b.WithProviders(adapters...) }
}

func withSink(sink AuditSink) envOption {
	return func(b *Builder) { b.WithAuditSink(sink) }
}

func newTestEnv(t testing.TB, cfg Config, opts ...envOption) *testEnv {
	t.Helper()
	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	accounts := memory.New()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return &testEnv{engine: engine, clock: clock, mr: mr, accounts: accounts}
}

func (env *testEnv) register(t testing.TB, email string) *AuthResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:     email,
		Password:  testPassword,
		FirstName: "Alice",
		LastName:  "Example",
	}, laptop)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

// fakeProvider is a scripted adapter. Profiles are keyed by code.
type fakeProvider struct {
	id       providers.ID
	profiles map[string]*providers.Profile
	err      error

	mu    sync.Mutex
	calls int
}

func (p *fakeProvider) ID() providers.ID { return p.id }
func (p *fakeProvider) UsesPKCE() bool   { return false }

func (p *fakeProvider) AuthorizationURL(_ context.Context, state string, platform providers.Platform) (string, error) {
	return "https://idp.example/" + p.id.String() + "/authorize?state=" + state + "&platform=" + string(platform), nil
}

func (p *fakeProvider) HandleCallback(_ context.Context, code, _ string, _ providers.Platform) (*providers.Profile, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	prof, ok := p.profiles[code]
	if !ok {
		return nil, providers.ClientError(p.id, "unknown code")
	}
	out := *prof
	return &out, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
