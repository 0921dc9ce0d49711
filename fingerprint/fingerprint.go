package fingerprint

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/kv"
)

const unknownUserAgent = "unknown"

var (
	// ErrRateLimited is returned by Compare when the client IP exceeded its
	// comparison budget. It is distinct from a plain mismatch.
	ErrRateLimited = errors.New("fingerprint comparison rate limited")
	// ErrUnavailable indicates the rate window could not be read or written.
	ErrUnavailable = errors.New("fingerprint rate window unavailable")
)

// Config tunes hashing and throttling.
type Config struct {
	Secret      string
	WindowSize  time.Duration
	MaxAttempts int
	ResetAfter  time.Duration
}

// RateWindow is the per-IP record kept in the shared store.
type RateWindow struct {
	Attempts        int   `json:"attempts"`
	WindowStartedAt int64 `json:"window_started_at"`
	LastAttemptAt   int64 `json:"last_attempt_at"`
}

// Engine generates and compares fingerprints. Safe for concurrent use.
type Engine struct {
	config Config
	store  kv.Store
	now    func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New validates cfg and returns an Engine. store may be nil only if callers
// never pass a client IP to Compare.
func New(cfg Config, store kv.Store, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("fingerprint secret required")
	}
	if cfg.WindowSize < time.Millisecond {
		return nil, errors.New("fingerprint window size must be >= 1ms")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("fingerprint max attempts must be > 0")
	}
	if cfg.ResetAfter <= 0 {
		return nil, errors.New("fingerprint reset window must be > 0")
	}
	e := &Engine{config: cfg, store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Generate returns the hex digest binding (ip, userAgent) to the time bucket
// containing now.
func (e *Engine) Generate(ip, userAgent string, now time.Time) string {
	windowMs := e.config.WindowSize.Milliseconds()
	nowMs := now.UnixMilli()
	window := (nowMs / windowMs) * windowMs
	if nowMs < 0 && nowMs%windowMs != 0 {
		window -= windowMs
	}

	var b strings.Builder
	b.Grow(128)
	b.WriteString(NormalizeIP(ip))
	b.WriteByte('|')
	b.WriteString(NormalizeUserAgent(userAgent))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(window, 10))
	b.WriteByte('|')
	b.WriteString(e.config.Secret)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Compare reports whether stored and current are equal. When ip is non-empty
// the per-IP budget is enforced first and a mismatch is charged against it.
// An empty ip skips throttling and must only be used for trusted internal calls.
func (e *Engine) Compare(ctx context.Context, stored, current, ip string) (bool, error) {
	ip = NormalizeIP(ip)
	if ip != "" {
		if err := e.checkRate(ctx, ip); err != nil {
			return false, err
		}
	}

	match := subtle.ConstantTimeCompare([]byte(stored), []byte(current)) == 1
	if !match && ip != "" {
		if err := e.recordAttempt(ctx, ip); err != nil {
			return false, err
		}
	}
	return match, nil
}

// Attempts returns the number of charged comparisons for ip in its current
// window.
func (e *Engine) Attempts(ctx context.Context, ip string) (int, error) {
	w, ok, err := e.loadWindow(ctx, NormalizeIP(ip))
	if err != nil || !ok {
		return 0, err
	}
	return w.Attempts, nil
}

func (e *Engine) checkRate(ctx context.Context, ip string) error {
	w, ok, err := e.loadWindow(ctx, ip)
	if err != nil || !ok {
		return err
	}
	if w.Attempts >= e.config.MaxAttempts {
		return ErrRateLimited
	}
	return nil
}

func (e *Engine) recordAttempt(ctx context.Context, ip string) error {
	now := e.now().UnixMilli()
	w, ok, err := e.loadWindow(ctx, ip)
	if err != nil {
		return err
	}
	if !ok {
		w = RateWindow{WindowStartedAt: now}
	}
	w.Attempts++
	w.LastAttemptAt = now

	if err := e.store.Set(ctx, rateKey(ip), w, e.config.ResetAfter); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if w.Attempts > e.config.MaxAttempts {
		return ErrRateLimited
	}
	return nil
}

// loadWindow returns the live window for ip. A window whose last attempt is
// at least ResetAfter old is treated as absent.
func (e *Engine) loadWindow(ctx context.Context, ip string) (RateWindow, bool, error) {
	var w RateWindow
	if e.store == nil {
		return w, false, fmt.Errorf("%w: no store configured", ErrUnavailable)
	}
	ok, err := e.store.Get(ctx, rateKey(ip), &w)
	if err != nil {
		return w, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return w, false, nil
	}
	if e.now().UnixMilli()-w.LastAttemptAt >= e.config.ResetAfter.Milliseconds() {
		return RateWindow{}, false, nil
	}
	return w, true, nil
}

func rateKey(ip string) string {
	return "fp:rl:" + ip
}

// NormalizeIP lowercases and trims ip, unmaps IPv4-in-IPv6 addresses and
// collapses the IPv6 loopback to 127.0.0.1.
func NormalizeIP(ip string) string {
	ip = strings.ToLower(strings.TrimSpace(ip))
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if addr.Is6() && addr.IsLoopback() {
		return "127.0.0.1"
	}
	return addr.String()
}

// NormalizeUserAgent lowercases and trims ua; an empty value becomes "unknown".
func NormalizeUserAgent(ua string) string {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return unknownUserAgent
	}
	return ua
}
