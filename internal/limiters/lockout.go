package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/kv"
)

// LockoutConfig holds configuration for the login attempt tracker.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
	// FailureWindow bounds how long failures below the threshold are
	// remembered. Zero means LockDuration.
	FailureWindow time.Duration
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LoginAttemptState is the per-account record in the shared store.
// LockedUntil is a Unix millisecond timestamp; zero means not locked.
type LoginAttemptState struct {
	FailureCount int   `json:"failure_count"`
	LockedUntil  int64 `json:"locked_until,omitempty"`
}

// LoginAttemptTracker counts failed password attempts per account identifier
// and enforces a lockout window once the threshold is reached.
//
// State per account: OPEN -> (failure)* -> LOCKED -> (timeout) -> OPEN.
type LoginAttemptTracker struct {
	store  kv.Store
	config LockoutConfig
	now    func() time.Time
}

// NewLoginAttemptTracker creates a tracker backed by store.
func NewLoginAttemptTracker(store kv.Store, cfg LockoutConfig) *LoginAttemptTracker {
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = cfg.LockDuration
	}
	return &LoginAttemptTracker{store: store, config: cfg, now: time.Now}
}

// SetClock replaces time.Now, for tests.
func (l *LoginAttemptTracker) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

func (l *LoginAttemptTracker) key(identifier string) string {
	return "la:" + normalizeIdentifier(identifier)
}

// RecordFailure increments the failure counter for identifier.
// Returns true when the account is locked after this call.
func (l *LoginAttemptTracker) RecordFailure(ctx context.Context, identifier string) (bool, error) {
	if identifier == "" {
		return false, nil
	}
	state, err := l.load(ctx, identifier)
	if err != nil {
		return false, err
	}

	nowMs := l.now().UnixMilli()
	if state.LockedUntil > 0 {
		if nowMs < state.LockedUntil {
			return true, nil
		}
		state = LoginAttemptState{}
	}

	state.FailureCount++
	ttl := l.config.FailureWindow
	locked := state.FailureCount >= l.config.MaxFailedAttempts
	if locked {
		state.LockedUntil = nowMs + l.config.LockDuration.Milliseconds()
		ttl = l.config.LockDuration
	}

	if err := l.store.Set(ctx, l.key(identifier), state, ttl); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return locked, nil
}

// IsLocked reports whether identifier is inside an active lockout window.
// An elapsed lock is cleared and reported as unlocked.
func (l *LoginAttemptTracker) IsLocked(ctx context.Context, identifier string) (bool, error) {
	if identifier == "" {
		return false, nil
	}
	state, err := l.load(ctx, identifier)
	if err != nil {
		return false, err
	}
	if state.LockedUntil == 0 {
		return false, nil
	}
	if l.now().UnixMilli() < state.LockedUntil {
		return true, nil
	}
	if err := l.Reset(ctx, identifier); err != nil {
		return false, err
	}
	return false, nil
}

// Reset clears the failure counter for identifier (e.g., after successful login).
func (l *LoginAttemptTracker) Reset(ctx context.Context, identifier string) error {
	if identifier == "" {
		return nil
	}
	if _, err := l.store.Del(ctx, l.key(identifier)); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// GetFailureCount returns the current failure count for identifier.
func (l *LoginAttemptTracker) GetFailureCount(ctx context.Context, identifier string) (int, error) {
	state, err := l.load(ctx, identifier)
	if err != nil {
		return 0, err
	}
	return state.FailureCount, nil
}

func (l *LoginAttemptTracker) load(ctx context.Context, identifier string) (LoginAttemptState, error) {
	var state LoginAttemptState
	if _, err := l.store.Get(ctx, l.key(identifier), &state); err != nil {
		return LoginAttemptState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return state, nil
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
