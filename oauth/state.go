package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/kv"
	"github.com/google/uuid"
)

var (
	// ErrStateInvalid is returned for a missing, consumed, malformed or
	// mismatched state.
	ErrStateInvalid = errors.New("oauth state invalid")
	// ErrStateExpired is returned when a state is older than the caller's
	// maximum age. It wraps ErrStateInvalid.
	ErrStateExpired = fmt.Errorf("%w: expired", ErrStateInvalid)
	// ErrUnavailable wraps store failures.
	ErrUnavailable = errors.New("oauth state store unavailable")
)

const (
	statePrefix    = "os:"
	verifierPrefix = "ov:"
	fragmentPrefix = "of:"
)

// Metadata is stored with every state. IssuedAt is Unix milliseconds.
type Metadata struct {
	Provider  string            `json:"provider"`
	Platform  string            `json:"platform,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	IssuedAt  int64             `json:"issued_at"`
	Nonce     string            `json:"nonce"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Expected lists the fields a callback must match. Empty fields are not
// checked; every Extra key present must match exactly.
type Expected struct {
	Provider  string
	Platform  string
	ClientIP  string
	UserAgent string
	Extra     map[string]string
}

// Fragment is partial profile data delivered out of band, keyed by state.
type Fragment struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Empty reports whether the fragment carries nothing.
func (f Fragment) Empty() bool {
	return f.FirstName == "" && f.LastName == "" && f.Email == ""
}

// Config sets the lifetime of each record namespace.
type Config struct {
	StateTTL    time.Duration
	VerifierTTL time.Duration
	FragmentTTL time.Duration
}

// DefaultConfig returns ten-minute lifetimes for every namespace.
func DefaultConfig() Config {
	return Config{
		StateTTL:    600 * time.Second,
		VerifierTTL: 600 * time.Second,
		FragmentTTL: 600 * time.Second,
	}
}

// StateManager issues and consumes state, verifier and fragment records.
type StateManager struct {
	store  kv.Store
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a StateManager.
type Option func(*StateManager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *StateManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger for rejected states.
func WithLogger(logger *slog.Logger) Option {
	return func(m *StateManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewStateManager returns a manager over store. Zero TTLs take defaults.
func NewStateManager(store kv.Store, cfg Config, opts ...Option) *StateManager {
	def := DefaultConfig()
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = def.StateTTL
	}
	if cfg.VerifierTTL <= 0 {
		cfg.VerifierTTL = def.VerifierTTL
	}
	if cfg.FragmentTTL <= 0 {
		cfg.FragmentTTL = def.FragmentTTL
	}
	m := &StateManager{store: store, config: cfg, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateState stores md under a fresh random state and returns the state.
// IssuedAt and Nonce are always set by the manager.
func (m *StateManager) GenerateState(ctx context.Context, md Metadata) (string, error) {
	if md.Provider == "" {
		return "", fmt.Errorf("%w: provider required", ErrStateInvalid)
	}
	state, err := internal.NewOpaque(internal.OpaqueSize)
	if err != nil {
		return "", err
	}
	md.IssuedAt = m.now().UnixMilli()
	md.Nonce = uuid.NewString()
	if err := m.store.Set(ctx, statePrefix+state, md, m.config.StateTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return state, nil
}

// ValidateState consumes state and checks it against expected. The record is
// deleted by the lookup itself, so a second call for the same state always
// fails, whatever the outcome of the first. maxAge <= 0 disables the age
// check beyond the store TTL.
func (m *StateManager) ValidateState(ctx context.Context, state string, expected Expected, maxAge time.Duration) (*Metadata, error) {
	if err := internal.CheckOpaque(state, internal.OpaqueSize); err != nil {
		m.reject(ctx, state, "state_malformed", expected)
		return nil, ErrStateInvalid
	}

	var md Metadata
	found, err := m.store.Take(ctx, statePrefix+state, &md)
	if err != nil {
		m.reject(ctx, state, "store_unavailable", expected)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !found {
		m.reject(ctx, state, "state_missing", expected)
		return nil, ErrStateInvalid
	}
	if maxAge > 0 && m.now().UnixMilli()-md.IssuedAt > maxAge.Milliseconds() {
		m.reject(ctx, state, "state_expired", expected)
		return nil, ErrStateExpired
	}
	if !expected.matches(md) {
		m.reject(ctx, state, "state_mismatch", expected)
		return nil, ErrStateInvalid
	}
	return &md, nil
}

func (e Expected) matches(md Metadata) bool {
	if e.Provider != "" && e.Provider != md.Provider {
		return false
	}
	if e.Platform != "" && e.Platform != md.Platform {
		return false
	}
	if e.ClientIP != "" && e.ClientIP != md.ClientIP {
		return false
	}
	if e.UserAgent != "" && e.UserAgent != md.UserAgent {
		return false
	}
	for k, v := range e.Extra {
		if got, ok := md.Extra[k]; !ok || got != v {
			return false
		}
	}
	return true
}

func (m *StateManager) reject(ctx context.Context, state, reason string, expected Expected) {
	m.logger.LogAttrs(ctx, slog.LevelWarn, "oauth state rejected",
		slog.String("reason", reason),
		slog.String("provider", expected.Provider),
		slog.String("platform", expected.Platform),
		slog.String("correlation", internal.Correlation(state)),
	)
}

// StoreVerifier keeps a PKCE code verifier for state.
func (m *StateManager) StoreVerifier(ctx context.Context, state, verifier string) error {
	if state == "" || verifier == "" {
		return errors.New("state and verifier required")
	}
	if err := m.store.Set(ctx, verifierPrefix+state, verifier, m.config.VerifierTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetAndDeleteVerifier consumes the verifier for state. ok is false when none
// exists or it was already consumed.
func (m *StateManager) GetAndDeleteVerifier(ctx context.Context, state string) (verifier string, ok bool, err error) {
	found, err := m.store.Take(ctx, verifierPrefix+state, &verifier)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return verifier, found, nil
}

// StoreProfileFragment keeps an out-of-band profile fragment for state.
func (m *StateManager) StoreProfileFragment(ctx context.Context, state string, f Fragment) error {
	if state == "" {
		return errors.New("state required")
	}
	if f.Empty() {
		return nil
	}
	if err := m.store.Set(ctx, fragmentPrefix+state, f, m.config.FragmentTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetAndDeleteProfileFragment consumes the fragment for state, if any.
func (m *StateManager) GetAndDeleteProfileFragment(ctx context.Context, state string) (*Fragment, error) {
	var f Fragment
	found, err := m.store.Take(ctx, fragmentPrefix+state, &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !found {
		return nil, nil
	}
	return &f, nil
}
