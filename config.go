package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/caarlos0/env/v11"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what you need; Build validates it.
type Config struct {
	JWT         JWTConfig
	Fingerprint FingerprintConfig
	Lockout     LockoutConfig
	OAuth       OAuthConfig
	Token       TokenConfig
	Password    PasswordConfig
	Store       StoreConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	Providers   providers.Config
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig sets token lifetimes and signing keys. SigningMethod is
// "ed25519" (default) or "hs256"; for hs256 PrivateKey is the shared secret.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
DEVICE BINDING CONFIG
====================================
*/

// FingerprintConfig tunes device fingerprints. WindowSize buckets time so a
// fingerprint is stable within a window; MaxAttempts comparison mismatches
// per client IP within ResetAfter trigger throttling.
type FingerprintConfig struct {
	Secret      string
	WindowSize  time.Duration
	MaxAttempts int
	ResetAfter  time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig locks an account after MaxFailedAttempts wrong passwords
// for LockDuration.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
	// FailureWindow bounds how long sub-threshold failures are remembered.
	// Zero means LockDuration.
	FailureWindow time.Duration
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig sets state record lifetimes. MaxStateAge, when positive, is
// enforced in addition to the store TTL. BindStateToClient requires the
// callback to come from the IP and user agent that requested the URL.
type OAuthConfig struct {
	StateTTL          time.Duration
	VerifierTTL       time.Duration
	FragmentTTL       time.Duration
	MaxStateAge       time.Duration
	BindStateToClient bool
}

/*
====================================
TOKEN BOOKKEEPING CONFIG
====================================
*/

// TokenConfig bounds the per-user token index and controls refresh rotation.
type TokenConfig struct {
	MaxTokensPerUser int
	// RevokeRotatedRefresh blacklists the presented refresh token after a
	// successful refresh. By default the old token is only superseded.
	RevokeRotatedRefresh bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and length policy.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
STORE / AUDIT / METRICS CONFIG
====================================
*/

// StoreConfig namespaces every key the engine writes.
type StoreConfig struct {
	KeyPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns production defaults. Keys, the fingerprint secret
// and provider credentials must still be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Fingerprint: FingerprintConfig{
			WindowSize:  24 * time.Hour,
			MaxAttempts: 10,
			ResetAfter:  15 * time.Minute,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 10,
			LockDuration:      15 * time.Minute,
		},
		OAuth: OAuthConfig{
			StateTTL:    600 * time.Second,
			VerifierTTL: 600 * time.Second,
			FragmentTTL: 600 * time.Second,
		},
		Token: TokenConfig{
			MaxTokensPerUser: 50,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      10,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		Store: StoreConfig{
			KeyPrefix: "ac",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Providers: providers.Config{
			MicrosoftTenant: "common",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c JWTConfig) manager() jwt.Config {
	return jwt.Config{
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		PrivateKey:    c.PrivateKey,
		PublicKey:     c.PublicKey,
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
		KeyID:         c.KeyID,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Fingerprint
	if len(strings.TrimSpace(c.Fingerprint.Secret)) < 16 {
		return errors.New("Fingerprint Secret must be at least 16 characters")
	}
	if c.Fingerprint.WindowSize < time.Minute {
		return errors.New("Fingerprint WindowSize must be >= 1m")
	}
	if c.Fingerprint.MaxAttempts <= 0 {
		return errors.New("Fingerprint MaxAttempts must be > 0")
	}
	if c.Fingerprint.ResetAfter <= 0 {
		return errors.New("Fingerprint ResetAfter must be > 0")
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be > 0")
	}
	if c.Lockout.FailureWindow < 0 {
		return errors.New("Lockout FailureWindow must be >= 0")
	}

	// OAuth
	if c.OAuth.StateTTL <= 0 || c.OAuth.VerifierTTL <= 0 || c.OAuth.FragmentTTL <= 0 {
		return errors.New("OAuth TTLs must be > 0")
	}
	if c.OAuth.VerifierTTL < c.OAuth.StateTTL {
		return errors.New("OAuth VerifierTTL must be >= StateTTL")
	}
	if c.OAuth.MaxStateAge < 0 {
		return errors.New("OAuth MaxStateAge must be >= 0")
	}

	// Token
	if c.Token.MaxTokensPerUser <= 0 {
		return errors.New("Token MaxTokensPerUser must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 || c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MinLength must be >= 1 and <= MaxLength")
	}

	// Store
	if strings.ContainsAny(c.Store.KeyPrefix, " :") {
		return errors.New("Store KeyPrefix must not contain spaces or colons")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

/*
====================================
ENVIRONMENT
====================================
*/

type configEnv struct {
	AccessTTL      time.Duration `env:"AUTHCORE_JWT_ACCESS_TTL"`
	RefreshTTL     time.Duration `env:"AUTHCORE_JWT_REFRESH_TTL"`
	SigningMethod  string        `env:"AUTHCORE_JWT_SIGNING_METHOD"`
	PrivateKey     string        `env:"AUTHCORE_JWT_PRIVATE_KEY"`
	PublicKey      string        `env:"AUTHCORE_JWT_PUBLIC_KEY"`
	Issuer         string        `env:"AUTHCORE_JWT_ISSUER"`
	Audience       string        `env:"AUTHCORE_JWT_AUDIENCE"`
	Leeway         time.Duration `env:"AUTHCORE_JWT_LEEWAY"`
	KeyID          string        `env:"AUTHCORE_JWT_KEY_ID"`
	FPSecret       string        `env:"AUTHCORE_FINGERPRINT_SECRET"`
	FPWindow       time.Duration `env:"AUTHCORE_FINGERPRINT_WINDOW"`
	FPMaxAttempts  int           `env:"AUTHCORE_FINGERPRINT_MAX_ATTEMPTS"`
	FPResetAfter   time.Duration `env:"AUTHCORE_FINGERPRINT_RESET_AFTER"`
	LockMax        int           `env:"AUTHCORE_LOCKOUT_MAX_FAILED_ATTEMPTS"`
	LockDuration   time.Duration `env:"AUTHCORE_LOCKOUT_DURATION"`
	StateTTL       time.Duration `env:"AUTHCORE_OAUTH_STATE_TTL"`
	VerifierTTL    time.Duration `env:"AUTHCORE_OAUTH_VERIFIER_TTL"`
	FragmentTTL    time.Duration `env:"AUTHCORE_OAUTH_FRAGMENT_TTL"`
	MaxStateAge    time.Duration `env:"AUTHCORE_OAUTH_MAX_STATE_AGE"`
	BindState      bool          `env:"AUTHCORE_OAUTH_BIND_STATE_TO_CLIENT"`
	MaxTokens      int           `env:"AUTHCORE_TOKEN_MAX_PER_USER"`
	RevokeRotated  bool          `env:"AUTHCORE_TOKEN_REVOKE_ROTATED_REFRESH"`
	KeyPrefix      string        `env:"AUTHCORE_STORE_KEY_PREFIX"`
	AuditEnabled   bool          `env:"AUTHCORE_AUDIT_ENABLED"`
	MetricsEnabled bool          `env:"AUTHCORE_METRICS_ENABLED"`
}

// LoadConfigFromEnv returns DefaultConfig overlaid with AUTHCORE_* variables,
// including provider credentials. Unset variables keep their defaults.
// PEM keys may use literal \n sequences for newlines.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	raw := configEnv{
		AccessTTL:      cfg.JWT.AccessTTL,
		RefreshTTL:     cfg.JWT.RefreshTTL,
		SigningMethod:  cfg.JWT.SigningMethod,
		Leeway:         cfg.JWT.Leeway,
		FPWindow:       cfg.Fingerprint.WindowSize,
		FPMaxAttempts:  cfg.Fingerprint.MaxAttempts,
		FPResetAfter:   cfg.Fingerprint.ResetAfter,
		LockMax:        cfg.Lockout.MaxFailedAttempts,
		LockDuration:   cfg.Lockout.LockDuration,
		StateTTL:       cfg.OAuth.StateTTL,
		VerifierTTL:    cfg.OAuth.VerifierTTL,
		FragmentTTL:    cfg.OAuth.FragmentTTL,
		MaxTokens:      cfg.Token.MaxTokensPerUser,
		KeyPrefix:      cfg.Store.KeyPrefix,
		AuditEnabled:   cfg.Audit.Enabled,
		MetricsEnabled: cfg.Metrics.Enabled,
	}
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	provs, err := providers.LoadConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("parse provider environment: %w", err)
	}

	cfg.JWT = JWTConfig{
		AccessTTL:     raw.AccessTTL,
		RefreshTTL:    raw.RefreshTTL,
		SigningMethod: strings.ToLower(strings.TrimSpace(raw.SigningMethod)),
		PrivateKey:    pemBytes(raw.PrivateKey),
		PublicKey:     pemBytes(raw.PublicKey),
		Issuer:        raw.Issuer,
		Audience:      raw.Audience,
		Leeway:        raw.Leeway,
		KeyID:         raw.KeyID,
	}
	cfg.Fingerprint = FingerprintConfig{
		Secret:      raw.FPSecret,
		WindowSize:  raw.FPWindow,
		MaxAttempts: raw.FPMaxAttempts,
		ResetAfter:  raw.FPResetAfter,
	}
	cfg.Lockout.MaxFailedAttempts = raw.LockMax
	cfg.Lockout.LockDuration = raw.LockDuration
	cfg.OAuth = OAuthConfig{
		StateTTL:          raw.StateTTL,
		VerifierTTL:       raw.VerifierTTL,
		FragmentTTL:       raw.FragmentTTL,
		MaxStateAge:       raw.MaxStateAge,
		BindStateToClient: raw.BindState,
	}
	cfg.Token = TokenConfig{MaxTokensPerUser: raw.MaxTokens, RevokeRotatedRefresh: raw.RevokeRotated}
	cfg.Store.KeyPrefix = raw.KeyPrefix
	cfg.Audit.Enabled = raw.AuditEnabled
	cfg.Metrics.Enabled = raw.MetricsEnabled
	cfg.Providers = provs
	return cfg, nil
}

func pemBytes(v string) []byte {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return []byte(strings.ReplaceAll(v, `\n`, "\n"))
}
