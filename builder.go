package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore/fingerprint"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/kv"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/MrEthical07/authcore/oauth/providers/apple"
	"github.com/MrEthical07/authcore/oauth/providers/github"
	"github.com/MrEthical07/authcore/oauth/providers/google"
	"github.com/MrEthical07/authcore/oauth/providers/microsoft"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	store      kv.Store
	accounts   AccountStore
	logger     *slog.Logger
	auditSink  AuditSink
	adapters   []providers.Provider
	httpClient *http.Client
	now        func() time.Time

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the shared store with a go-redis client. Keys are
// namespaced by Config.Store.KeyPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore uses store directly. It takes precedence over WithRedis.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithAccountStore sets the account persistence backend. Required.
func (b *Builder) WithAccountStore(accounts AccountStore) *Builder {
	b.accounts = accounts
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled.
// Without a sink events are logged through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithProviders registers adapters explicitly instead of building them from
// Config.Providers.
func (b *Builder) WithProviders(adapters ...providers.Provider) *Builder {
	b.adapters = append(b.adapters, adapters...)
	return b
}

// WithHTTPClient sets the client used by adapters built from
// Config.Providers.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock replaces time.Now across every component, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or kv store required")
		}
		store = kv.NewRedisStore(b.redis, cfg.Store.KeyPrefix)
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- DEVICE BINDING --------
	fp, err := fingerprint.New(fingerprint.Config{
		Secret:      cfg.Fingerprint.Secret,
		WindowSize:  cfg.Fingerprint.WindowSize,
		MaxAttempts: cfg.Fingerprint.MaxAttempts,
		ResetAfter:  cfg.Fingerprint.ResetAfter,
	}, store, fingerprint.WithClock(now))
	if err != nil {
		return nil, err
	}

	// -------- LOCKOUT --------
	lockout := limiters.NewLoginAttemptTracker(store, limiters.LockoutConfig{
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		LockDuration:      cfg.Lockout.LockDuration,
		FailureWindow:     cfg.Lockout.FailureWindow,
	})
	lockout.SetClock(now)

	// -------- TOKENS --------
	jm, err := jwt.NewManager(cfg.JWT.manager())
	if err != nil {
		return nil, err
	}
	jm.SetClock(now)

	authority, err := token.NewAuthority(token.Config{
		MaxTokensPerUser: cfg.Token.MaxTokensPerUser,
	}, jm, fp, store, logger)
	if err != nil {
		return nil, err
	}
	authority.SetClock(now)

	// -------- OAUTH --------
	states := oauth.NewStateManager(store, oauth.Config{
		StateTTL:    cfg.OAuth.StateTTL,
		VerifierTTL: cfg.OAuth.VerifierTTL,
		FragmentTTL: cfg.OAuth.FragmentTTL,
	}, oauth.WithClock(now), oauth.WithLogger(logger))

	adapters := b.adapters
	if len(adapters) == 0 {
		adapters, err = buildAdapters(cfg.Providers, states, b.httpClient, now)
		if err != nil {
			return nil, err
		}
	}

	// -------- PASSWORDS --------
	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
		MaxLength:   cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}

	engine := &Engine{
		config:    cfg,
		store:     store,
		accounts:  b.accounts,
		logger:    logger,
		lockout:   lockout,
		jwt:       jm,
		tokens:    authority,
		states:    states,
		providers: providers.NewRegistry(adapters...),
		hasher:    hasher,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
	}
	engine.flows = flows.New(engine.flowDeps())

	logger.Info("authcore engine built",
		"providers", engine.providers.Len(),
		"signing_method", cfg.JWT.SigningMethod,
		"audit", cfg.Audit.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)

	b.built = true
	return engine, nil
}

// buildAdapters constructs an adapter for every provider whose credentials
// are complete. Incomplete providers are skipped; construction errors are not.
func buildAdapters(cfg providers.Config, verifiers providers.VerifierStore, client *http.Client, now func() time.Time) ([]providers.Provider, error) {
	var out []providers.Provider
	if cfg.Google.Complete() {
		p, err := google.New(google.Config{ClientConfig: cfg.Google, HTTPClient: client})
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		out = append(out, p)
	}
	if cfg.GitHub.Complete() {
		p, err := github.New(github.Config{ClientConfig: cfg.GitHub, HTTPClient: client})
		if err != nil {
			return nil, fmt.Errorf("github provider: %w", err)
		}
		out = append(out, p)
	}
	if cfg.Microsoft.Complete() {
		p, err := microsoft.New(microsoft.Config{ClientConfig: cfg.Microsoft, Tenant: cfg.MicrosoftTenant, HTTPClient: client})
		if err != nil {
			return nil, fmt.Errorf("microsoft provider: %w", err)
		}
		out = append(out, p)
	}
	if cfg.Apple.Complete() {
		p, err := apple.New(apple.Config{AppleConfig: cfg.Apple, Verifiers: verifiers, HTTPClient: client, Now: now})
		if err != nil {
			return nil, fmt.Errorf("apple provider: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
