package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/caarlos0/env/v11"
)

// serverConfig holds the listener and edge settings. Engine settings come
// from authcore.LoadConfigFromEnv.
type serverConfig struct {
	Addr            string        `env:"AUTHD_ADDR" envDefault:":8080"`
	RedisAddr       string        `env:"AUTHD_REDIS_ADDR"`
	RedisPassword   string        `env:"AUTHD_REDIS_PASSWORD"`
	DBPath          string        `env:"AUTHD_DB_PATH"`
	Dev             bool          `env:"AUTHD_DEV"`
	TrustProxy      bool          `env:"AUTHD_TRUST_PROXY"`
	LogLevel        string        `env:"AUTHD_LOG_LEVEL" envDefault:"info"`
	RequestTimeout  time.Duration `env:"AUTHD_REQUEST_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"AUTHD_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Per-IP token bucket applied in-process to every API route.
	EdgeRate  float64 `env:"AUTHD_EDGE_RATE" envDefault:"20"`
	EdgeBurst int     `env:"AUTHD_EDGE_BURST" envDefault:"40"`

	// Per-IP fixed windows shared through Redis for credential routes.
	LoginLimit     int           `env:"AUTHD_LOGIN_LIMIT" envDefault:"30"`
	RegisterLimit  int           `env:"AUTHD_REGISTER_LIMIT" envDefault:"10"`
	CredentialSpan time.Duration `env:"AUTHD_CREDENTIAL_WINDOW" envDefault:"10m"`
}

func loadServerConfig() (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse server environment: %w", err)
	}
	if !cfg.Dev && cfg.RedisAddr == "" {
		return serverConfig{}, fmt.Errorf("AUTHD_REDIS_ADDR is required outside dev mode")
	}
	return cfg, nil
}

// fillDevSecrets generates an ephemeral signing key and fingerprint secret
// when dev mode starts without them. Tokens do not survive a restart.
func fillDevSecrets(cfg *authcore.Config) error {
	if len(cfg.JWT.PrivateKey) == 0 && cfg.JWT.SigningMethod == "ed25519" {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("generate dev signing key: %w", err)
		}
		cfg.JWT.PrivateKey, cfg.JWT.PublicKey = priv, pub
	}
	if cfg.Fingerprint.Secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate dev fingerprint secret: %w", err)
		}
		cfg.Fingerprint.Secret = hex.EncodeToString(buf)
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "authd-dev"
	}
	return nil
}
