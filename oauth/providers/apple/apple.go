// Package apple adapts Sign in with Apple to providers.Provider.
//
// Apple differs from the other providers in three ways: the code exchange is
// bound with PKCE, the client secret is a short-lived ES256 JWT minted from
// the team key, and the profile comes from the RS256 id_token (verified
// against Apple's published keys) rather than a userinfo endpoint. Names are
// only delivered once, in the web form_post payload, and reach the core as a
// profile fragment.
package apple

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var _ providers.Provider = (*Provider)(nil)

const (
	// Issuer is the iss of Apple id_tokens and the aud of client secrets.
	Issuer          = "https://appleid.apple.com"
	defaultAuthURL  = "https://appleid.apple.com/auth/authorize"
	defaultTokenURL = "https://appleid.apple.com/auth/token"
	defaultJWKSURL  = "https://appleid.apple.com/auth/keys"

	clientSecretTTL = 5 * time.Minute
)

// Config holds Sign in with Apple configuration.
type Config struct {
	providers.AppleConfig
	Verifiers      providers.VerifierStore
	Endpoint       oauth2.Endpoint
	JWKSURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Provider implements providers.Provider for Apple.
type Provider struct {
	cfg        Config
	oauth      oauth2.Config
	teamKey    *ecdsa.PrivateKey
	keys       *keySet
	httpClient *http.Client
	now        func() time.Time
}

// New returns an Apple adapter. cfg must be complete and carry a verifier store.
func New(cfg Config) (*Provider, error) {
	if !cfg.Complete() {
		return nil, providers.ClientError(providers.Apple, "incomplete credentials")
	}
	if cfg.Verifiers == nil {
		return nil, errors.New("apple: verifier store required")
	}
	teamKey, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("apple: parse team key: %w", err)
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauth2.Endpoint{AuthURL: defaultAuthURL, TokenURL: defaultTokenURL}
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = defaultJWKSURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = providers.DefaultHTTPClient()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Endpoint:    endpoint,
		},
		teamKey:    teamKey,
		keys:       newKeySet(jwksURL, httpClient, now),
		httpClient: httpClient,
		now:        now,
	}, nil
}

func (p *Provider) ID() providers.ID { return providers.Apple }

func (p *Provider) UsesPKCE() bool { return true }

func (p *Provider) redirectFor(platform providers.Platform) string {
	if platform == providers.PlatformMobile && p.cfg.MobileRedirectURL != "" {
		return p.cfg.MobileRedirectURL
	}
	return p.cfg.RedirectURL
}

// AuthorizationURL implements providers.Provider. The verifier is stored
// under state before the URL is returned. Only the web flow requests the
// name scope; native clients get the name from the platform SDK.
func (p *Provider) AuthorizationURL(ctx context.Context, state string, platform providers.Platform) (string, error) {
	verifier := oauth2.GenerateVerifier()
	if err := p.cfg.Verifiers.StoreVerifier(ctx, state, verifier); err != nil {
		return "", err
	}

	c := p.oauth
	c.RedirectURL = p.redirectFor(platform)
	c.Scopes = []string{"email"}
	if platform != providers.PlatformMobile {
		c.Scopes = []string{"name", "email"}
	}
	return c.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("response_mode", "form_post"),
	), nil
}

// HandleCallback implements providers.Provider.
func (p *Provider) HandleCallback(ctx context.Context, code, state string, platform providers.Platform) (*providers.Profile, error) {
	ctx, cancel := providers.EnsureTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	verifier, ok, err := p.cfg.Verifiers.GetAndDeleteVerifier(ctx, state)
	if err != nil {
		return nil, providers.TransportError(providers.Apple, err)
	}
	if !ok {
		return nil, providers.ClientError(providers.Apple, "pkce verifier missing or already used")
	}

	secret, err := p.clientSecret()
	if err != nil {
		return nil, providers.TransportError(providers.Apple, err)
	}
	c := p.oauth
	c.ClientSecret = secret
	c.RedirectURL = p.redirectFor(platform)

	tok, err := providers.ExchangeCode(ctx, providers.Apple, &c, p.httpClient, code, verifier)
	if err != nil {
		return nil, err
	}
	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, providers.TransportError(providers.Apple, errors.New("token response missing id_token"))
	}

	claims, err := p.verifyIDToken(ctx, rawID)
	if err != nil {
		return nil, providers.TransportError(providers.Apple, err)
	}
	if claims.Email == "" || !bool(claims.EmailVerified) {
		return nil, providers.ClientError(providers.Apple, "verified email required")
	}
	return &providers.Profile{
		Provider:       providers.Apple,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
	}, nil
}

// clientSecret mints the ES256 client assertion Apple expects in place of a
// static secret.
func (p *Provider) clientSecret() (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.cfg.TeamID,
		Subject:   p.cfg.ClientID,
		Audience:  jwt.ClaimStrings{Issuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(clientSecretTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = p.cfg.KeyID
	return tok.SignedString(p.teamKey)
}
