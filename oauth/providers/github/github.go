// Package github adapts GitHub OAuth Apps to providers.Provider.
package github

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/oauth/providers"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
)

var _ providers.Provider = (*Provider)(nil)

const defaultAPIBaseURL = "https://api.github.com"

// Config holds GitHub OAuth configuration. APIBaseURL defaults to the
// public GitHub API.
type Config struct {
	providers.ClientConfig
	Scopes         []string
	Endpoint       oauth2.Endpoint
	APIBaseURL     string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Provider implements providers.Provider for GitHub.
type Provider struct {
	cfg        Config
	oauth      oauth2.Config
	httpClient *http.Client
	apiBase    string
}

// New returns a GitHub adapter. cfg must be complete.
func New(cfg Config) (*Provider, error) {
	if !cfg.Complete() {
		return nil, providers.ClientError(providers.GitHub, "incomplete credentials")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauthgithub.Endpoint
	}
	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = providers.DefaultHTTPClient()
	}
	return &Provider{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       append([]string(nil), scopes...),
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
		apiBase:    apiBase,
	}, nil
}

func (p *Provider) ID() providers.ID { return providers.GitHub }

func (p *Provider) UsesPKCE() bool { return false }

func (p *Provider) config(platform providers.Platform) *oauth2.Config {
	c := p.oauth
	c.RedirectURL = p.cfg.RedirectFor(platform)
	return &c
}

// AuthorizationURL implements providers.Provider.
func (p *Provider) AuthorizationURL(_ context.Context, state string, platform providers.Platform) (string, error) {
	return p.config(platform).AuthCodeURL(state, oauth2.SetAuthURLParam("allow_signup", "true")), nil
}

type user struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type email struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// HandleCallback implements providers.Provider. The public profile email is
// ignored; only an address GitHub reports as verified is accepted, preferring
// the primary one.
func (p *Provider) HandleCallback(ctx context.Context, code, _ string, platform providers.Platform) (*providers.Profile, error) {
	ctx, cancel := providers.EnsureTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	tok, err := providers.ExchangeCode(ctx, providers.GitHub, p.config(platform), p.httpClient, code, "")
	if err != nil {
		return nil, err
	}

	var u user
	if err := providers.FetchJSON(ctx, providers.GitHub, p.httpClient, p.apiBase+"/user", tok, &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, providers.TransportError(providers.GitHub, errors.New("user response missing id"))
	}

	var emails []email
	if err := providers.FetchJSON(ctx, providers.GitHub, p.httpClient, p.apiBase+"/user/emails", tok, &emails); err != nil {
		return nil, err
	}
	addr := pickVerifiedEmail(emails)
	if addr == "" {
		return nil, providers.ClientError(providers.GitHub, "verified email required")
	}

	first, last := providers.SplitName(u.Name)
	if first == "" {
		first = u.Login
	}
	return &providers.Profile{
		Provider:       providers.GitHub,
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Email:          addr,
		FirstName:      first,
		LastName:       last,
		Avatar:         u.AvatarURL,
	}, nil
}

func pickVerifiedEmail(emails []email) string {
	var fallback string
	for _, e := range emails {
		if !e.Verified || e.Email == "" {
			continue
		}
		if e.Primary {
			return e.Email
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback
}
