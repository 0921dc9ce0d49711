// Package google adapts Google OpenID Connect sign-in to providers.Provider.
package google

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore/oauth/providers"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
)

var _ providers.Provider = (*Provider)(nil)

const defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Config holds Google OAuth configuration. Endpoint and UserInfoURL default
// to Google's production endpoints.
type Config struct {
	providers.ClientConfig
	Scopes         []string
	Endpoint       oauth2.Endpoint
	UserInfoURL    string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Provider implements providers.Provider for Google.
type Provider struct {
	cfg         Config
	oauth       oauth2.Config
	httpClient  *http.Client
	userInfoURL string
}

// New returns a Google adapter. cfg must be complete.
func New(cfg Config) (*Provider, error) {
	if !cfg.Complete() {
		return nil, providers.ClientError(providers.Google, "incomplete credentials")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauthgoogle.Endpoint
	}
	userInfo := cfg.UserInfoURL
	if userInfo == "" {
		userInfo = defaultUserInfoURL
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
		httpClient:  httpClient,
		userInfoURL: userInfo,
	}, nil
}

func (p *Provider) ID() providers.ID { return providers.Google }

func (p *Provider) UsesPKCE() bool { return false }

func (p *Provider) config(platform providers.Platform) *oauth2.Config {
	c := p.oauth
	c.RedirectURL = p.cfg.RedirectFor(platform)
	return &c
}

// AuthorizationURL implements providers.Provider.
func (p *Provider) AuthorizationURL(_ context.Context, state string, platform providers.Platform) (string, error) {
	return p.config(platform).AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	), nil
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// HandleCallback implements providers.Provider.
func (p *Provider) HandleCallback(ctx context.Context, code, _ string, platform providers.Platform) (*providers.Profile, error) {
	ctx, cancel := providers.EnsureTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	tok, err := providers.ExchangeCode(ctx, providers.Google, p.config(platform), p.httpClient, code, "")
	if err != nil {
		return nil, err
	}
	var info userInfo
	if err := providers.FetchJSON(ctx, providers.Google, p.httpClient, p.userInfoURL, tok, &info); err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, providers.TransportError(providers.Google, errors.New("userinfo response missing subject"))
	}
	if info.Email == "" || !info.EmailVerified {
		return nil, providers.ClientError(providers.Google, "verified email required")
	}

	profile := &providers.Profile{
		Provider:       providers.Google,
		ProviderUserID: info.Sub,
		Email:          info.Email,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		Avatar:         info.Picture,
	}
	if !profile.HasName() {
		profile.FirstName, profile.LastName = providers.SplitName(info.Name)
	}
	return profile, nil
}
