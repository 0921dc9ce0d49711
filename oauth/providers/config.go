package providers

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// ClientConfig holds the credentials of a client-secret provider.
type ClientConfig struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	MobileRedirectURL string
}

// Complete reports whether every required credential is present.
func (c ClientConfig) Complete() bool {
	return nonEmpty(c.ClientID, c.ClientSecret, c.RedirectURL)
}

// RedirectFor returns the redirect URI for platform.
func (c ClientConfig) RedirectFor(platform Platform) string {
	if platform == PlatformMobile && c.MobileRedirectURL != "" {
		return c.MobileRedirectURL
	}
	return c.RedirectURL
}

// AppleConfig holds Sign in with Apple credentials. PrivateKey is the PEM
// encoded P-256 key used to mint client secrets.
type AppleConfig struct {
	ClientID          string
	TeamID            string
	KeyID             string
	PrivateKey        string
	RedirectURL       string
	MobileRedirectURL string
}

// Complete reports whether every required credential is present.
func (c AppleConfig) Complete() bool {
	return nonEmpty(c.ClientID, c.TeamID, c.KeyID, c.PrivateKey, c.RedirectURL)
}

// Config is the credential set of every provider. A provider is enabled only
// when its credentials are complete.
type Config struct {
	Google          ClientConfig
	GitHub          ClientConfig
	Microsoft       ClientConfig
	MicrosoftTenant string
	Apple           AppleConfig
}

// Enabled reports whether id has a complete credential set.
func (c Config) Enabled(id ID) bool {
	switch id {
	case Google:
		return c.Google.Complete()
	case GitHub:
		return c.GitHub.Complete()
	case Microsoft:
		return c.Microsoft.Complete()
	case Apple:
		return c.Apple.Complete()
	default:
		return false
	}
}

type providersEnv struct {
	GoogleClientID        string `env:"AUTHCORE_GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string `env:"AUTHCORE_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL     string `env:"AUTHCORE_GOOGLE_REDIRECT_URL"`
	GoogleMobileRedirect  string `env:"AUTHCORE_GOOGLE_MOBILE_REDIRECT_URL"`
	GitHubClientID        string `env:"AUTHCORE_GITHUB_CLIENT_ID"`
	GitHubClientSecret    string `env:"AUTHCORE_GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL     string `env:"AUTHCORE_GITHUB_REDIRECT_URL"`
	GitHubMobileRedirect  string `env:"AUTHCORE_GITHUB_MOBILE_REDIRECT_URL"`
	MicrosoftClientID     string `env:"AUTHCORE_MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string `env:"AUTHCORE_MICROSOFT_CLIENT_SECRET"`
	MicrosoftRedirectURL  string `env:"AUTHCORE_MICROSOFT_REDIRECT_URL"`
	MicrosoftMobileRedir  string `env:"AUTHCORE_MICROSOFT_MOBILE_REDIRECT_URL"`
	MicrosoftTenant       string `env:"AUTHCORE_MICROSOFT_TENANT" envDefault:"common"`
	AppleClientID         string `env:"AUTHCORE_APPLE_CLIENT_ID"`
	AppleTeamID           string `env:"AUTHCORE_APPLE_TEAM_ID"`
	AppleKeyID            string `env:"AUTHCORE_APPLE_KEY_ID"`
	ApplePrivateKey       string `env:"AUTHCORE_APPLE_PRIVATE_KEY"`
	AppleRedirectURL      string `env:"AUTHCORE_APPLE_REDIRECT_URL"`
	AppleMobileRedirect   string `env:"AUTHCORE_APPLE_MOBILE_REDIRECT_URL"`
}

// LoadConfigFromEnv reads provider credentials from AUTHCORE_* variables.
func LoadConfigFromEnv() (Config, error) {
	var raw providersEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, err
	}
	return Config{
		Google: ClientConfig{
			ClientID:          strings.TrimSpace(raw.GoogleClientID),
			ClientSecret:      strings.TrimSpace(raw.GoogleClientSecret),
			RedirectURL:       strings.TrimSpace(raw.GoogleRedirectURL),
			MobileRedirectURL: strings.TrimSpace(raw.GoogleMobileRedirect),
		},
		GitHub: ClientConfig{
			ClientID:          strings.TrimSpace(raw.GitHubClientID),
			ClientSecret:      strings.TrimSpace(raw.GitHubClientSecret),
			RedirectURL:       strings.TrimSpace(raw.GitHubRedirectURL),
			MobileRedirectURL: strings.TrimSpace(raw.GitHubMobileRedirect),
		},
		Microsoft: ClientConfig{
			ClientID:          strings.TrimSpace(raw.MicrosoftClientID),
			ClientSecret:      strings.TrimSpace(raw.MicrosoftClientSecret),
			RedirectURL:       strings.TrimSpace(raw.MicrosoftRedirectURL),
			MobileRedirectURL: strings.TrimSpace(raw.MicrosoftMobileRedir),
		},
		MicrosoftTenant: strings.TrimSpace(raw.MicrosoftTenant),
		Apple: AppleConfig{
			ClientID:          strings.TrimSpace(raw.AppleClientID),
			TeamID:            strings.TrimSpace(raw.AppleTeamID),
			KeyID:             strings.TrimSpace(raw.AppleKeyID),
			PrivateKey:        strings.ReplaceAll(raw.ApplePrivateKey, `\n`, "\n"),
			RedirectURL:       strings.TrimSpace(raw.AppleRedirectURL),
			MobileRedirectURL: strings.TrimSpace(raw.AppleMobileRedirect),
		},
	}, nil
}

func nonEmpty(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}
