package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/accountstore"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/MrEthical07/authcore/token"
)

// Account is a locally stored user.
type Account = accountstore.Account

// AccountStore persists accounts. See accountstore/memory and
// accountstore/sqlite for implementations.
type AccountStore = accountstore.Store

// DeviceContext identifies the client a token is bound to. ClientIP is
// normalized by the engine before use.
type DeviceContext = token.DeviceContext

// RegisterRequest carries the fields of a password registration.
type RegisterRequest = flows.RegisterRequest

// ProviderInfo describes one enabled identity provider.
type ProviderInfo = providers.Info

// ProviderFragment is name data delivered outside the code exchange, such as
// Apple's first-authorization form post.
type ProviderFragment = oauth.Fragment

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthResult is returned by every operation that signs a user in.
type AuthResult struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Tokens    TokenPair `json:"tokens"`
	// Created is set when this call created the account, Linked when a
	// social sign-in attached a provider to an existing email account.
	Created bool `json:"created,omitempty"`
	Linked  bool `json:"linked,omitempty"`
}

// Identity is the result of validating an access token.
type Identity struct {
	UserID    string
	TokenID   string
	Epoch     int64
	ExpiresAt time.Time
}

// AuthURL is a provider authorization URL and the state it carries.
type AuthURL struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

func newAuthResult(account *Account, userID string, pair token.Pair) *AuthResult {
	res := &AuthResult{
		UserID: userID,
		Tokens: TokenPair{
			AccessToken:      pair.AccessToken,
			RefreshToken:     pair.RefreshToken,
			AccessExpiresAt:  pair.AccessExpiresAt,
			RefreshExpiresAt: pair.RefreshExpiresAt,
		},
	}
	if account != nil {
		res.UserID = account.ID
		res.Email = account.Email
		res.FirstName = account.FirstName
		res.LastName = account.LastName
	}
	return res
}
