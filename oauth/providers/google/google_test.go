package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newFakeGoogle(t *testing.T, info map[string]any, tokenStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if tokenStatus != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		assert.Equal(t, "good-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	p, err := New(Config{
		ClientConfig: providers.ClientConfig{
			ClientID:          "gid",
			ClientSecret:      "gsecret",
			RedirectURL:       "https://app.test/cb/google",
			MobileRedirectURL: "app://cb/google",
		},
		Endpoint:    oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		UserInfoURL: srv.URL + "/userinfo",
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func TestAuthorizationURL(t *testing.T) {
	srv := newFakeGoogle(t, nil, http.StatusOK)
	p := newProvider(t, srv)
	assert.False(t, p.UsesPKCE())
	assert.Equal(t, providers.Google, p.ID())

	raw, err := p.AuthorizationURL(context.Background(), "state-1", providers.PlatformMobile)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "gid", q.Get("client_id"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "app://cb/google", q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Empty(t, q.Get("code_challenge"))
}

func TestHandleCallbackNormalizesProfile(t *testing.T) {
	srv := newFakeGoogle(t, map[string]any{
		"sub": "g-123", "email": "ada@example.com", "email_verified": true,
		"given_name": "Ada", "family_name": "Lovelace", "picture": "https://img/ada",
	}, http.StatusOK)
	p := newProvider(t, srv)

	profile, err := p.HandleCallback(context.Background(), "good-code", "state-1", providers.PlatformWeb)
	require.NoError(t, err)
	assert.Equal(t, &providers.Profile{
		Provider:       providers.Google,
		ProviderUserID: "g-123",
		Email:          "ada@example.com",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Avatar:         "https://img/ada",
	}, profile)
}

func TestHandleCallbackRejectsUnverifiedEmail(t *testing.T) {
	srv := newFakeGoogle(t, map[string]any{
		"sub": "g-123", "email": "ada@example.com", "email_verified": false,
	}, http.StatusOK)
	p := newProvider(t, srv)

	_, err := p.HandleCallback(context.Background(), "good-code", "s", providers.PlatformWeb)
	require.ErrorIs(t, err, providers.ErrAuthFailed)
	var pe *providers.Error
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.ClientSide)
}

func TestHandleCallbackTokenEndpointFailures(t *testing.T) {
	srv := newFakeGoogle(t, nil, http.StatusBadRequest)
	p := newProvider(t, srv)
	_, err := p.HandleCallback(context.Background(), "bad-code", "s", providers.PlatformWeb)
	var pe *providers.Error
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.ClientSide, "a rejected code is a client-side cause")

	srv = newFakeGoogle(t, nil, http.StatusBadGateway)
	p = newProvider(t, srv)
	_, err = p.HandleCallback(context.Background(), "good-code", "s", providers.PlatformWeb)
	require.True(t, errors.As(err, &pe))
	assert.False(t, pe.ClientSide, "provider outage is transport-side")
}

func TestNewRequiresCompleteCredentials(t *testing.T) {
	_, err := New(Config{ClientConfig: providers.ClientConfig{ClientID: "gid"}})
	require.Error(t, err)
}
