package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/accountstore/memory"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUA = "authd-test/1.0"

type appleStub struct{}

func (appleStub) ID() providers.ID { return providers.Apple }
func (appleStub) UsesPKCE() bool   { return false }
func (appleStub) AuthorizationURL(_ context.Context, state string, _ providers.Platform) (string, error) {
	return "https://appleid.test/auth?state=" + url.QueryEscape(state), nil
}
func (appleStub) HandleCallback(_ context.Context, code, _ string, _ providers.Platform) (*providers.Profile, error) {
	if code != "good-code" {
		return nil, providers.ClientError(providers.Apple, "bad code")
	}
	return &providers.Profile{ProviderUserID: "apple-sub-1", Email: "relay@privaterelay.test"}, nil
}

func newTestServer(t *testing.T, mutate func(*serverConfig)) *server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Fingerprint.Secret = "authd-test-secret"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(memory.New()).
		WithProviders(appleStub{}).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srvCfg := serverConfig{
		EdgeRate:       1000,
		EdgeBurst:      1000,
		LoginLimit:     100,
		RegisterLimit:  100,
		CredentialSpan: time.Minute,
		RequestTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&srvCfg)
	}
	return newServer(engine, rate.New(rdb, "ac"), srvCfg, logger)
}

func do(t *testing.T, h http.Handler, method, target string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("User-Agent", testUA)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) authcore.AuthResult {
	t.Helper()
	var res authcore.AuthResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestPasswordLifecycle(t *testing.T) {
	h := newTestServer(t, nil).routes()
	creds := map[string]string{"email": "dana@example.com", "password": "correct-password-123", "first_name": "Dana"}

	rec := do(t, h, http.MethodPost, "/v1/register", creds, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decodeResult(t, rec)
	assert.True(t, registered.Created)

	rec = do(t, h, http.MethodPost, "/v1/register", creds, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "account_exists", errorCode(t, rec))

	rec = do(t, h, http.MethodPost, "/v1/login", map[string]string{"email": "dana@example.com", "password": "correct-password-123"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeResult(t, rec)

	rec = do(t, h, http.MethodGet, "/v1/me", nil, login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me accountView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "dana@example.com", me.Email)
	assert.Equal(t, "Dana", me.FirstName)
	assert.True(t, me.Password)

	rec = do(t, h, http.MethodPost, "/v1/refresh", map[string]string{"refresh_token": login.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refreshed := decodeResult(t, rec)
	assert.NotEqual(t, login.Tokens.AccessToken, refreshed.Tokens.AccessToken)

	rec = do(t, h, http.MethodPost, "/v1/logout", nil, refreshed.Tokens.AccessToken)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/me", nil, refreshed.Tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/v1/refresh", map[string]string{"refresh_token": refreshed.Tokens.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginErrorsAreUniform(t *testing.T) {
	h := newTestServer(t, nil).routes()
	do(t, h, http.MethodPost, "/v1/register", map[string]string{"email": "e@example.com", "password": "correct-password-123"}, "")

	wrong := do(t, h, http.MethodPost, "/v1/login", map[string]string{"email": "e@example.com", "password": "nope-nope-nope"}, "")
	unknown := do(t, h, http.MethodPost, "/v1/login", map[string]string{"email": "ghost@example.com", "password": "nope-nope-nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestMalformedBodies(t *testing.T) {
	h := newTestServer(t, nil).routes()
	for _, target := range []string{"/v1/login", "/v1/register", "/v1/refresh", "/v1/revoke"} {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"email":`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	rec := do(t, h, http.MethodPost, "/v1/login", map[string]string{"email": "a@example.com", "password": "x", "role": "admin"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestRevokeSingleToken(t *testing.T) {
	h := newTestServer(t, nil).routes()
	rec := do(t, h, http.MethodPost, "/v1/register", map[string]string{"email": "r@example.com", "password": "correct-password-123"}, "")
	res := decodeResult(t, rec)

	rec = do(t, h, http.MethodPost, "/v1/revoke", map[string]string{"token": res.Tokens.AccessToken}, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/me", nil, res.Tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/v1/refresh", map[string]string{"refresh_token": res.Tokens.RefreshToken}, "")
	assert.Equal(t, http.StatusOK, rec.Code, "revoking one token leaves the others usable")
}

func TestSharedLoginWindow(t *testing.T) {
	h := newTestServer(t, func(c *serverConfig) { c.LoginLimit = 2 }).routes()
	body := map[string]string{"email": "w@example.com", "password": "whatever-123"}

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/v1/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/v1/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))
}

func TestEdgeThrottle(t *testing.T) {
	srv := newTestServer(t, func(c *serverConfig) {
		c.EdgeRate = 0.001
		c.EdgeBurst = 2
	})
	h := srv.routes()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/providers", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/providers", nil, "").Code)
	rec := do(t, h, http.MethodGet, "/v1/providers", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/healthz", nil, "").Code, "health checks bypass the throttle")

	srv.edge.now = func() time.Time { return time.Now().Add(time.Hour) }
	srv.edge.sweep()
	assert.Zero(t, srv.edge.size())
}

func TestAppleFormPostStoresNameFragment(t *testing.T) {
	h := newTestServer(t, nil).routes()

	rec := do(t, h, http.MethodGet, "/v1/providers", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"apple"`)

	rec = do(t, h, http.MethodGet, "/v1/oauth/apple/url?platform=web", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var authURL authcore.AuthURL
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&authURL))
	require.NotEmpty(t, authURL.State)

	form := url.Values{
		"code":  {"good-code"},
		"state": {authURL.State},
		"user":  {`{"name":{"firstName":"Ada","lastName":"Lovelace"},"email":"relay@privaterelay.test"}`},
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/oauth/apple/form_post", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", testUA)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeResult(t, rec)
	assert.Equal(t, "Ada", res.FirstName)
	assert.Equal(t, "Lovelace", res.LastName)

	// The state was consumed by the first callback.
	rec = do(t, h, http.MethodPost, "/v1/oauth/apple/callback", callbackRequest{Code: "good-code", State: authURL.State}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSocialRouteValidation(t *testing.T) {
	h := newTestServer(t, nil).routes()

	rec := do(t, h, http.MethodGet, "/v1/oauth/myspace/url", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "provider_unavailable", errorCode(t, rec))

	rec = do(t, h, http.MethodGet, "/v1/oauth/google/url", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "google is not configured")

	rec = do(t, h, http.MethodGet, "/v1/oauth/apple/url?platform=desktop", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/oauth/apple/callback", callbackRequest{Code: "good-code", State: "forged"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "oauth_state_invalid", errorCode(t, rec))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil).routes()
	do(t, h, http.MethodPost, "/v1/register", map[string]string{"email": "m@example.com", "password": "correct-password-123"}, "")

	rec := do(t, h, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authcore_register_success_total 1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel(" warn "))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestFillDevSecrets(t *testing.T) {
	cfg := authcore.DefaultConfig()
	require.NoError(t, fillDevSecrets(&cfg))
	assert.Len(t, cfg.JWT.PrivateKey, 64)
	assert.Len(t, cfg.JWT.PublicKey, 32)
	assert.NotEmpty(t, cfg.Fingerprint.Secret)
	require.NoError(t, cfg.Validate())
}
