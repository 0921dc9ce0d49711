package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

type identityContextKey struct{}

type deviceContextKey struct{}

// IdentityFromContext returns the identity attached by Guard.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok
}

// DeviceFromContext returns the device context Guard validated against.
func DeviceFromContext(ctx context.Context) (authcore.DeviceContext, bool) {
	d, ok := ctx.Value(deviceContextKey{}).(authcore.DeviceContext)
	return d, ok
}

// Option configures Guard.
type Option func(*guardConfig)

type guardConfig struct {
	trustProxy bool
}

// TrustProxy takes the client address from X-Forwarded-For. Only enable it
// behind a proxy that overwrites the header.
func TrustProxy() Option {
	return func(c *guardConfig) { c.trustProxy = true }
}

// Guard rejects requests without a valid access token for the calling
// device and attaches the resulting identity to the request context.
func Guard(engine *authcore.Engine, opts ...Option) func(http.Handler) http.Handler {
	var cfg guardConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authcore.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, authcore.ErrTokenInvalid)
				return
			}

			device := DeviceFromRequest(r, cfg.trustProxy)
			id, err := engine.Validate(r.Context(), token, device)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			ctx = context.WithValue(ctx, deviceContextKey{}, device)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
