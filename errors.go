package authcore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authcore/oauth/providers"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// password login against a social-only account alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountExists is returned by Register for a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrTokenExpired is returned when a token's exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed, forged, revoked, rebound and
	// superseded-epoch tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrRateLimitExceeded is returned when fingerprint comparison is
	// throttled for the client IP.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrOAuthStateInvalid is returned for missing, consumed or mismatched
	// state.
	ErrOAuthStateInvalid = errors.New("oauth state invalid")
	// ErrOAuthStateExpired is an ErrOAuthStateInvalid older than the
	// configured maximum age.
	ErrOAuthStateExpired = fmt.Errorf("%w: expired", ErrOAuthStateInvalid)
	// ErrProviderUnavailable is returned when the requested provider is not
	// configured.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderAuthFailed matches every *ProviderError.
	ErrProviderAuthFailed = providers.ErrAuthFailed
	// ErrStoreUnavailable is returned when the shared store or account
	// store cannot be reached. Nothing is treated as valid in that case.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidRequest is returned for malformed input.
	ErrInvalidRequest = errors.New("invalid request")
)

// ProviderError is returned by social operations when a provider adapter
// fails. ClientSide distinguishes causes like a missing verified email from
// transport failures.
type ProviderError = providers.Error

// HTTPStatus maps an engine error to the status code a transport layer should
// answer with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var perr *ProviderError
	switch {
	case errors.As(err, &perr):
		if perr.ClientSide {
			return http.StatusBadRequest
		}
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrProviderUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrOAuthStateInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns a stable machine-readable code for err, suitable for
// response bodies and audit records. It never includes caller input.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, ErrOAuthStateExpired):
		return "oauth_state_expired"
	case errors.Is(err, ErrOAuthStateInvalid):
		return "oauth_state_invalid"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrProviderAuthFailed):
		return "provider_auth_failed"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrStoreUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrEngineNotReady):
		return "engine_not_ready"
	default:
		return "internal_error"
	}
}
