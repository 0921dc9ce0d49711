package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/accountstore"
	"github.com/MrEthical07/authcore/fingerprint"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/kv"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/token"
)

// Engine is the authentication orchestrator. It is immutable after Build and
// safe for concurrent use.
type Engine struct {
	config    Config
	store     kv.Store
	accounts  AccountStore
	logger    *slog.Logger
	lockout   *limiters.LoginAttemptTracker
	jwt       *jwt.Manager
	tokens    *token.Authority
	states    *oauth.StateManager
	providers *providers.Registry
	hasher    *password.Hasher
	audit     *audit.Dispatcher
	metrics   *Metrics
	flows     flows.Service
	now       func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func normalizeDevice(d DeviceContext) DeviceContext {
	return DeviceContext{
		ClientIP:  fingerprint.NormalizeIP(d.ClientIP),
		UserAgent: strings.TrimSpace(d.UserAgent),
	}
}

// Login authenticates a password account and issues a token pair bound to
// device. Unknown email, wrong password and social-only accounts all return
// ErrInvalidCredentials. After Lockout.MaxFailedAttempts wrong passwords the
// account returns ErrAccountLocked, even for the right password, until the
// lock expires.
func (e *Engine) Login(ctx context.Context, email, password string, device DeviceContext) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metrics.since(MetricLoginLatency, start)

	device = normalizeDevice(device)
	res := e.flows.Login(ctx, email, password, device)

	userID := ""
	if res.Account != nil {
		userID = res.Account.ID
	}
	if res.Err != nil {
		switch res.Failure {
		case flows.LoginFailureLocked:
			e.metricInc(MetricLoginLocked)
		default:
			e.metricInc(MetricLoginFailure)
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", device, res.Err, nil)
		if res.LockedNow {
			e.metricInc(MetricLockoutEngaged)
			e.logger.Warn("authcore: account locked after repeated failures", "user_id", userID, "ip", device.ClientIP)
			e.emitAudit(ctx, auditEventLockoutEngaged, false, userID, "", device, ErrAccountLocked, nil)
		}
		return nil, res.Err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, userID, "", device, nil, nil)
	return newAuthResult(res.Account, userID, res.Tokens), nil
}

// Register creates a password account and signs it in.
func (e *Engine) Register(ctx context.Context, req RegisterRequest, device DeviceContext) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	device = normalizeDevice(device)
	res := e.flows.Register(ctx, req, device)
	if res.Err != nil {
		switch res.Failure {
		case flows.RegisterFailureDuplicate:
			e.metricInc(MetricRegisterDuplicate)
		case flows.RegisterFailureInvalid:
			e.metricInc(MetricRegisterInvalid)
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", device, res.Err, nil)
		return nil, res.Err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, res.Account.ID, "", device, nil, nil)
	out := newAuthResult(res.Account, res.Account.ID, res.Tokens)
	out.Created = true
	return out, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token must
// come from the device it was issued to and carry the user's current epoch.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, device DeviceContext) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metrics.since(MetricRefreshLatency, start)

	device = normalizeDevice(device)
	res := e.flows.Refresh(ctx, refreshToken, device)
	if res.Err != nil {
		e.metricInc(MetricRefreshFailure)
		switch res.Failure {
		case flows.RefreshFailureExpired:
			e.metricInc(MetricRefreshExpired)
		case flows.RefreshFailureRateLimited:
			e.metricInc(MetricTokenRateLimited)
		}
		e.emitAudit(ctx, auditEventRefreshFailure, false, res.UserID, "", device, res.Err, func() map[string]string {
			return map[string]string{"reason": refreshReason(res.Failure)}
		})
		return nil, res.Err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", device, nil, nil)
	return newAuthResult(nil, res.UserID, res.Tokens), nil
}

func refreshReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureExpired:
		return "expired"
	case flows.RefreshFailureRevoked:
		return "revoked"
	case flows.RefreshFailureFingerprint:
		return "fingerprint"
	case flows.RefreshFailureEpoch:
		return "epoch"
	case flows.RefreshFailureRateLimited:
		return "rate_limited"
	case flows.RefreshFailureStore:
		return "store"
	case flows.RefreshFailureAccount:
		return "account"
	case flows.RefreshFailureIssue:
		return "issue"
	default:
		return "invalid"
	}
}

// Logout invalidates every token issued to userID: the user's epoch is
// bumped and every indexed token id is blacklisted.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id", ErrInvalidRequest)
	}
	epoch, err := e.tokens.RevokeAll(ctx, userID, "logout")
	if err != nil {
		err = mapTokenError(err)
		e.emitAudit(ctx, auditEventLogout, false, userID, "", DeviceContext{}, err, nil)
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, "", DeviceContext{}, nil, func() map[string]string {
		return map[string]string{"epoch": fmt.Sprint(epoch)}
	})
	return nil
}

// RevokeToken blacklists a single access or refresh token until it expires.
// Other tokens of the same user stay valid.
func (e *Engine) RevokeToken(ctx context.Context, raw string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	userID, err := e.tokens.RevokeToken(ctx, raw, "revoked")
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			// already unusable
			return nil
		}
		return mapTokenError(err)
	}
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, userID, "", DeviceContext{}, nil, nil)
	return nil
}

// Validate checks an access token presented by device: signature and expiry,
// revocation, device binding, then epoch.
func (e *Engine) Validate(ctx context.Context, accessToken string, device DeviceContext) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metrics.since(MetricValidateLatency, start)

	device = normalizeDevice(device)
	claims, err := e.tokens.Check(ctx, accessToken, jwt.KindAccess, device)
	if err != nil {
		err = mapTokenError(err)
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, ErrRateLimitExceeded) {
			e.metricInc(MetricTokenRateLimited)
		}
		e.emitAudit(ctx, auditEventTokenRejected, false, "", "", device, err, nil)
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	id := &Identity{
		UserID:  claims.UserID(),
		TokenID: claims.TokenID(),
		Epoch:   claims.Epoch,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// GetAccount returns the stored account for userID.
func (e *Engine) GetAccount(ctx context.Context, userID string) (*Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	account, err := e.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, accountstore.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return account, nil
}

func mapTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrRateLimited):
		return ErrRateLimitExceeded
	case errors.Is(err, token.ErrStore):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return ErrTokenInvalid
	}
}
