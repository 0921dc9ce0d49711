package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/audit"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLockoutEngaged      = "lockout_engaged"
	auditEventRegisterSuccess     = "register_success"
	auditEventRegisterFailure     = "register_failure"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshFailure      = "refresh_failure"
	auditEventLogout              = "logout"
	auditEventTokenRevoked        = "token_revoked"
	auditEventTokenRejected       = "token_rejected"
	auditEventProviderURLIssued   = "provider_url_issued"
	auditEventSocialLoginSuccess  = "social_login_success"
	auditEventSocialLoginFailure  = "social_login_failure"
	auditEventSocialAccountLinked = "social_account_linked"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	provider string,
	device DeviceContext,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, audit.Event{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		UserID:    userID,
		Provider:  provider,
		IP:        device.ClientIP,
		Success:   success,
		Error:     ErrorCode(err),
		Metadata:  metadata,
	})
}
