package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/token"
)

func (e *Engine) flowDeps() flows.Deps {
	issue := e.issueTokens
	warn := func(msg string, args ...any) { e.logger.Warn(msg, args...) }

	var needsRehash func(string) (bool, error)
	if e.config.Password.UpgradeOnLogin {
		needsRehash = e.hasher.NeedsRehash
	}

	return flows.Deps{
		Login: flows.LoginDeps{
			IsLocked:       e.lockout.IsLocked,
			RecordFailure:  e.lockout.RecordFailure,
			ResetFailures:  e.lockout.Reset,
			FindByEmail:    e.accounts.FindByEmail,
			VerifyPassword: e.hasher.Verify,
			NeedsRehash:    needsRehash,
			HashPassword:   e.hashPassword,
			UpdateAccount:  e.accounts.Update,
			Issue:          issue,
			Warn:           warn,
			Errors: flows.LoginErrors{
				EngineNotReady:     ErrEngineNotReady,
				InvalidCredentials: ErrInvalidCredentials,
				AccountLocked:      ErrAccountLocked,
				StoreUnavailable:   ErrStoreUnavailable,
			},
		},
		Register: flows.RegisterDeps{
			FindByEmail:  e.accounts.FindByEmail,
			Create:       e.accounts.Create,
			HashPassword: e.hashPassword,
			Issue:        issue,
			Errors: flows.RegisterErrors{
				EngineNotReady:   ErrEngineNotReady,
				InvalidRequest:   ErrInvalidRequest,
				AccountExists:    ErrAccountExists,
				StoreUnavailable: ErrStoreUnavailable,
			},
		},
		Refresh: flows.RefreshDeps{
			Check:         e.tokens.Check,
			FindByID:      e.accounts.FindByID,
			Issue:         issue,
			RevokeRotated: e.config.Token.RevokeRotatedRefresh,
			RevokeOne:     e.tokens.RevokeOne,
			Warn:          warn,
			Errors: flows.RefreshErrors{
				EngineNotReady:   ErrEngineNotReady,
				TokenExpired:     ErrTokenExpired,
				TokenInvalid:     ErrTokenInvalid,
				RateLimited:      ErrRateLimitExceeded,
				StoreUnavailable: ErrStoreUnavailable,
			},
		},
		Social: flows.SocialDeps{
			Provider:       e.providers.Get,
			ValidateState:  e.validateState,
			TakeFragment:   e.states.GetAndDeleteProfileFragment,
			FindByProvider: e.accounts.FindByProvider,
			FindByEmail:    e.accounts.FindByEmail,
			Create:         e.accounts.Create,
			Update:         e.accounts.Update,
			Issue:          issue,
			Warn:           warn,
			Errors: flows.SocialErrors{
				EngineNotReady:      ErrEngineNotReady,
				ProviderUnavailable: ErrProviderUnavailable,
				StateInvalid:        ErrOAuthStateInvalid,
				StateExpired:        ErrOAuthStateExpired,
				StoreUnavailable:    ErrStoreUnavailable,
			},
		},
	}
}

func (e *Engine) issueTokens(ctx context.Context, userID string, device token.DeviceContext) (token.Pair, error) {
	pair, err := e.tokens.Issue(ctx, userID, device)
	if err != nil {
		if errors.Is(err, token.ErrStore) {
			return token.Pair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, nil
}

// hashPassword reports policy violations as ErrInvalidRequest.
func (e *Engine) hashPassword(plain string) (string, error) {
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return "", err
	}
	return hash, nil
}

func (e *Engine) validateState(ctx context.Context, state string, expected oauth.Expected) (*oauth.Metadata, error) {
	return e.states.ValidateState(ctx, state, expected, e.config.OAuth.MaxStateAge)
}
