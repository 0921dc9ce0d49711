package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/accountstore"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureExpired
	RefreshFailureInvalid
	RefreshFailureRevoked
	RefreshFailureFingerprint
	RefreshFailureEpoch
	RefreshFailureRateLimited
	RefreshFailureStore
	RefreshFailureAccount
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	TokenID string
	Tokens  token.Pair
}

// RefreshErrors carries host-level sentinel errors used by refresh.
type RefreshErrors struct {
	EngineNotReady   error
	TokenExpired     error
	TokenInvalid     error
	RateLimited      error
	StoreUnavailable error
}

// RefreshDeps captures refresh dependencies. FindByID, when set, refuses
// refresh for accounts that no longer exist. RevokeOne is only called when
// RevokeRotated is true.
type RefreshDeps struct {
	Check         func(ctx context.Context, raw string, kind jwt.Kind, device token.DeviceContext) (*jwt.Claims, error)
	FindByID      func(context.Context, string) (*accountstore.Account, error)
	Issue         IssueFunc
	RevokeRotated bool
	RevokeOne     func(ctx context.Context, tokenID, userID, reason string, expiresAt time.Time) error
	Warn          func(string, ...any)

	Errors RefreshErrors
}

// RunRefresh validates a refresh token against device and rotates it into a
// fresh pair. Signature and expiry are checked first so an expired token is
// reported as expired rather than invalid.
func RunRefresh(ctx context.Context, raw string, device token.DeviceContext, deps RefreshDeps) RefreshResult {
	if deps.Check == nil || deps.Issue == nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: deps.Errors.EngineNotReady}
	}
	warn := warnOrDiscard(deps.Warn)

	claims, err := deps.Check(ctx, raw, jwt.KindRefresh, device)
	if err != nil {
		kind, mapped := classifyTokenError(err, deps.Errors)
		res := RefreshResult{Failure: kind, Err: mapped}
		if claims != nil {
			res.UserID, res.TokenID = claims.UserID(), claims.TokenID()
		}
		return res
	}
	userID := claims.UserID()

	if deps.FindByID != nil {
		if _, err := deps.FindByID(ctx, userID); err != nil {
			if errors.Is(err, accountstore.ErrNotFound) {
				return RefreshResult{Failure: RefreshFailureAccount, Err: deps.Errors.TokenInvalid, UserID: userID, TokenID: claims.TokenID()}
			}
			return RefreshResult{Failure: RefreshFailureStore, Err: fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err), UserID: userID}
		}
	}

	pair, err := deps.Issue(ctx, userID, device)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: userID, TokenID: claims.TokenID()}
	}

	if deps.RevokeRotated && deps.RevokeOne != nil && claims.ExpiresAt != nil {
		if err := deps.RevokeOne(ctx, claims.TokenID(), userID, "rotated", claims.ExpiresAt.Time); err != nil {
			warn("authcore: revoking rotated refresh token failed", "user_id", userID, "error", err)
		}
	}

	return RefreshResult{UserID: userID, TokenID: claims.TokenID(), Tokens: pair}
}

func classifyTokenError(err error, e RefreshErrors) (RefreshFailureKind, error) {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return RefreshFailureExpired, e.TokenExpired
	case errors.Is(err, jwt.ErrInvalid):
		return RefreshFailureInvalid, e.TokenInvalid
	case errors.Is(err, token.ErrRevoked):
		return RefreshFailureRevoked, e.TokenInvalid
	case errors.Is(err, token.ErrFingerprintMismatch):
		return RefreshFailureFingerprint, e.TokenInvalid
	case errors.Is(err, token.ErrEpochMismatch):
		return RefreshFailureEpoch, e.TokenInvalid
	case errors.Is(err, token.ErrRateLimited):
		return RefreshFailureRateLimited, e.RateLimited
	case errors.Is(err, token.ErrStore):
		return RefreshFailureStore, fmt.Errorf("%w: %v", e.StoreUnavailable, err)
	default:
		return RefreshFailureInvalid, e.TokenInvalid
	}
}
