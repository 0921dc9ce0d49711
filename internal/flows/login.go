package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/accountstore"
	"github.com/MrEthical07/authcore/token"
)

// LoginFailure classifies why a login was refused.
type LoginFailure int

const (
	LoginFailureNone LoginFailure = iota
	LoginFailureLocked
	LoginFailureUnknownAccount
	LoginFailureNoPassword
	LoginFailurePasswordMismatch
	LoginFailureBackend
	LoginFailureIssue
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailure
	Err     error
	Account *accountstore.Account
	Tokens  token.Pair
	// LockedNow is set when this failure engaged the lockout.
	LockedNow bool
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountLocked      error
	StoreUnavailable   error
}

// LoginDeps captures login dependencies. NeedsRehash, HashPassword and
// UpdateAccount are optional and only drive hash upgrades.
type LoginDeps struct {
	IsLocked       func(context.Context, string) (bool, error)
	RecordFailure  func(context.Context, string) (bool, error)
	ResetFailures  func(context.Context, string) error
	FindByEmail    func(context.Context, string) (*accountstore.Account, error)
	VerifyPassword func(password, hash string) (bool, error)
	NeedsRehash    func(hash string) (bool, error)
	HashPassword   func(string) (string, error)
	UpdateAccount  func(context.Context, *accountstore.Account) error
	Issue          IssueFunc
	Warn           func(string, ...any)

	Errors LoginErrors
}

// RunLogin authenticates email/password and issues tokens bound to device.
//
// A locked account is refused before the account is read, so the correct
// password does not unlock it. Unknown accounts and social-only accounts get
// the same error as a wrong password; only a wrong password counts toward the
// lockout.
func RunLogin(ctx context.Context, email, password string, device token.DeviceContext, deps LoginDeps) LoginResult {
	if deps.IsLocked == nil ||
		deps.RecordFailure == nil ||
		deps.ResetFailures == nil ||
		deps.FindByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.Issue == nil {
		return LoginResult{Failure: LoginFailureBackend, Err: deps.Errors.EngineNotReady}
	}
	warn := warnOrDiscard(deps.Warn)
	email = accountstore.NormalizeEmail(email)

	locked, err := deps.IsLocked(ctx, email)
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)}
	}
	if locked {
		return LoginResult{Failure: LoginFailureLocked, Err: deps.Errors.AccountLocked}
	}

	account, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accountstore.ErrNotFound) {
			return LoginResult{Failure: LoginFailureUnknownAccount, Err: deps.Errors.InvalidCredentials}
		}
		return LoginResult{Failure: LoginFailureBackend, Err: fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)}
	}
	if !account.HasPassword() {
		return LoginResult{Failure: LoginFailureNoPassword, Err: deps.Errors.InvalidCredentials, Account: account}
	}

	ok, err := deps.VerifyPassword(password, account.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			warn("authcore: password verification error", "user_id", account.ID, "error", err)
		}
		lockedNow, recErr := deps.RecordFailure(ctx, email)
		if recErr != nil {
			warn("authcore: recording login failure failed", "user_id", account.ID, "error", recErr)
		}
		return LoginResult{
			Failure:   LoginFailurePasswordMismatch,
			Err:       deps.Errors.InvalidCredentials,
			Account:   account,
			LockedNow: lockedNow,
		}
	}

	if err := deps.ResetFailures(ctx, email); err != nil {
		return LoginResult{
			Failure: LoginFailureBackend,
			Err:     fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err),
			Account: account,
		}
	}

	upgradePasswordHash(ctx, account, password, deps, warn)
	password = ""

	pair, err := deps.Issue(ctx, account.ID, device)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Account: account}
	}
	return LoginResult{Account: account, Tokens: pair}
}

func upgradePasswordHash(ctx context.Context, account *accountstore.Account, password string, deps LoginDeps, warn func(string, ...any)) {
	if deps.NeedsRehash == nil || deps.HashPassword == nil || deps.UpdateAccount == nil {
		return
	}
	needs, err := deps.NeedsRehash(account.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := deps.HashPassword(password)
	if err != nil {
		warn("authcore: password hash upgrade generation failed", "user_id", account.ID)
		return
	}
	previous := account.PasswordHash
	account.PasswordHash = upgraded
	if err := deps.UpdateAccount(ctx, account); err != nil {
		account.PasswordHash = previous
		warn("authcore: password hash upgrade update failed", "user_id", account.ID)
	}
}
