package flows

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/MrEthical07/authcore/accountstore"
	"github.com/MrEthical07/authcore/token"
)

// RegisterRequest is the data a new password account is created from.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// RegisterFailure classifies why a registration was refused.
type RegisterFailure int

const (
	RegisterFailureNone RegisterFailure = iota
	RegisterFailureInvalid
	RegisterFailureDuplicate
	RegisterFailureBackend
	RegisterFailureIssue
)

// RegisterResult carries the created account and its first token pair.
type RegisterResult struct {
	Failure RegisterFailure
	Err     error
	Account *accountstore.Account
	Tokens  token.Pair
}

// RegisterErrors carries host-level sentinel errors used by registration.
type RegisterErrors struct {
	EngineNotReady   error
	InvalidRequest   error
	AccountExists    error
	StoreUnavailable error
}

// RegisterDeps captures registration dependencies. HashPassword must wrap
// policy violations in Errors.InvalidRequest.
type RegisterDeps struct {
	FindByEmail  func(context.Context, string) (*accountstore.Account, error)
	Create       func(context.Context, *accountstore.Account) error
	HashPassword func(string) (string, error)
	Issue        IssueFunc

	Errors RegisterErrors
}

// RunRegister creates a password account and issues tokens exactly as a
// login would.
func RunRegister(ctx context.Context, req RegisterRequest, device token.DeviceContext, deps RegisterDeps) RegisterResult {
	if deps.FindByEmail == nil || deps.Create == nil || deps.HashPassword == nil || deps.Issue == nil {
		return RegisterResult{Failure: RegisterFailureBackend, Err: deps.Errors.EngineNotReady}
	}

	email := accountstore.NormalizeEmail(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return RegisterResult{Failure: RegisterFailureInvalid, Err: fmt.Errorf("%w: email", deps.Errors.InvalidRequest)}
	}

	switch _, err := deps.FindByEmail(ctx, email); {
	case err == nil:
		return RegisterResult{Failure: RegisterFailureDuplicate, Err: deps.Errors.AccountExists}
	case !errors.Is(err, accountstore.ErrNotFound):
		return RegisterResult{Failure: RegisterFailureBackend, Err: fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)}
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, deps.Errors.InvalidRequest) {
			return RegisterResult{Failure: RegisterFailureInvalid, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureBackend, Err: err}
	}

	account := &accountstore.Account{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
	}
	if err := deps.Create(ctx, account); err != nil {
		if errors.Is(err, accountstore.ErrDuplicate) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: deps.Errors.AccountExists}
		}
		return RegisterResult{Failure: RegisterFailureBackend, Err: fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)}
	}

	pair, err := deps.Issue(ctx, account.ID, device)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureIssue, Err: err, Account: account}
	}
	return RegisterResult{Account: account, Tokens: pair}
}
