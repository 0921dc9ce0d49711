package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/accountstore"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/MrEthical07/authcore/token"
)

// SocialRequest is one provider callback.
type SocialRequest struct {
	Provider providers.ID
	Code     string
	State    string
	Platform providers.Platform
	Device   token.DeviceContext
	// BindClient also requires the callback to come from the client IP and
	// user agent that requested the authorization URL.
	BindClient bool
}

// SocialFailure classifies why a social callback was refused.
type SocialFailure int

const (
	SocialFailureNone SocialFailure = iota
	SocialFailureProviderUnavailable
	SocialFailureState
	SocialFailureProvider
	SocialFailureBackend
	SocialFailureIssue
)

// SocialResult carries the resolved account and its token pair.
type SocialResult struct {
	Failure SocialFailure
	Err     error
	Account *accountstore.Account
	Profile *providers.Profile
	Tokens  token.Pair
	// Created is set when the callback created the local account, Linked when
	// it attached the provider identity to an existing email account.
	Created        bool
	Linked         bool
	FragmentMerged bool
}

// SocialErrors carries host-level sentinel errors used by social sign-in.
type SocialErrors struct {
	EngineNotReady      error
	ProviderUnavailable error
	StateInvalid        error
	StateExpired        error
	StoreUnavailable    error
}

// SocialDeps captures social callback dependencies. TakeFragment is optional.
type SocialDeps struct {
	Provider       func(providers.ID) (providers.Provider, bool)
	ValidateState  func(ctx context.Context, state string, expected oauth.Expected) (*oauth.Metadata, error)
	TakeFragment   func(ctx context.Context, state string) (*oauth.Fragment, error)
	FindByProvider func(ctx context.Context, provider, providerUserID string) (*accountstore.Account, error)
	FindByEmail    func(context.Context, string) (*accountstore.Account, error)
	Create         func(context.Context, *accountstore.Account) error
	Update         func(context.Context, *accountstore.Account) error
	Issue          IssueFunc
	Warn           func(string, ...any)

	Errors SocialErrors
}

// RunSocialCallback completes a provider round trip: it consumes the state,
// exchanges the code, merges a pending name fragment, resolves the local
// account by provider identity then by email, and issues tokens.
func RunSocialCallback(ctx context.Context, req SocialRequest, deps SocialDeps) SocialResult {
	if deps.Provider == nil ||
		deps.ValidateState == nil ||
		deps.FindByProvider == nil ||
		deps.FindByEmail == nil ||
		deps.Create == nil ||
		deps.Update == nil ||
		deps.Issue == nil {
		return SocialResult{Failure: SocialFailureBackend, Err: deps.Errors.EngineNotReady}
	}
	warn := warnOrDiscard(deps.Warn)

	adapter, ok := deps.Provider(req.Provider)
	if !ok {
		return SocialResult{Failure: SocialFailureProviderUnavailable, Err: deps.Errors.ProviderUnavailable}
	}

	expected := oauth.Expected{Provider: req.Provider.String(), Platform: string(req.Platform)}
	if req.BindClient {
		expected.ClientIP = req.Device.ClientIP
		expected.UserAgent = req.Device.UserAgent
	}
	if _, err := deps.ValidateState(ctx, req.State, expected); err != nil {
		return SocialResult{Failure: stateFailure(err), Err: mapStateError(err, deps.Errors)}
	}

	profile, err := adapter.HandleCallback(ctx, req.Code, req.State, req.Platform)
	if err != nil {
		var perr *providers.Error
		if !errors.As(err, &perr) {
			err = providers.TransportError(req.Provider, err)
		}
		return SocialResult{Failure: SocialFailureProvider, Err: err}
	}
	if profile == nil || strings.TrimSpace(profile.Email) == "" || profile.ProviderUserID == "" {
		return SocialResult{Failure: SocialFailureProvider, Err: providers.ClientError(req.Provider, "profile missing verified email or subject")}
	}
	profile.Provider = req.Provider

	res := SocialResult{Profile: profile}
	if deps.TakeFragment != nil {
		fragment, err := deps.TakeFragment(ctx, req.State)
		if err != nil {
			warn("authcore: profile fragment unavailable", "provider", req.Provider.String(), "error", err)
		} else if fragment != nil && !profile.HasName() {
			profile.FirstName = strings.TrimSpace(fragment.FirstName)
			profile.LastName = strings.TrimSpace(fragment.LastName)
			res.FragmentMerged = profile.HasName()
		}
	}

	account, created, linked, err := resolveAccount(ctx, profile, deps, warn)
	if err != nil {
		res.Failure, res.Err = SocialFailureBackend, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		return res
	}
	res.Account, res.Created, res.Linked = account, created, linked

	pair, err := deps.Issue(ctx, account.ID, req.Device)
	if err != nil {
		res.Failure, res.Err = SocialFailureIssue, err
		return res
	}
	res.Tokens = pair
	return res
}

func resolveAccount(ctx context.Context, p *providers.Profile, deps SocialDeps, warn func(string, ...any)) (account *accountstore.Account, created, linked bool, err error) {
	provider := p.Provider.String()

	account, err = deps.FindByProvider(ctx, provider, p.ProviderUserID)
	if err == nil {
		if fillProfile(account, p) {
			if err := deps.Update(ctx, account); err != nil {
				warn("authcore: refreshing account profile failed", "user_id", account.ID, "error", err)
			}
		}
		return account, false, false, nil
	}
	if !errors.Is(err, accountstore.ErrNotFound) {
		return nil, false, false, err
	}

	account, err = deps.FindByEmail(ctx, p.Email)
	switch {
	case err == nil:
		if account.Linked() {
			// Verified email owned by an account linked elsewhere: sign in
			// without moving the existing link.
			return account, false, false, nil
		}
		account.Provider, account.ProviderUserID = provider, p.ProviderUserID
		fillProfile(account, p)
		if err := deps.Update(ctx, account); err != nil {
			return nil, false, false, err
		}
		return account, false, true, nil
	case !errors.Is(err, accountstore.ErrNotFound):
		return nil, false, false, err
	}

	account = &accountstore.Account{
		Email:          p.Email,
		Provider:       provider,
		ProviderUserID: p.ProviderUserID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Avatar:         p.Avatar,
	}
	if err := deps.Create(ctx, account); err != nil {
		if !errors.Is(err, accountstore.ErrDuplicate) {
			return nil, false, false, err
		}
		// Lost a creation race; the winner's account is the one to use.
		existing, findErr := deps.FindByProvider(ctx, provider, p.ProviderUserID)
		if findErr != nil {
			existing, findErr = deps.FindByEmail(ctx, p.Email)
		}
		if findErr != nil {
			return nil, false, false, findErr
		}
		return existing, false, false, nil
	}
	return account, true, false, nil
}

// fillProfile copies profile fields the account is missing. It never
// overwrites values the user already has.
func fillProfile(a *accountstore.Account, p *providers.Profile) bool {
	changed := false
	if a.FirstName == "" && p.FirstName != "" {
		a.FirstName, changed = p.FirstName, true
	}
	if a.LastName == "" && p.LastName != "" {
		a.LastName, changed = p.LastName, true
	}
	if a.Avatar == "" && p.Avatar != "" {
		a.Avatar, changed = p.Avatar, true
	}
	return changed
}

func stateFailure(err error) SocialFailure {
	if errors.Is(err, oauth.ErrUnavailable) {
		return SocialFailureBackend
	}
	return SocialFailureState
}

func mapStateError(err error, e SocialErrors) error {
	switch {
	case errors.Is(err, oauth.ErrUnavailable):
		return fmt.Errorf("%w: %v", e.StoreUnavailable, err)
	case errors.Is(err, oauth.ErrStateExpired):
		return e.StateExpired
	default:
		return e.StateInvalid
	}
}
