package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/oauth/providers"
)

// GetAvailableProviders lists every configured provider in display order.
func (e *Engine) GetAvailableProviders() []ProviderInfo {
	if e == nil {
		return nil
	}
	return e.providers.Infos()
}

// GetProviderAuthURL starts a provider round trip. It stores a one-time
// state bound to the provider, platform and device, and returns the
// provider's authorization URL carrying it.
func (e *Engine) GetProviderAuthURL(ctx context.Context, id providers.ID, platform providers.Platform, device DeviceContext) (*AuthURL, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	adapter, ok := e.providers.Get(id)
	if !ok {
		return nil, ErrProviderUnavailable
	}
	if platform == "" {
		platform = providers.PlatformWeb
	}
	device = normalizeDevice(device)

	state, err := e.states.GenerateState(ctx, oauth.Metadata{
		Provider:  id.String(),
		Platform:  string(platform),
		ClientIP:  device.ClientIP,
		UserAgent: device.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	url, err := adapter.AuthorizationURL(ctx, state, platform)
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			if errors.Is(err, oauth.ErrUnavailable) {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			err = providers.TransportError(id, err)
		}
		e.metricInc(MetricProviderFailure)
		return nil, err
	}

	e.emitAudit(ctx, auditEventProviderURLIssued, true, "", id.String(), device, nil, func() map[string]string {
		return map[string]string{"platform": string(platform)}
	})
	return &AuthURL{URL: url, State: state}, nil
}

// StoreProviderProfileFragment keeps name data a provider delivered outside
// the code exchange until the callback for state consumes it. Apple posts
// the user's name only on the first web authorization.
func (e *Engine) StoreProviderProfileFragment(ctx context.Context, state string, fragment ProviderFragment) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return fmt.Errorf("%w: state", ErrInvalidRequest)
	}
	fragment.FirstName = strings.TrimSpace(fragment.FirstName)
	fragment.LastName = strings.TrimSpace(fragment.LastName)
	fragment.Email = strings.TrimSpace(fragment.Email)
	if err := e.states.StoreProfileFragment(ctx, state, fragment); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// HandleSocialCallback completes a provider round trip. The state is
// consumed first and must match the provider and platform it was issued
// for; with OAuth.BindStateToClient it must also come from the same device.
// The code is then exchanged, and the local account is found by provider
// identity, linked by verified email, or created.
func (e *Engine) HandleSocialCallback(ctx context.Context, id providers.ID, code, state string, platform providers.Platform, device DeviceContext) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metrics.since(MetricSocialLatency, start)

	if platform == "" {
		platform = providers.PlatformWeb
	}
	if strings.TrimSpace(code) == "" {
		e.metricInc(MetricSocialFailure)
		return nil, fmt.Errorf("%w: code", ErrInvalidRequest)
	}
	device = normalizeDevice(device)

	res := e.flows.SocialCallback(ctx, flows.SocialRequest{
		Provider:   id,
		Code:       code,
		State:      state,
		Platform:   platform,
		Device:     device,
		BindClient: e.config.OAuth.BindStateToClient,
	})

	userID := ""
	if res.Account != nil {
		userID = res.Account.ID
	}
	if res.Err != nil {
		e.metricInc(MetricSocialFailure)
		switch res.Failure {
		case flows.SocialFailureState:
			e.metricInc(MetricStateRejected)
		case flows.SocialFailureProvider:
			e.metricInc(MetricProviderFailure)
			e.logger.Warn("authcore: provider callback failed", "provider", id.String(), "error", res.Err)
		}
		e.emitAudit(ctx, auditEventSocialLoginFailure, false, userID, id.String(), device, res.Err, nil)
		return nil, res.Err
	}

	e.metricInc(MetricSocialSuccess)
	if res.Created {
		e.metricInc(MetricSocialAccountCreated)
	}
	if res.Linked {
		e.metricInc(MetricSocialAccountLinked)
		e.emitAudit(ctx, auditEventSocialAccountLinked, true, userID, id.String(), device, nil, nil)
	}
	e.emitAudit(ctx, auditEventSocialLoginSuccess, true, userID, id.String(), device, nil, func() map[string]string {
		return map[string]string{
			"created":         fmt.Sprint(res.Created),
			"fragment_merged": fmt.Sprint(res.FragmentMerged),
		}
	})

	out := newAuthResult(res.Account, userID, res.Tokens)
	out.Created, out.Linked = res.Created, res.Linked
	return out, nil
}
