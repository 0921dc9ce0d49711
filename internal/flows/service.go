package flows

import (
	"context"

	"github.com/MrEthical07/authcore/token"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.Issue != nil
}

func (s Service) Login(ctx context.Context, email, password string, device token.DeviceContext) LoginResult {
	return RunLogin(ctx, email, password, device, s.deps.Login)
}

func (s Service) Register(ctx context.Context, req RegisterRequest, device token.DeviceContext) RegisterResult {
	return RunRegister(ctx, req, device, s.deps.Register)
}

func (s Service) Refresh(ctx context.Context, refreshToken string, device token.DeviceContext) RefreshResult {
	return RunRefresh(ctx, refreshToken, device, s.deps.Refresh)
}

func (s Service) SocialCallback(ctx context.Context, req SocialRequest) SocialResult {
	return RunSocialCallback(ctx, req, s.deps.Social)
}
