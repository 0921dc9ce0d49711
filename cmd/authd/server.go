package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/oauth/providers"
	"github.com/MrEthical07/authcore/oauth/providers/apple"
)

const maxBodyBytes = 64 << 10

type server struct {
	engine     *authcore.Engine
	windows    *rate.Limiter
	edge       *edgeThrottle
	metrics    *prometheus.Exporter
	logger     *slog.Logger
	trustProxy bool
	timeout    time.Duration
	loginRule  rate.Rule
	regRule    rate.Rule
}

func newServer(engine *authcore.Engine, windows *rate.Limiter, cfg serverConfig, logger *slog.Logger) *server {
	return &server{
		engine:     engine,
		windows:    windows,
		edge:       newEdgeThrottle(cfg.EdgeRate, cfg.EdgeBurst, cfg.TrustProxy),
		metrics:    prometheus.NewExporter(engine),
		logger:     logger,
		trustProxy: cfg.TrustProxy,
		timeout:    cfg.RequestTimeout,
		loginRule:  rate.Rule{Limit: cfg.LoginLimit, Window: cfg.CredentialSpan},
		regRule:    rate.Rule{Limit: cfg.RegisterLimit, Window: cfg.CredentialSpan},
	}
}

func (s *server) routes() http.Handler {
	guard := middleware.Guard(s.engine, s.guardOptions()...)

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/register", s.handleRegister)
	api.HandleFunc("POST /v1/login", s.handleLogin)
	api.HandleFunc("POST /v1/refresh", s.handleRefresh)
	api.HandleFunc("POST /v1/revoke", s.handleRevoke)
	api.Handle("POST /v1/logout", guard(http.HandlerFunc(s.handleLogout)))
	api.Handle("GET /v1/me", guard(http.HandlerFunc(s.handleMe)))
	api.HandleFunc("GET /v1/providers", s.handleProviders)
	api.HandleFunc("GET /v1/oauth/{provider}/url", s.handleAuthURL)
	api.HandleFunc("POST /v1/oauth/{provider}/callback", s.handleCallback)
	api.HandleFunc("POST /v1/oauth/apple/form_post", s.handleAppleFormPost)

	mux := http.NewServeMux()
	mux.Handle("/v1/", s.edge.middleware(s.withTimeout(api)))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (s *server) guardOptions() []middleware.Option {
	if s.trustProxy {
		return []middleware.Option{middleware.TrustProxy()}
	}
	return nil
}

func (s *server) withTimeout(next http.Handler) http.Handler {
	if s.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) device(r *http.Request) authcore.DeviceContext {
	return middleware.DeviceFromRequest(r, s.trustProxy)
}

// spend charges one hit against a shared per-IP window. A Redis outage
// fails open; the engine's own checks still fail closed.
func (s *server) spend(r *http.Request, bucket string, rule rate.Rule) error {
	if s.windows == nil {
		return nil
	}
	err := s.windows.Allow(r.Context(), bucket, s.device(r).ClientIP, rule)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return authcore.ErrRateLimitExceeded
	default:
		s.logger.Warn("authd: shared rate window unavailable", "bucket", bucket, "error", err)
		return nil
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return authcore.ErrInvalidRequest
	}
	return nil
}

type credentialsRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := s.spend(r, "register", s.regRule); err != nil {
		middleware.WriteError(w, err)
		return
	}
	var body credentialsRequest
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := s.engine.Register(r.Context(), authcore.RegisterRequest{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	}, s.device(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := s.spend(r, "login", s.loginRule); err != nil {
		middleware.WriteError(w, err)
		return
	}
	var body credentialsRequest
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := s.engine.Login(r.Context(), body.Email, body.Password, s.device(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

type tokenRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	Token        string `json:"token,omitempty"`
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := s.engine.Refresh(r.Context(), body.RefreshToken, s.device(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (s *server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := s.engine.RevokeToken(r.Context(), body.Token); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := s.engine.Logout(r.Context(), id.UserID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type accountView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Password  bool      `json:"has_password"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	account, err := s.engine.GetAccount(r.Context(), id.UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, accountView{
		ID:        account.ID,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		Avatar:    account.Avatar,
		Provider:  account.Provider,
		Password:  account.HasPassword(),
		CreatedAt: account.CreatedAt,
	})
}

func (s *server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	list := s.engine.GetAvailableProviders()
	if list == nil {
		list = []authcore.ProviderInfo{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"providers": list})
}

func pathProvider(r *http.Request) (providers.ID, error) {
	id, ok := providers.ParseID(r.PathValue("provider"))
	if !ok {
		return 0, authcore.ErrProviderUnavailable
	}
	return id, nil
}

func (s *server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	id, err := pathProvider(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	platform, ok := providers.ParsePlatform(r.URL.Query().Get("platform"))
	if !ok {
		middleware.WriteError(w, authcore.ErrInvalidRequest)
		return
	}
	u, err := s.engine.GetProviderAuthURL(r.Context(), id, platform, s.device(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, u)
}

type callbackRequest struct {
	Code     string `json:"code"`
	State    string `json:"state"`
	Platform string `json:"platform,omitempty"`
}

func (s *server) handleCallback(w http.ResponseWriter, r *http.Request) {
	id, err := pathProvider(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	var body callbackRequest
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, err)
		return
	}
	s.completeSocial(w, r, id, body)
}

// handleAppleFormPost receives Apple's response_mode=form_post callback. The
// "user" field is only present on the first authorization and is kept as a
// name fragment for the exchange that follows.
func (s *server) handleAppleFormPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		middleware.WriteError(w, authcore.ErrInvalidRequest)
		return
	}
	body := callbackRequest{
		Code:     r.PostForm.Get("code"),
		State:    r.PostForm.Get("state"),
		Platform: string(providers.PlatformWeb),
	}

	if raw := r.PostForm.Get("user"); raw != "" && body.State != "" {
		user, err := apple.ParseUserPayload(raw)
		if err != nil {
			s.logger.Info("authd: ignoring malformed apple user payload", "error", err)
		} else {
			fragment := authcore.ProviderFragment{
				FirstName: user.Name.FirstName,
				LastName:  user.Name.LastName,
				Email:     user.Email,
			}
			if err := s.engine.StoreProviderProfileFragment(r.Context(), body.State, fragment); err != nil {
				s.logger.Warn("authd: storing apple name fragment failed", "error", err)
			}
		}
	}

	s.completeSocial(w, r, providers.Apple, body)
}

func (s *server) completeSocial(w http.ResponseWriter, r *http.Request, id providers.ID, body callbackRequest) {
	platform, ok := providers.ParsePlatform(body.Platform)
	if !ok {
		middleware.WriteError(w, authcore.ErrInvalidRequest)
		return
	}
	res, err := s.engine.HandleSocialCallback(r.Context(), id, body.Code, body.State, platform, s.device(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	middleware.WriteJSON(w, status, res)
}
