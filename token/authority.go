package token

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/fingerprint"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/kv"
	"github.com/google/uuid"
)

// Rejection reasons returned by [Authority.Check]. Validate collapses them.
var (
	ErrRevoked             = errors.New("token revoked")
	ErrFingerprintMismatch = errors.New("token fingerprint mismatch")
	ErrEpochMismatch       = errors.New("token epoch mismatch")
	ErrRateLimited         = errors.New("token validation rate limited")
	ErrStore               = errors.New("token store unavailable")
)

// epochMargin keeps epoch records alive slightly past the refresh lifetime
// so leeway-accepted tokens still meet their record.
const epochMargin = 5 * time.Minute

// DeviceContext is the request context a token is bound to.
type DeviceContext struct {
	ClientIP  string
	UserAgent string
}

// Pair is the result of a successful issuance.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Epoch            int64
}

// Config tunes bookkeeping. Lifetimes come from the jwt manager.
type Config struct {
	MaxTokensPerUser int
}

// Authority owns token issuance, validation and revocation.
type Authority struct {
	jwt         *jwt.Manager
	fingerprint *fingerprint.Engine
	epochs      *stores.EpochStore
	revocations *stores.RevocationStore
	index       *stores.TokenIndex
	logger      *slog.Logger
	now         func() time.Time
}

// NewAuthority wires an Authority over the shared store. logger may be nil.
func NewAuthority(cfg Config, manager *jwt.Manager, fp *fingerprint.Engine, store kv.Store, logger *slog.Logger) (*Authority, error) {
	if manager == nil || fp == nil || store == nil {
		return nil, errors.New("token authority requires jwt manager, fingerprint engine and store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authority{
		jwt:         manager,
		fingerprint: fp,
		logger:      logger,
		now:         time.Now,
	}
	refreshTTL := manager.TTL(jwt.KindRefresh)
	clock := func() time.Time { return a.now() }
	a.epochs = stores.NewEpochStore(store, refreshTTL+epochMargin, clock)
	a.revocations = stores.NewRevocationStore(store, refreshTTL+epochMargin)
	a.index = stores.NewTokenIndex(store, refreshTTL, cfg.MaxTokensPerUser, clock)
	return a, nil
}

// SetClock replaces time.Now for fingerprint windows and bookkeeping. The jwt
// manager keeps its own clock.
func (a *Authority) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// Issue mints an access/refresh pair for userID bound to device and the
// user's current epoch, and registers both ids in the user's token index.
func (a *Authority) Issue(ctx context.Context, userID string, device DeviceContext) (Pair, error) {
	if userID == "" {
		return Pair{}, errors.New("user id required")
	}
	epoch, err := a.epochs.Current(ctx, userID)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	fp := a.fingerprint.Generate(device.ClientIP, device.UserAgent, a.now())

	access, accessClaims, err := a.jwt.Issue(jwt.KindAccess, userID, uuid.NewString(), fp, epoch)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshClaims, err := a.jwt.Issue(jwt.KindRefresh, userID, uuid.NewString(), fp, epoch)
	if err != nil {
		return Pair{}, err
	}

	if err := a.index.Add(ctx, userID,
		stores.IndexEntry{TokenID: accessClaims.ID, ExpiresAt: accessClaims.ExpiresAt.Unix()},
		stores.IndexEntry{TokenID: refreshClaims.ID, ExpiresAt: refreshClaims.ExpiresAt.Unix()},
	); err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		Epoch:            epoch,
	}, nil
}

// Validate reports whether raw is acceptable from device. Every rejection is
// logged with its reason; callers only see the boolean.
func (a *Authority) Validate(ctx context.Context, raw string, device DeviceContext) bool {
	_, err := a.Check(ctx, raw, "", device)
	return err == nil
}

// Check runs the full validation chain and returns the claims or the reason
// for rejection: [jwt.ErrExpired], [jwt.ErrInvalid], [ErrRevoked],
// [ErrFingerprintMismatch], [ErrRateLimited], [ErrEpochMismatch] or
// [ErrStore]. An empty kind accepts both access and refresh tokens.
func (a *Authority) Check(ctx context.Context, raw string, kind jwt.Kind, device DeviceContext) (*jwt.Claims, error) {
	claims, err := a.parse(raw, kind)
	if err != nil {
		reason := "signature"
		if errors.Is(err, jwt.ErrExpired) {
			reason = "expired"
		}
		return nil, a.reject(ctx, raw, reason, "", err)
	}
	userID := claims.UserID()

	revoked, err := a.revocations.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return nil, a.reject(ctx, raw, "store_unavailable", userID, fmt.Errorf("%w: %v", ErrStore, err))
	}
	if revoked {
		return nil, a.reject(ctx, raw, "revoked", userID, ErrRevoked)
	}

	match, err := a.fingerprint.Compare(ctx, claims.Fingerprint, a.candidateFingerprint(claims, device), device.ClientIP)
	if err != nil {
		if errors.Is(err, fingerprint.ErrRateLimited) {
			return nil, a.reject(ctx, raw, "fingerprint_rate_limited", userID, ErrRateLimited)
		}
		return nil, a.reject(ctx, raw, "store_unavailable", userID, fmt.Errorf("%w: %v", ErrStore, err))
	}
	if !match {
		return nil, a.reject(ctx, raw, "fingerprint_mismatch", userID, ErrFingerprintMismatch)
	}

	current, err := a.epochs.Peek(ctx, userID)
	if err != nil {
		return nil, a.reject(ctx, raw, "store_unavailable", userID, fmt.Errorf("%w: %v", ErrStore, err))
	}
	if claims.Epoch != current {
		return nil, a.reject(ctx, raw, "epoch_mismatch", userID, ErrEpochMismatch)
	}
	return claims, nil
}

// candidateFingerprint recomputes the device fingerprint for the current
// window, falling back to the window the token was issued in. Without the
// fallback every token would die at the first window boundary after issue.
func (a *Authority) candidateFingerprint(claims *jwt.Claims, device DeviceContext) string {
	current := a.fingerprint.Generate(device.ClientIP, device.UserAgent, a.now())
	if subtle.ConstantTimeCompare([]byte(current), []byte(claims.Fingerprint)) == 1 || claims.IssuedAt == nil {
		return current
	}
	issued := a.fingerprint.Generate(device.ClientIP, device.UserAgent, claims.IssuedAt.Time)
	if subtle.ConstantTimeCompare([]byte(issued), []byte(claims.Fingerprint)) == 1 {
		return issued
	}
	return current
}

func (a *Authority) parse(raw string, kind jwt.Kind) (*jwt.Claims, error) {
	if kind == "" {
		return a.jwt.Parse(raw)
	}
	return a.jwt.ParseKind(raw, kind)
}

func (a *Authority) reject(ctx context.Context, raw, reason, userID string, err error) error {
	level := slog.LevelInfo
	if reason == "store_unavailable" || reason == "fingerprint_rate_limited" {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(ctx, level, "token rejected",
		slog.String("reason", reason),
		slog.String("user_id", userID),
		slog.String("correlation", internal.Correlation(raw)),
	)
	return err
}

// RevokeOne blacklists a single token id until expiresAt plus the parser's
// leeway, the last moment the token could still verify.
func (a *Authority) RevokeOne(ctx context.Context, tokenID, userID, reason string, expiresAt time.Time) error {
	now := a.now()
	rec := stores.TokenRevocationRecord{UserID: userID, RevokedAt: now.Unix(), Reason: reason}
	ttl := expiresAt.Add(a.jwt.Leeway()).Sub(now)
	if err := a.revocations.Revoke(ctx, tokenID, rec, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// RevokeToken verifies raw and blacklists it, returning the owning user id.
// A token past exp plus leeway fails with [jwt.ErrExpired]; it can no longer
// verify, so there is nothing to revoke.
func (a *Authority) RevokeToken(ctx context.Context, raw, reason string) (string, error) {
	claims, err := a.jwt.Parse(raw)
	if err != nil {
		return "", err
	}
	if err := a.RevokeOne(ctx, claims.TokenID(), claims.UserID(), reason, claims.ExpiresAt.Time); err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// RevokeAll kills every token previously issued to userID: the epoch is
// bumped first, then every indexed id is blacklisted and the index cleared.
// It returns the new epoch.
func (a *Authority) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	epoch, err := a.epochs.Increment(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}

	entries, err := a.index.List(ctx, userID)
	if err != nil {
		return epoch, fmt.Errorf("%w: %v", ErrStore, err)
	}
	for _, e := range entries {
		if err := a.RevokeOne(ctx, e.TokenID, userID, reason, time.Unix(e.ExpiresAt, 0)); err != nil {
			return epoch, err
		}
	}
	if err := a.index.Clear(ctx, userID); err != nil {
		return epoch, fmt.Errorf("%w: %v", ErrStore, err)
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "tokens revoked",
		slog.String("user_id", userID),
		slog.Int64("epoch", epoch),
		slog.Int("blacklisted", len(entries)),
		slog.String("reason", reason),
	)
	return epoch, nil
}

// CurrentEpoch returns the user's epoch without creating a record.
func (a *Authority) CurrentEpoch(ctx context.Context, userID string) (int64, error) {
	epoch, err := a.epochs.Peek(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return epoch, nil
}
