package providers

import (
	"context"
	"strings"
)

// ID identifies one of the supported providers.
type ID int

const (
	Google ID = iota + 1
	GitHub
	Microsoft
	Apple
)

var idNames = map[ID]string{
	Google:    "google",
	GitHub:    "github",
	Microsoft: "microsoft",
	Apple:     "apple",
}

var displayNames = map[ID]string{
	Google:    "Google",
	GitHub:    "GitHub",
	Microsoft: "Microsoft",
	Apple:     "Apple",
}

// All returns every supported provider in display order.
func All() []ID {
	return []ID{Google, GitHub, Microsoft, Apple}
}

// String returns the lowercase wire name.
func (id ID) String() string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return "unknown"
}

// DisplayName returns the human readable provider name.
func (id ID) DisplayName() string {
	return displayNames[id]
}

// ParseID maps a wire name to an ID, case-insensitively.
func ParseID(s string) (ID, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for id, name := range idNames {
		if name == s {
			return id, true
		}
	}
	return 0, false
}

// Platform selects the client surface an authorization round trip serves.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
)

// ParsePlatform maps s to a Platform. Empty input means web.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case "", PlatformWeb:
		return PlatformWeb, true
	case PlatformMobile:
		return PlatformMobile, true
	default:
		return "", false
	}
}

// Profile is the normalized identity returned by every adapter. Email is
// always present and verified when HandleCallback succeeds.
type Profile struct {
	Provider       ID
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	Avatar         string
}

// HasName reports whether either name part is set.
func (p *Profile) HasName() bool {
	return p.FirstName != "" || p.LastName != ""
}

// Provider is the capability contract of an identity provider adapter.
type Provider interface {
	ID() ID
	// UsesPKCE reports whether AuthorizationURL persists a code verifier.
	UsesPKCE() bool
	// AuthorizationURL returns the provider authorize URL for state. PKCE
	// adapters persist the verifier before returning.
	AuthorizationURL(ctx context.Context, state string, platform Platform) (string, error)
	// HandleCallback exchanges code and returns the normalized profile.
	// Failures are *Error values.
	HandleCallback(ctx context.Context, code, state string, platform Platform) (*Profile, error)
}

// VerifierStore persists PKCE verifiers between the authorize redirect and
// the callback.
type VerifierStore interface {
	StoreVerifier(ctx context.Context, state, verifier string) error
	GetAndDeleteVerifier(ctx context.Context, state string) (string, bool, error)
}

// SplitName splits a display name into first and last name on the first run
// of whitespace.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
