// Package accountstore defines the minimal account model the auth core reads
// and writes, and the lookups it needs. Drivers live in subpackages.
package accountstore

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned by lookups that match no account.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned by Create when the email or provider identity
	// is already taken.
	ErrDuplicate = errors.New("account already exists")
)

// Account is the local account record. PasswordHash is empty for accounts
// created through a social provider only.
type Account struct {
	ID             string
	Email          string
	PasswordHash   string
	Provider       string
	ProviderUserID string
	FirstName      string
	LastName       string
	Avatar         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether the account can log in with a password.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// Linked reports whether a provider identity is attached.
func (a *Account) Linked() bool {
	return a != nil && a.Provider != "" && a.ProviderUserID != ""
}

// Clone returns a copy safe to hand across goroutines.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}

// Store is the account persistence contract consumed by the engine.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByProvider(ctx context.Context, provider, providerUserID string) (*Account, error)
	// Create assigns ID and timestamps when unset.
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
}

// NormalizeEmail lowercases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a lexicographically sortable account id for t.
func NewID(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), idEntropy).String()
}
