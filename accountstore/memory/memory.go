// Package memory is an in-process accountstore.Store for tests and
// single-instance development servers.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/accountstore"
)

var _ accountstore.Store = (*Store)(nil)

// Store keeps accounts in maps guarded by a RWMutex.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*accountstore.Account
	byEmail    map[string]string
	byProvider map[string]string
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:       make(map[string]*accountstore.Account),
		byEmail:    make(map[string]string),
		byProvider: make(map[string]string),
		now:        time.Now,
	}
}

func providerKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*accountstore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[accountstore.NormalizeEmail(email)]
	if !ok {
		return nil, accountstore.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*accountstore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, accountstore.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) FindByProvider(ctx context.Context, provider, providerUserID string) (*accountstore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if provider == "" || providerUserID == "" {
		return nil, accountstore.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byProvider[providerKey(provider, providerUserID)]
	if !ok {
		return nil, accountstore.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) Create(ctx context.Context, account *accountstore.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now().UTC()
	email := accountstore.NormalizeEmail(account.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return accountstore.ErrDuplicate
	}
	if account.Linked() {
		if _, taken := s.byProvider[providerKey(account.Provider, account.ProviderUserID)]; taken {
			return accountstore.ErrDuplicate
		}
	}
	if account.ID == "" {
		account.ID = accountstore.NewID(now)
	}
	if _, taken := s.byID[account.ID]; taken {
		return accountstore.ErrDuplicate
	}
	account.Email = email
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	s.byID[account.ID] = account.Clone()
	s.byEmail[email] = account.ID
	if account.Linked() {
		s.byProvider[providerKey(account.Provider, account.ProviderUserID)] = account.ID
	}
	return nil
}

func (s *Store) Update(ctx context.Context, account *accountstore.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.byID[account.ID]
	if !ok {
		return accountstore.ErrNotFound
	}
	email := accountstore.NormalizeEmail(account.Email)
	if owner, taken := s.byEmail[email]; taken && owner != account.ID {
		return accountstore.ErrDuplicate
	}
	if account.Linked() {
		if owner, taken := s.byProvider[providerKey(account.Provider, account.ProviderUserID)]; taken && owner != account.ID {
			return accountstore.ErrDuplicate
		}
	}

	delete(s.byEmail, prev.Email)
	if prev.Linked() {
		delete(s.byProvider, providerKey(prev.Provider, prev.ProviderUserID))
	}
	account.Email = email
	account.CreatedAt = prev.CreatedAt
	account.UpdatedAt = s.now().UTC()
	s.byID[account.ID] = account.Clone()
	s.byEmail[email] = account.ID
	if account.Linked() {
		s.byProvider[providerKey(account.Provider, account.ProviderUserID)] = account.ID
	}
	return nil
}
