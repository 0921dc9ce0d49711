package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/kv"
)

// IndexEntry identifies one issued token.
type IndexEntry struct {
	TokenID   string `json:"jti"`
	ExpiresAt int64  `json:"exp"`
}

// TokenIndex keeps, per user, the recently issued tokens that must be
// blacklisted on revoke-all.
type TokenIndex struct {
	store      kv.Store
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewTokenIndex returns an index whose per-user list lives for ttl after the
// last write and keeps at most maxEntries entries (newest first to survive).
func NewTokenIndex(store kv.Store, ttl time.Duration, maxEntries int, now func() time.Time) *TokenIndex {
	if now == nil {
		now = time.Now
	}
	if maxEntries <= 0 {
		maxEntries = 50
	}
	return &TokenIndex{store: store, ttl: ttl, maxEntries: maxEntries, now: now}
}

func (s *TokenIndex) key(userID string) string {
	return "ti:" + userID
}

// Add appends entries, drops expired ones and trims to the size bound.
func (s *TokenIndex) Add(ctx context.Context, userID string, entries ...IndexEntry) error {
	current, err := s.List(ctx, userID)
	if err != nil {
		return err
	}
	current = append(current, entries...)
	if over := len(current) - s.maxEntries; over > 0 {
		current = current[over:]
	}
	if err := s.store.Set(ctx, s.key(userID), current, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// List returns the user's unexpired entries, oldest first.
func (s *TokenIndex) List(ctx context.Context, userID string) ([]IndexEntry, error) {
	var entries []IndexEntry
	if _, err := s.store.Get(ctx, s.key(userID), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	now := s.now().Unix()
	live := entries[:0]
	for _, e := range entries {
		if e.ExpiresAt > now {
			live = append(live, e)
		}
	}
	return live, nil
}

// Clear removes the user's index.
func (s *TokenIndex) Clear(ctx context.Context, userID string) error {
	if _, err := s.store.Del(ctx, s.key(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
