package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/kv"
)

// TokenRevocationRecord marks a single token id as dead regardless of epoch.
type TokenRevocationRecord struct {
	UserID    string `json:"user_id"`
	RevokedAt int64  `json:"revoked_at"`
	Reason    string `json:"reason"`
}

// RevocationStore is the individual-token blacklist.
type RevocationStore struct {
	store  kv.Store
	maxTTL time.Duration
}

// NewRevocationStore caps every record TTL at maxTTL.
func NewRevocationStore(store kv.Store, maxTTL time.Duration) *RevocationStore {
	return &RevocationStore{store: store, maxTTL: maxTTL}
}

func (s *RevocationStore) key(tokenID string) string {
	return "rv:" + tokenID
}

// Revoke writes a record for tokenID that lives for ttl, capped at the
// maximum token lifetime. A non-positive ttl is a no-op: the token is
// already past its expiry.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, rec TokenRevocationRecord, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	if err := s.store.Set(ctx, s.key(tokenID), rec, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Lookup returns the revocation record for tokenID, if any.
func (s *RevocationStore) Lookup(ctx context.Context, tokenID string) (*TokenRevocationRecord, error) {
	var rec TokenRevocationRecord
	found, err := s.store.Get(ctx, s.key(tokenID), &rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// IsRevoked reports whether tokenID has a live revocation record.
func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	rec, err := s.Lookup(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}
