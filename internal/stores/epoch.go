package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/kv"
)

// TokenEpochRecord holds a user's current token epoch. Tokens whose epoch
// differs from CurrentEpoch are dead.
type TokenEpochRecord struct {
	CurrentEpoch int64 `json:"current_epoch"`
	UpdatedAt    int64 `json:"updated_at"`
}

// EpochStore reads and advances per-user token epochs.
type EpochStore struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewEpochStore returns a store whose records live for ttl after their last
// write. ttl must cover the longest token lifetime.
func NewEpochStore(store kv.Store, ttl time.Duration, now func() time.Time) *EpochStore {
	if now == nil {
		now = time.Now
	}
	return &EpochStore{store: store, ttl: ttl, now: now}
}

func (s *EpochStore) key(userID string) string {
	return "tv:" + userID
}

// Current returns the user's epoch and re-arms the record TTL. A missing
// record is created at epoch 1.
func (s *EpochStore) Current(ctx context.Context, userID string) (int64, error) {
	rec, found, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		rec = TokenEpochRecord{CurrentEpoch: 1, UpdatedAt: s.now().Unix()}
	}
	if err := s.save(ctx, userID, rec); err != nil {
		return 0, err
	}
	return rec.CurrentEpoch, nil
}

// Peek returns the user's epoch without writing. A missing record reads as 1.
func (s *EpochStore) Peek(ctx context.Context, userID string) (int64, error) {
	rec, found, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 1, nil
	}
	return rec.CurrentEpoch, nil
}

// Increment advances the user's epoch by one and returns the new value.
func (s *EpochStore) Increment(ctx context.Context, userID string) (int64, error) {
	rec, found, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !found || rec.CurrentEpoch < 1 {
		rec.CurrentEpoch = 1
	}
	rec.CurrentEpoch++
	rec.UpdatedAt = s.now().Unix()
	if err := s.save(ctx, userID, rec); err != nil {
		return 0, err
	}
	return rec.CurrentEpoch, nil
}

func (s *EpochStore) load(ctx context.Context, userID string) (TokenEpochRecord, bool, error) {
	var rec TokenEpochRecord
	found, err := s.store.Get(ctx, s.key(userID), &rec)
	if err != nil {
		return rec, false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return rec, found, nil
}

func (s *EpochStore) save(ctx context.Context, userID string, rec TokenEpochRecord) error {
	if err := s.store.Set(ctx, s.key(userID), rec, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
