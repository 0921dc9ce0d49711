package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/kv"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestKV(t *testing.T) (kv.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return kv.NewRedisStore(rdb, "t"), mr
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEpochStoreLazyCreateAndIncrement(t *testing.T) {
	store, mr := newTestKV(t)
	ctx := context.Background()
	epochs := NewEpochStore(store, time.Hour, nil)

	if v, err := epochs.Peek(ctx, "u1"); err != nil || v != 1 {
		t.Fatalf("peek on missing record: v=%d err=%v", v, err)
	}
	if mr.Exists("t:tv:u1") {
		t.Fatal("peek must not write")
	}

	v, err := epochs.Current(ctx, "u1")
	if err != nil || v != 1 {
		t.Fatalf("current: v=%d err=%v", v, err)
	}
	if ttl := mr.TTL("t:tv:u1"); ttl != time.Hour {
		t.Fatalf("expected epoch TTL 1h, got %v", ttl)
	}

	for want := int64(2); want <= 4; want++ {
		got, err := epochs.Increment(ctx, "u1")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("expected epoch %d, got %d", want, got)
		}
	}
	if v, _ := epochs.Current(ctx, "u1"); v != 4 {
		t.Fatalf("expected epoch 4 after increments, got %d", v)
	}
}

func TestEpochStoreIncrementFromMissingSkipsInitialEpoch(t *testing.T) {
	store, _ := newTestKV(t)
	epochs := NewEpochStore(store, time.Hour, nil)

	got, err := epochs.Increment(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 2 {
		t.Fatalf("tokens minted at the implicit epoch 1 must die; got epoch %d", got)
	}
}

func TestEpochStoreCurrentRearmsTTL(t *testing.T) {
	store, mr := newTestKV(t)
	ctx := context.Background()
	epochs := NewEpochStore(store, time.Hour, nil)

	if _, err := epochs.Increment(ctx, "u1"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	mr.FastForward(50 * time.Minute)
	if _, err := epochs.Current(ctx, "u1"); err != nil {
		t.Fatalf("current: %v", err)
	}
	mr.FastForward(50 * time.Minute)
	if v, _ := epochs.Peek(ctx, "u1"); v != 2 {
		t.Fatalf("re-armed record should survive, got epoch %d", v)
	}
}

func TestRevocationStoreTTLBoundedByLifetime(t *testing.T) {
	store, mr := newTestKV(t)
	ctx := context.Background()
	revs := NewRevocationStore(store, time.Hour)

	rec := TokenRevocationRecord{UserID: "u1", RevokedAt: 100, Reason: "logout"}
	if err := revs.Revoke(ctx, "jti-1", rec, 10*time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := revs.Revoke(ctx, "jti-2", rec, 48*time.Hour); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ttl := mr.TTL("t:rv:jti-1"); ttl != 10*time.Minute {
		t.Fatalf("expected 10m TTL, got %v", ttl)
	}
	if ttl := mr.TTL("t:rv:jti-2"); ttl != time.Hour {
		t.Fatalf("expected TTL capped at 1h, got %v", ttl)
	}

	got, err := revs.Lookup(ctx, "jti-1")
	if err != nil || got == nil {
		t.Fatalf("lookup: rec=%v err=%v", got, err)
	}
	if got.UserID != "u1" || got.Reason != "logout" {
		t.Fatalf("unexpected record %+v", got)
	}

	mr.FastForward(11 * time.Minute)
	if revoked, _ := revs.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("revocation should expire with the token")
	}
}

func TestRevocationStoreSkipsExpiredTokens(t *testing.T) {
	store, mr := newTestKV(t)
	revs := NewRevocationStore(store, time.Hour)

	if err := revs.Revoke(context.Background(), "old", TokenRevocationRecord{}, 0); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if mr.Exists("t:rv:old") {
		t.Fatal("no record expected for an already expired token")
	}
}

func TestTokenIndexBoundAndExpiry(t *testing.T) {
	store, mr := newTestKV(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	index := NewTokenIndex(store, time.Hour, 3, fixedClock(now))

	for i, id := range []string{"a", "b", "c", "d"} {
		exp := now.Add(time.Duration(i+1) * time.Minute).Unix()
		if err := index.Add(ctx, "u1", IndexEntry{TokenID: id, ExpiresAt: exp}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	if ttl := mr.TTL("t:ti:u1"); ttl != time.Hour {
		t.Fatalf("expected index TTL 1h, got %v", ttl)
	}

	entries, err := index.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 || entries[0].TokenID != "b" || entries[2].TokenID != "d" {
		t.Fatalf("expected the three newest entries, got %+v", entries)
	}

	later := NewTokenIndex(store, time.Hour, 3, fixedClock(now.Add(150*time.Second)))
	entries, err = later.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].TokenID != "c" {
		t.Fatalf("expired entries should be dropped, got %+v", entries)
	}

	if err := index.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if entries, _ := index.List(ctx, "u1"); len(entries) != 0 {
		t.Fatalf("expected empty index after clear, got %+v", entries)
	}
}

func TestStoresSurfaceBackendFailure(t *testing.T) {
	store, mr := newTestKV(t)
	ctx := context.Background()
	mr.SetError("down")

	if _, err := NewEpochStore(store, time.Hour, nil).Current(ctx, "u1"); !errors.Is(err, ErrBackend) {
		t.Fatalf("epoch: expected ErrBackend, got %v", err)
	}
	if _, err := NewRevocationStore(store, time.Hour).IsRevoked(ctx, "j"); !errors.Is(err, ErrBackend) {
		t.Fatalf("revocation: expected ErrBackend, got %v", err)
	}
	if err := NewTokenIndex(store, time.Hour, 5, nil).Add(ctx, "u1", IndexEntry{TokenID: "j", ExpiresAt: 1 << 40}); !errors.Is(err, ErrBackend) {
		t.Fatalf("index: expected ErrBackend, got %v", err)
	}
}
