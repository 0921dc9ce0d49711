package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type record struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
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
	return NewRedisStore(rdb, "t"), mr
}

func TestRedisStoreGetMissingIsNotError(t *testing.T) {
	store, _ := newTestStore(t)
	var r record
	ok, err := store.Get(context.Background(), "nope", &r)
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestRedisStoreSetGetAndTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", record{Count: 3, Name: "x"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("t:k") {
		t.Fatal("expected prefixed key to exist")
	}

	var r record
	ok, err := store.Get(ctx, "k", &r)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if r.Count != 3 || r.Name != "x" {
		t.Fatalf("unexpected record %+v", r)
	}

	mr.FastForward(2 * time.Minute)
	ok, err = store.Get(ctx, "k", &r)
	if err != nil || ok {
		t.Fatalf("expected expiry, got ok=%v err=%v", ok, err)
	}
}

func TestRedisStoreTakeIsOneTime(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "once", "value", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var v string
	ok, err := store.Take(ctx, "once", &v)
	if err != nil || !ok || v != "value" {
		t.Fatalf("first take: ok=%v v=%q err=%v", ok, v, err)
	}
	ok, err = store.Take(ctx, "once", &v)
	if err != nil || ok {
		t.Fatalf("second take should miss: ok=%v err=%v", ok, err)
	}
}

func TestRedisStoreDelReportsRemoval(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_ = store.Set(ctx, "d", 1, time.Minute)

	removed, err := store.Del(ctx, "d")
	if err != nil || !removed {
		t.Fatalf("first delete: removed=%v err=%v", removed, err)
	}
	removed, err = store.Del(ctx, "d")
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
}

func TestRedisStoreCorruptValue(t *testing.T) {
	store, mr := newTestStore(t)
	if err := mr.Set("t:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var r record
	_, err := store.Get(context.Background(), "bad", &r)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestRedisStoreBackendFailure(t *testing.T) {
	store, mr := newTestStore(t)
	mr.SetError("boom")
	var r record
	_, err := store.Get(context.Background(), "k", &r)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Set(context.Background(), "k", r, time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on set, got %v", err)
	}
}
