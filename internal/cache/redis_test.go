package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, ttl, logger.NewNop()), mr
}

func TestRedis_SetGet(t *testing.T) {
	t.Helper()

	store, _ := newRedisStore(t, time.Minute)
	ctx := context.Background()

	if _, ok := store.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty store")
	}

	store.Set(ctx, "k", []byte("payload"))

	got, ok := store.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(got) != "payload" {
		t.Errorf("payload: got %q, want %q", got, "payload")
	}
}

func TestRedis_ExpiresAfterTTL(t *testing.T) {
	t.Helper()

	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	store.Set(ctx, "k", []byte("v"))
	mr.FastForward(2 * time.Minute)

	if _, ok := store.Get(ctx, "k"); ok {
		t.Fatal("expected miss after TTL")
	}
}

func TestRedis_ClearOnlyOwnNamespace(t *testing.T) {
	t.Helper()

	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	store.Set(ctx, "a", []byte("1"))
	store.Set(ctx, "b", []byte("2"))
	if err := mr.Set("other-service:key", "keep"); err != nil {
		t.Fatalf("seed foreign key: %v", err)
	}

	store.Clear(ctx)

	if _, ok := store.Get(ctx, "a"); ok {
		t.Fatal("expected miss after Clear")
	}
	if !mr.Exists("other-service:key") {
		t.Error("Clear must not delete keys outside the cache namespace")
	}
}
