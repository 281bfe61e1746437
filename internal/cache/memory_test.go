package cache

import (
	"context"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for expiry tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemory_SetGet(t *testing.T) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(5*time.Minute, clock.Now)
	ctx := context.Background()

	if _, ok := m.Get(ctx, "direct:dictionaries:x"); ok {
		t.Fatal("expected miss on empty store")
	}

	m.Set(ctx, "direct:dictionaries:x", []byte(`{"result":1}`))

	got, ok := m.Get(ctx, "direct:dictionaries:x")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(got) != `{"result":1}` {
		t.Errorf("payload: got %q, want %q", got, `{"result":1}`)
	}
}

func TestMemory_ExpiresAfterTTL(t *testing.T) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(5*time.Minute, clock.Now)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"))

	clock.Advance(5*time.Minute - time.Second)
	if _, ok := m.Get(ctx, "k"); !ok {
		t.Fatal("expected hit just before TTL")
	}

	clock.Advance(2 * time.Second)
	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("expected miss after TTL")
	}

	// Expired entry must have been dropped on access.
	if m.Len() != 0 {
		t.Errorf("entries after expiry: got %d, want 0", m.Len())
	}
}

func TestMemory_SetRefreshesExpiry(t *testing.T) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(time.Minute, clock.Now)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v1"))
	clock.Advance(50 * time.Second)
	m.Set(ctx, "k", []byte("v2"))
	clock.Advance(30 * time.Second)

	got, ok := m.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit after refresh")
	}
	if string(got) != "v2" {
		t.Errorf("payload: got %q, want %q", got, "v2")
	}
}

func TestMemory_Clear(t *testing.T) {
	t.Helper()

	m := NewMemory(time.Minute)
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"))
	m.Set(ctx, "b", []byte("2"))
	m.Clear(ctx)

	if _, ok := m.Get(ctx, "a"); ok {
		t.Fatal("expected miss after Clear")
	}
	if m.Len() != 0 {
		t.Errorf("entries after Clear: got %d, want 0", m.Len())
	}
}

func TestNop_NeverHits(t *testing.T) {
	t.Helper()

	n := NewNop()
	ctx := context.Background()

	n.Set(ctx, "k", []byte("v"))
	if _, ok := n.Get(ctx, "k"); ok {
		t.Fatal("nop store must never hit")
	}
}
