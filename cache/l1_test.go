package cache

import (
	"context"
	"testing"
	"time"
)

func mustNewL1(t *testing.T) *L1 {
	t.Helper()
	c, err := NewL1(1000)
	if err != nil {
		t.Fatalf("NewL1: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestL1_GetSet(t *testing.T) {
	c := mustNewL1(t)
	ctx := t.Context()

	// Miss returns false.
	_, ok, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}

	// Set then Get.
	if err := c.Set(ctx, "k1", []byte("v1"), NoExpiry); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	val, ok, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(val) != "v1" {
		t.Fatalf("got %q, want %q", val, "v1")
	}
	if ok, _ := c.Contains(ctx, "k1"); !ok {
		t.Fatal("Contains disagrees with Get")
	}
}

func TestL1_TTLExpires(t *testing.T) {
	c := mustNewL1(t)
	ctx := t.Context()

	if err := c.Set(ctx, "ttl", []byte("temp"), 50*time.Millisecond); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// Should be present immediately.
	if ok, _ := c.Contains(ctx, "ttl"); !ok {
		t.Fatal("expected hit before TTL")
	}

	time.Sleep(200 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "ttl"); ok {
		t.Fatal("expected miss after TTL")
	}
	if ok, _ := c.Contains(ctx, "ttl"); ok {
		t.Fatal("Contains reported an expired key")
	}
}

func TestL1_NonPositiveTTLExpiresImmediately(t *testing.T) {
	c := mustNewL1(t)
	ctx := t.Context()

	if err := c.Set(ctx, "k", []byte("old"), NoExpiry); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, "k", []byte("new"), 0); err != nil {
		t.Fatalf("Set with zero TTL: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("zero TTL entry is still readable")
	}
}

func TestL1_BacksMemo(t *testing.T) {
	c := mustNewL1(t)
	m := NewMemo(c)

	calls := 0
	p := ProducerFunc(func(_ context.Context) (any, error) {
		calls++
		return []int{42}, nil
	})
	for range 3 {
		v, err := m.Resolve(t.Context(), "commits", time.Minute, p)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if string(v) != `[42]` {
			t.Fatalf("got %s, want [42]", v)
		}
	}
	if calls != 1 {
		t.Fatalf("producer called %d times, want 1", calls)
	}
}
