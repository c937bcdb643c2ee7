package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	config := DefaultRedisConfig()
	config.URL = "redis://localhost:6379/15" // test DB, same convention as the rest of this package
	config.KeyPrefix = "ratelimit_test:"
	store, err := NewRedisStore(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return store
}

// TestRedisStore_AdmitsUpToLimit mirrors the memory store's boundary
// test against the Lua-backed shared store.
func TestRedisStore_AdmitsUpToLimit(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()
	ctx := context.Background()
	defer store.Clear(ctx, "k")

	now := time.Now()
	cutoff := now.Add(-time.Second)

	for i := 0; i < 10; i++ {
		result, err := store.CheckAndAdmit(ctx, "k", cutoff, now, 10, 1)
		if err != nil {
			t.Fatalf("CheckAndAdmit failed: %v", err)
		}
		if !result.Admitted {
			t.Errorf("entry %d should be admitted", i+1)
		}
	}

	result, err := store.CheckAndAdmit(ctx, "k", cutoff, now, 10, 1)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if result.Admitted {
		t.Error("11th entry should be rejected")
	}
	if result.Load != 10 {
		t.Errorf("expected load 10, got %v", result.Load)
	}
}

// TestRedisStore_WeightedEntriesSumRatherThanCount checks that the Lua
// script sums the weight payload instead of counting members.
func TestRedisStore_WeightedEntriesSumRatherThanCount(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()
	ctx := context.Background()
	defer store.Clear(ctx, "k")

	now := time.Now()
	cutoff := now.Add(-time.Second)

	result, err := store.CheckAndAdmit(ctx, "k", cutoff, now, 100, 40)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if !result.Admitted || result.Load != 40 {
		t.Fatalf("expected admitted with load 40, got admitted=%v load=%v", result.Admitted, result.Load)
	}

	result, err = store.CheckAndAdmit(ctx, "k", cutoff, now, 100, 70)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if result.Admitted {
		t.Error("40+70 exceeds 100, should be rejected")
	}
}

// TestRedisStore_PrunesStaleEntries checks that the sliding window
// actually slides across a wall-clock delay.
func TestRedisStore_PrunesStaleEntries(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()
	ctx := context.Background()
	defer store.Clear(ctx, "k")

	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := store.CheckAndAdmit(ctx, "k", now.Add(-time.Second), now, 3, 1); err != nil {
			t.Fatalf("CheckAndAdmit failed: %v", err)
		}
	}

	time.Sleep(1100 * time.Millisecond)
	later := time.Now()
	result, err := store.CheckAndAdmit(ctx, "k", later.Add(-time.Second), later, 3, 1)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if !result.Admitted {
		t.Error("expected admission once the prior window passed")
	}
}

// TestRedisStore_RollbackRemovesExactMember checks Remove against the
// Redis-encoded token.
func TestRedisStore_RollbackRemovesExactMember(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()
	ctx := context.Background()
	defer store.Clear(ctx, "k")

	now := time.Now()
	cutoff := now.Add(-time.Second)

	result, err := store.CheckAndAdmit(ctx, "k", cutoff, now, 5, 1)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if !result.Admitted {
		t.Fatal("expected admission")
	}

	if err := store.Remove(ctx, "k", result.Token); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	load, err := store.Load(ctx, "k", cutoff)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if load != 0 {
		t.Errorf("expected load 0 after rollback, got %v", load)
	}
}

// TestRedisStore_PingAndVariant checks the diagnostic surface.
func TestRedisStore_PingAndVariant(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()

	if store.Variant() != "redis" {
		t.Errorf("expected variant redis, got %s", store.Variant())
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("expected Ping to succeed against a reachable server: %v", err)
	}
}
