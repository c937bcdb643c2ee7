package ratelimit

import (
	"context"
	"testing"
	"time"
)

// TestSlidingWindowLimiter_AdmitsUpToN checks the basic admit/reject
// boundary at exactly N unweighted entries.
func TestSlidingWindowLimiter_AdmitsUpToN(t *testing.T) {
	limiter := NewSlidingWindowLimiter(NewMemoryStore())
	ctx := context.Background()
	now := time.Now()
	spec := LimitSpec{Kind: KindRequest, N: 3, W: time.Second}

	for i := 0; i < 3; i++ {
		result, err := limiter.CheckAndAdmit(ctx, "k", spec, 1, now)
		if err != nil {
			t.Fatalf("CheckAndAdmit failed: %v", err)
		}
		if !result.Admitted {
			t.Errorf("entry %d should be admitted", i+1)
		}
	}

	result, err := limiter.CheckAndAdmit(ctx, "k", spec, 1, now)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if result.Admitted {
		t.Error("4th entry should be rejected")
	}
	if result.Wait <= 0 {
		t.Errorf("expected a positive wait hint, got %v", result.Wait)
	}
}

// TestSlidingWindowLimiter_WaitMatchesOldestPlusWindow checks that the
// reported wait is exactly when the oldest entry will age out.
func TestSlidingWindowLimiter_WaitMatchesOldestPlusWindow(t *testing.T) {
	limiter := NewSlidingWindowLimiter(NewMemoryStore())
	ctx := context.Background()
	base := time.Now()
	spec := LimitSpec{Kind: KindRequest, N: 1, W: time.Second}

	if _, err := limiter.CheckAndAdmit(ctx, "k", spec, 1, base); err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}

	checkAt := base.Add(300 * time.Millisecond)
	result, err := limiter.CheckAndAdmit(ctx, "k", spec, 1, checkAt)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if result.Admitted {
		t.Fatal("expected rejection while the single slot is still occupied")
	}

	want := base.Add(spec.W).Sub(checkAt)
	if result.Wait != want {
		t.Errorf("expected wait %v, got %v", want, result.Wait)
	}
}

// TestSlidingWindowLimiter_WeightGreaterThanLimitAlwaysRejected checks
// that a single call heavier than N is permanently unadmissible and
// never mutates the store.
func TestSlidingWindowLimiter_WeightGreaterThanLimitAlwaysRejected(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewSlidingWindowLimiter(store)
	ctx := context.Background()
	now := time.Now()
	spec := LimitSpec{Kind: KindToken, N: 10, W: time.Second}

	result, err := limiter.CheckAndAdmit(ctx, "k", spec, 50, now)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if result.Admitted {
		t.Error("weight 50 against limit 10 must never be admitted")
	}

	load, err := store.Load(ctx, "k", now.Add(-spec.W))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if load != 0 {
		t.Errorf("short-circuited rejection must not touch the store, got load %v", load)
	}
}

// TestSlidingWindowLimiter_Rollback checks that Rollback removes an
// admitted entry so it no longer counts toward load.
func TestSlidingWindowLimiter_Rollback(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewSlidingWindowLimiter(store)
	ctx := context.Background()
	now := time.Now()
	spec := LimitSpec{Kind: KindRequest, N: 5, W: time.Second}

	result, err := limiter.CheckAndAdmit(ctx, "k", spec, 1, now)
	if err != nil {
		t.Fatalf("CheckAndAdmit failed: %v", err)
	}
	if !result.Admitted {
		t.Fatal("expected admission")
	}

	limiter.Rollback(ctx, "k", result)

	load, err := store.Load(ctx, "k", now.Add(-spec.W))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if load != 0 {
		t.Errorf("expected load 0 after rollback, got %v", load)
	}
}

// TestSlidingWindowLimiter_RollbackOnRejectionIsNoop checks that
// Rollback is safe to call on a rejected Result (no token to remove).
func TestSlidingWindowLimiter_RollbackOnRejectionIsNoop(t *testing.T) {
	limiter := NewSlidingWindowLimiter(NewMemoryStore())
	limiter.Rollback(context.Background(), "k", Result{Admitted: false})
}
