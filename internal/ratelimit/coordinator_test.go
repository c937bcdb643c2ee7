package ratelimit

import (
	"context"
	"testing"
	"time"
)

// TestCoordinator_ImmediateAdmit checks the common case: room
// available, zero deadline, admitted on the first try.
func TestCoordinator_ImmediateAdmit(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	if err := svc.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(5)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	outcome, err := svc.Acquire(context.Background(), "api", "user1", 1, time.Time{})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if outcome.Status != StatusAdmitted {
		t.Errorf("expected admitted, got %s", outcome.Status)
	}
}

// TestCoordinator_NoDeadlineReturnsRateLimitedImmediately checks the
// "immediate return" mode: a zero deadline means a rejection comes
// back as rate_limited without ever sleeping.
func TestCoordinator_NoDeadlineReturnsRateLimitedImmediately(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	if err := svc.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(1)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.Acquire(ctx, "api", "user1", 1, time.Time{}); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	outcome, err := svc.Acquire(ctx, "api", "user1", 1, time.Time{})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if outcome.Status != StatusRateLimited {
		t.Errorf("expected rate_limited, got %s", outcome.Status)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("expected immediate return, took %v", elapsed)
	}
}

// TestCoordinator_RetriesUntilAdmitted checks that a future deadline
// enables the coordinator to sleep past a short window and succeed.
func TestCoordinator_RetriesUntilAdmitted(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	if err := rm.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(1)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	coordinator := NewCoordinator(rm, "memory", nil)
	ctx := context.Background()

	first, err := coordinator.Acquire(ctx, "api", "user1", 1, time.Now().Add(2*time.Second))
	if err != nil || first.Status != StatusAdmitted {
		t.Fatalf("first acquire should admit immediately, got %+v err=%v", first, err)
	}

	second, err := coordinator.Acquire(ctx, "api", "user1", 1, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if second.Status != StatusAdmitted {
		t.Errorf("expected admission after sleeping past the 1s window, got %s", second.Status)
	}
}

// TestCoordinator_ExhaustedWhenRetryBudgetRunsOut checks that a
// deadline shorter than the wait returns exhausted rather than
// blocking past it.
func TestCoordinator_ExhaustedWhenRetryBudgetRunsOut(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	if err := rm.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(1)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	coordinator := NewCoordinator(rm, "memory", nil)
	ctx := context.Background()

	if _, err := coordinator.Acquire(ctx, "api", "user1", 1, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	outcome, err := coordinator.Acquire(ctx, "api", "user1", 1, time.Now().Add(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if outcome.Status != StatusExhausted {
		t.Errorf("expected exhausted, got %s", outcome.Status)
	}
}

// TestCoordinator_CancellationDuringSleep checks that cancelling the
// context while the coordinator is sleeping returns cancelled
// promptly rather than waiting out the full retry budget.
func TestCoordinator_CancellationDuringSleep(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	if err := rm.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(1)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	coordinator := NewCoordinator(rm, "memory", nil)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := coordinator.Acquire(ctx, "api", "user1", 1, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome, err := coordinator.Acquire(ctx, "api", "user1", 1, time.Now().Add(5*time.Second))
	elapsed := time.Since(start)
	if err == nil {
		t.Error("expected a context error")
	}
	if outcome.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", outcome.Status)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("expected prompt cancellation, took %v", elapsed)
	}
}

// TestCoordinator_InvalidWeightRejected checks the hot-path guard on
// non-positive weight.
func TestCoordinator_InvalidWeightRejected(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	coordinator := NewCoordinator(rm, "memory", nil)

	_, err := coordinator.Acquire(context.Background(), "api", "user1", 0, time.Time{})
	if err != ErrInvalidWeight {
		t.Errorf("expected ErrInvalidWeight, got %v", err)
	}
}

// TestCoordinator_NamespacesByUser checks that the same resource with
// two different user IDs draws from independent quotas.
func TestCoordinator_NamespacesByUser(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	if err := svc.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(1)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	ctx := context.Background()

	if o, err := svc.Acquire(ctx, "api", "alice", 1, time.Time{}); err != nil || o.Status != StatusAdmitted {
		t.Fatalf("alice's first request should admit, got %+v err=%v", o, err)
	}
	if o, err := svc.Acquire(ctx, "api", "bob", 1, time.Time{}); err != nil || o.Status != StatusAdmitted {
		t.Fatalf("bob's first request should admit independently of alice's, got %+v err=%v", o, err)
	}
}

// TestCoordinator_ObserverReceivesTerminalOutcome checks that a custom
// observer is invoked with the terminal Outcome.
func TestCoordinator_ObserverReceivesTerminalOutcome(t *testing.T) {
	var seen []Outcome
	observer := ObserverFunc(func(o Outcome) { seen = append(seen, o) })

	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	if err := rm.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(1)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	coordinator := NewCoordinator(rm, "memory", observer)

	if _, err := coordinator.Acquire(context.Background(), "api", "user1", 1, time.Time{}); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if len(seen) != 1 || seen[0].Status != StatusAdmitted {
		t.Errorf("expected exactly one admitted observation, got %+v", seen)
	}
}
