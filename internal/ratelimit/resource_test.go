package ratelimit

import (
	"context"
	"testing"
	"time"
)

func floatPtr(f float64) *float64 { return &f }

// TestResourceManager_UnconfiguredResourceAlwaysAdmits checks that a
// resource with no Configure call behaves as having no active limits.
func TestResourceManager_UnconfiguredResourceAlwaysAdmits(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	ctx := context.Background()

	result, err := rm.Check(ctx, "unknown", "key", 1, 1, time.Now())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Admitted {
		t.Error("expected an unconfigured resource to always admit")
	}
}

// TestResourceManager_AllLimitsMustAdmit checks that a request is
// rejected if ANY active limiter rejects it, even if others have room.
func TestResourceManager_AllLimitsMustAdmit(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	ctx := context.Background()
	now := time.Now()

	if err := rm.Configure("api", ResourceOptions{
		RequestsPerSecond: floatPtr(1),
		RequestsPerMinute: floatPtr(100),
	}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	first, err := rm.Check(ctx, "api", "user1", 1, 1, now)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !first.Admitted {
		t.Fatal("first request should be admitted by both limits")
	}

	second, err := rm.Check(ctx, "api", "user1", 1, 1, now)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if second.Admitted {
		t.Error("second request should be rejected by the 1-rps limit even though rpm has room")
	}
	if second.BindingLimit != RequestsPerSecond {
		t.Errorf("expected binding limit %s, got %s", RequestsPerSecond, second.BindingLimit)
	}
}

// TestResourceManager_RollsBackEarlierAdmissionsOnLaterRejection
// checks property 3: if rps admits but rpm then rejects, the rps
// series must not retain that call's entry; only the first call's
// entry remains.
func TestResourceManager_RollsBackEarlierAdmissionsOnLaterRejection(t *testing.T) {
	store := NewMemoryStore()
	rm := NewResourceManager(NewSlidingWindowLimiter(store))
	ctx := context.Background()
	now := time.Now()

	if err := rm.Configure("api", ResourceOptions{
		RequestsPerSecond: floatPtr(100),
		RequestsPerMinute: floatPtr(1),
	}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	first, err := rm.Check(ctx, "api", "user1", 1, 1, now)
	if err != nil || !first.Admitted {
		t.Fatalf("first request should be admitted, got %+v err=%v", first, err)
	}

	second, err := rm.Check(ctx, "api", "user1", 1, 1, now)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if second.Admitted {
		t.Fatal("second request should be rejected by the 1-rpm limit")
	}

	rpsLoad, err := store.Load(ctx, "user1:rps", now.Add(-time.Second))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rpsLoad != 1 {
		t.Errorf("expected only the first call's rps entry after rolling back the second, load = %v", rpsLoad)
	}
}

// TestResourceManager_BindingLimitIsMaxWait checks that when multiple
// limiters reject the same call, the reported binding limit is the one
// with the largest wait.
func TestResourceManager_BindingLimitIsMaxWait(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	ctx := context.Background()
	now := time.Now()

	if err := rm.Configure("api", ResourceOptions{
		RequestsPerSecond: floatPtr(1),
		RequestsPerHour:   floatPtr(1),
	}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if _, err := rm.Check(ctx, "api", "user1", 1, 1, now); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	result, err := rm.Check(ctx, "api", "user1", 1, 1, now)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Admitted {
		t.Fatal("expected rejection: both rps and rph are now at their limit of 1")
	}
	if result.BindingLimit != RequestsPerHour {
		t.Errorf("expected the hour limit (larger wait) to be binding, got %s", result.BindingLimit)
	}
}

// TestResourceManager_RequestVsTokenWeight checks the decision:
// request-kind limits always count 1 regardless of the caller's token
// weight, and token-kind limits count that weight.
func TestResourceManager_RequestVsTokenWeight(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	ctx := context.Background()
	now := time.Now()

	if err := rm.Configure("api", ResourceOptions{
		RequestsPerSecond: floatPtr(2),
		TokensPerSecond:   floatPtr(100),
	}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	result, err := rm.Check(ctx, "api", "user1", 1, 90, now)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Admitted {
		t.Fatal("expected admission: 1 request against limit 2, 90 tokens against limit 100")
	}

	usage, err := rm.Usage(ctx, "api", "user1", now)
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if usage[RequestsPerSecond].Current != 1 {
		t.Errorf("expected request usage 1 (not 90), got %v", usage[RequestsPerSecond].Current)
	}
	if usage[TokensPerSecond].Current != 90 {
		t.Errorf("expected token usage 90, got %v", usage[TokensPerSecond].Current)
	}
}

// TestResourceManager_Reconfigure checks that Configure is additive:
// setting one limit type leaves previously configured ones intact.
func TestResourceManager_Reconfigure(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))

	if err := rm.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(5)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := rm.Configure("api", ResourceOptions{RequestsPerMinute: floatPtr(50)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	cfg, ok := rm.Config("api")
	if !ok {
		t.Fatal("expected resource to be configured")
	}
	if len(cfg.Active()) != 2 {
		t.Errorf("expected both limits active after incremental configure, got %v", cfg.Active())
	}
}

// TestResourceManager_Usage_UnknownResource checks the error path.
func TestResourceManager_Usage_UnknownResource(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	_, err := rm.Usage(context.Background(), "unknown", "key", time.Now())
	if err != ErrUnknownResource {
		t.Errorf("expected ErrUnknownResource, got %v", err)
	}
}

// TestResourceManager_MaxWindow checks the Coordinator's retry-budget helper.
func TestResourceManager_MaxWindow(t *testing.T) {
	rm := NewResourceManager(NewSlidingWindowLimiter(NewMemoryStore()))
	if w := rm.MaxWindow("unknown"); w != 0 {
		t.Errorf("expected 0 for unconfigured resource, got %v", w)
	}

	if err := rm.Configure("api", ResourceOptions{
		RequestsPerSecond: floatPtr(5),
		RequestsPerHour:   floatPtr(500),
	}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if w := rm.MaxWindow("api"); w != time.Hour {
		t.Errorf("expected max window 1h, got %v", w)
	}
}
