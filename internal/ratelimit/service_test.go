package ratelimit

import (
	"context"
	"testing"
	"time"
)

// TestService_StatusReportsUsageWithoutConsumingQuota checks that
// Status is read-only.
func TestService_StatusReportsUsageWithoutConsumingQuota(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()
	if err := svc.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(5)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if _, err := svc.Acquire(ctx, "api", "user1", 1, time.Time{}); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		report, err := svc.Status(ctx, "api", "user1")
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if report.Usage[RequestsPerSecond].Current != 1 {
			t.Errorf("Status call %d should not change usage, got %v", i, report.Usage[RequestsPerSecond].Current)
		}
	}
}

// TestService_BackendInfoReflectsMemoryStore checks the diagnostic
// surface for the process-local backend.
func TestService_BackendInfoReflectsMemoryStore(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()
	if err := svc.Configure("api", ResourceOptions{RequestsPerSecond: floatPtr(5)}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := svc.Acquire(ctx, "api", "user1", 1, time.Time{}); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	info, err := svc.BackendInfo(ctx)
	if err != nil {
		t.Fatalf("BackendInfo failed: %v", err)
	}
	if info.Variant != "memory" {
		t.Errorf("expected variant memory, got %s", info.Variant)
	}
	if !info.Reachable {
		t.Error("expected the process-local store to always be reachable")
	}
	if info.KeyCount != 1 {
		t.Errorf("expected 1 key (api_user1:rps), got %d", info.KeyCount)
	}
}
