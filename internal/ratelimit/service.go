package ratelimit

import (
	"context"
	"time"
)

// StatusReport is the status() result: a resource's current
// configuration and how much of each active limit is currently
// consumed for one resource key.
type StatusReport struct {
	ResourceKey string
	Usage       map[LimitType]UsageEntry
}

// BackendInfo is the backend_info() result: which Store variant is
// in use and a coarse picture of its health and footprint.
type BackendInfo struct {
	Variant           string
	Reachable         bool
	KeyCount          int
	ApproximateMemory int64
}

// Service is the top-level library surface: configure, acquire,
// status, backend_info. It owns one Store and wires the Limiter,
// Resource Manager, and Coordinator over it - callers only ever touch
// Service.
type Service struct {
	store       Store
	limiter     *SlidingWindowLimiter
	manager     *ResourceManager
	coordinator *Coordinator
}

// NewService builds the full stack over a Store. A nil observer falls
// back to the default zerolog-backed one.
func NewService(store Store, observer Observer) *Service {
	limiter := NewSlidingWindowLimiter(store)
	manager := NewResourceManager(limiter)
	coordinator := NewCoordinator(manager, store.Variant(), observer)
	return &Service{
		store:       store,
		limiter:     limiter,
		manager:     manager,
		coordinator: coordinator,
	}
}

// Configure sets (or updates) the active limit specs for a resource
// name.
func (s *Service) Configure(resource string, opts ResourceOptions) error {
	return s.manager.Configure(resource, opts)
}

// Acquire is the library's admission entry point. resource names the
// Resource Configuration to evaluate; userID, if non-empty, scopes the
// check to one caller within that resource. weight is the
// caller-supplied token weight, applied only to token-kind limits - a
// request-kind limit always counts 1 regardless of weight. A zero
// deadline means "never sleep": a rejection returns immediately as
// rate_limited. A non-zero deadline enables retry-with-sleep, bounded
// by both the deadline and the resource's widest active window.
func (s *Service) Acquire(ctx context.Context, resource, userID string, weight float64, deadline time.Time) (Outcome, error) {
	return s.coordinator.Acquire(ctx, resource, userID, weight, deadline)
}

// Status reports current usage against each active limit type for one
// resource key, without consuming any quota.
func (s *Service) Status(ctx context.Context, resource, userID string) (StatusReport, error) {
	resourceKey := key(resource, userID)
	usage, err := s.manager.Usage(ctx, resource, resourceKey, time.Now())
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{ResourceKey: resourceKey, Usage: usage}, nil
}

// BackendInfo reports which Store variant backs this service and its
// current reachability, key count, and approximate memory footprint.
func (s *Service) BackendInfo(ctx context.Context) (BackendInfo, error) {
	info := BackendInfo{Variant: s.store.Variant()}

	info.Reachable = s.store.Ping(ctx) == nil

	keys, err := s.store.AllKeys(ctx)
	if err != nil {
		return info, err
	}
	info.KeyCount = len(keys)

	mem, err := s.store.ReportMemory(ctx)
	if err != nil {
		return info, err
	}
	info.ApproximateMemory = mem

	return info, nil
}

// Store exposes the underlying Store for callers that need direct
// access (e.g. a health check or the leak demonstration), without
// going through the Coordinator's admission path.
func (s *Service) Store() Store { return s.store }
