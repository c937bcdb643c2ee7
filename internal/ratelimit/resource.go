package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ResourceOptions is the caller-facing shape of Configure: each
// field is the N of a LimitSpec for that limit type. A nil field
// leaves the limit type untouched; a non-positive value deactivates
// it without erasing any series state already accumulated for it.
type ResourceOptions struct {
	RequestsPerSecond *float64
	RequestsPerMinute *float64
	RequestsPerHour   *float64
	TokensPerSecond   *float64
	TokensPerMinute   *float64
}

func (o ResourceOptions) field(lt LimitType) *float64 {
	switch lt {
	case RequestsPerSecond:
		return o.RequestsPerSecond
	case RequestsPerMinute:
		return o.RequestsPerMinute
	case RequestsPerHour:
		return o.RequestsPerHour
	case TokensPerSecond:
		return o.TokensPerSecond
	case TokensPerMinute:
		return o.TokensPerMinute
	default:
		return nil
	}
}

// ResourceConfig is the Resource Configuration entity: a mapping from
// limit type name to LimitSpec for one resource name.
type ResourceConfig struct {
	Limits map[LimitType]LimitSpec
}

// Active returns the limit types currently active, in the
// deterministic evaluation order.
func (rc ResourceConfig) Active() []LimitType {
	var active []LimitType
	for _, lt := range evaluationOrder {
		if spec, ok := rc.Limits[lt]; ok && spec.Active() {
			active = append(active, lt)
		}
	}
	return active
}

// ManagerResult is the outcome of evaluating every active limiter for
// one resource key: admitted iff every active limiter admitted;
// otherwise the binding limit is whichever rejecting limiter required
// the largest wait.
type ManagerResult struct {
	Admitted     bool
	BindingLimit LimitType
	N            float64
	W            time.Duration
	Wait         time.Duration
	Load         float64
}

// ResourceManager is component C: binds a logical resource to a set
// of active Limit Specs and evaluates them jointly, in the order
// rps -> rpm -> rph -> tps -> tpm, rolling back any limiter that
// already admitted this call if a later limiter rejects it.
type ResourceManager struct {
	mu        sync.RWMutex
	resources map[string]ResourceConfig
	limiter   *SlidingWindowLimiter
}

// NewResourceManager builds a manager over the given limiter.
func NewResourceManager(limiter *SlidingWindowLimiter) *ResourceManager {
	return &ResourceManager{
		resources: make(map[string]ResourceConfig),
		limiter:   limiter,
	}
}

// Configure sets (or updates) the limit specs for a resource name.
// Idempotent: calling it again with the same options is a no-op
// beyond replacing the stored config. Reconfiguration is not atomic
// with in-flight checks; new values apply on the next check.
func (rm *ResourceManager) Configure(resource string, opts ResourceOptions) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	cfg, ok := rm.resources[resource]
	if !ok {
		cfg = ResourceConfig{Limits: make(map[LimitType]LimitSpec)}
	} else {
		// Copy so concurrent readers of the old config map are unaffected.
		newLimits := make(map[LimitType]LimitSpec, len(cfg.Limits))
		for k, v := range cfg.Limits {
			newLimits[k] = v
		}
		cfg.Limits = newLimits
	}

	for _, lt := range evaluationOrder {
		n := opts.field(lt)
		if n == nil {
			continue
		}
		kind, _ := lt.Kind()
		window, _ := lt.Window()
		cfg.Limits[lt] = LimitSpec{Kind: kind, N: *n, W: window}
	}

	rm.resources[resource] = cfg

	log.Info().
		Str("component", "ratelimit_resource").
		Str("resource", resource).
		Msg("resource configuration updated")

	return nil
}

// Config returns the current ResourceConfig for a resource, and
// whether one has ever been configured.
func (rm *ResourceManager) Config(resource string) (ResourceConfig, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	cfg, ok := rm.resources[resource]
	return cfg, ok
}

// Check evaluates every active limiter for resourceKey in order,
// admitting iff all admit, and rolling back any limiter that already
// admitted earlier in this same call when a later one rejects.
func (rm *ResourceManager) Check(ctx context.Context, resource, resourceKey string, requestWeight, tokenWeight float64, now time.Time) (ManagerResult, error) {
	cfg, ok := rm.Config(resource)
	if !ok {
		// An unconfigured resource has no active limits: admit
		// unconditionally, matching "Setting any limit ... to 0 or
		// negative deactivates it" generalized to "never configured".
		return ManagerResult{Admitted: true}, nil
	}

	active := cfg.Active()

	type admitted struct {
		limitType LimitType
		key       string
		result    Result
	}
	var soFar []admitted

	rollbackAll := func() {
		for _, a := range soFar {
			rm.limiter.Rollback(ctx, a.key, a.result)
		}
	}

	var rejected *ManagerResult

	for _, lt := range active {
		spec := cfg.Limits[lt]
		suffix, _ := lt.Suffix()
		seriesKey := resourceKey + ":" + suffix

		weight := requestWeight
		if kind, _ := lt.Kind(); kind == KindToken {
			weight = tokenWeight
		}

		result, err := rm.limiter.CheckAndAdmit(ctx, seriesKey, spec, weight, now)
		if err != nil {
			rollbackAll()
			return ManagerResult{}, err
		}

		if !result.Admitted {
			if rejected == nil || result.Wait > rejected.Wait {
				rejected = &ManagerResult{
					Admitted:     false,
					BindingLimit: lt,
					N:            spec.N,
					W:            spec.W,
					Wait:         result.Wait,
					Load:         result.LoadAfter,
				}
			}
			continue
		}

		soFar = append(soFar, admitted{limitType: lt, key: seriesKey, result: result})
	}

	if rejected != nil {
		rollbackAll()
		log.Info().
			Str("component", "ratelimit_resource").
			Str("resource", resource).
			Str("binding_limit", string(rejected.BindingLimit)).
			Dur("wait", rejected.Wait).
			Msg("resource check rejected")
		return *rejected, nil
	}

	return ManagerResult{Admitted: true}, nil
}

// Usage reports the current load of every active limit type for a
// resource key, for Status.
func (rm *ResourceManager) Usage(ctx context.Context, resource, resourceKey string, now time.Time) (map[LimitType]UsageEntry, error) {
	cfg, ok := rm.Config(resource)
	if !ok {
		return nil, ErrUnknownResource
	}

	usage := make(map[LimitType]UsageEntry)
	for _, lt := range cfg.Active() {
		spec := cfg.Limits[lt]
		suffix, _ := lt.Suffix()
		seriesKey := resourceKey + ":" + suffix

		load, err := rm.limiter.store.Load(ctx, seriesKey, now.Add(-spec.W))
		if err != nil {
			return nil, err
		}
		usage[lt] = UsageEntry{Current: load, Limit: spec.N}
	}
	return usage, nil
}

// UsageEntry is one limit type's current reading for Status.
type UsageEntry struct {
	Current float64
	Limit   float64
}

// MaxWindow returns the widest window among a resource's active
// limits, used by the Coordinator to bound its total retry budget.
// An unconfigured resource has no active limits and so no bound is
// needed - it always admits immediately.
func (rm *ResourceManager) MaxWindow(resource string) time.Duration {
	cfg, ok := rm.Config(resource)
	if !ok {
		return 0
	}
	var maxW time.Duration
	for _, lt := range cfg.Active() {
		if w := cfg.Limits[lt].W; w > maxW {
			maxW = w
		}
	}
	return maxW
}
