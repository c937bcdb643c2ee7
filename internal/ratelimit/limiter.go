package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of one Sliding-Window Limiter check:
// admitted or not, the minimum wait before a slot frees if not, and
// the series load immediately after the check.
type Result struct {
	Admitted  bool
	Wait      time.Duration
	LoadAfter float64

	// token identifies the entry this check added to the series, so
	// the Resource Manager can roll it back. Empty when not admitted.
	token string
}

// SlidingWindowLimiter is component B: given one (key, LimitSpec,
// weight), it decides admit-now vs. wait-Δt. It holds no state of its
// own - every check goes through a Store.
type SlidingWindowLimiter struct {
	store Store
}

// NewSlidingWindowLimiter builds a limiter over the given Store.
func NewSlidingWindowLimiter(store Store) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{store: store}
}

// CheckAndAdmit implements the five-step algorithm:
//  1. cutoff = now - W
//  2. prune the series by cutoff (delegated into the store's atomic op)
//  3. L = load(key)
//  4. if L + weight <= N: admit and append (now, weight)
//  5. else: wait = max(0, oldest + W - now)
//
// A weight greater than N can never be admitted regardless of the
// series' state; the limiter short-circuits without touching the
// store, returning without recording anything.
func (l *SlidingWindowLimiter) CheckAndAdmit(ctx context.Context, key string, spec LimitSpec, weight float64, now time.Time) (Result, error) {
	if weight > spec.N {
		return Result{Admitted: false, Wait: spec.W}, nil
	}

	cutoff := now.Add(-spec.W)
	admitResult, err := l.store.CheckAndAdmit(ctx, key, cutoff, now, spec.N, weight)
	if err != nil {
		return Result{}, err
	}

	if admitResult.Admitted {
		return Result{
			Admitted:  true,
			Wait:      0,
			LoadAfter: admitResult.Load,
			token:     admitResult.Token,
		}, nil
	}

	var wait time.Duration
	if admitResult.HasOldest {
		wait = admitResult.Oldest.Add(spec.W).Sub(now)
		if wait < 0 {
			// The oldest entry aged out between our prune and our peek
			// (another admitter raced us); says to treat this as
			// "retry immediately".
			wait = 0
		}
	}

	log.Debug().
		Str("component", "ratelimit_limiter").
		Str("key", key).
		Float64("load", admitResult.Load).
		Float64("n", spec.N).
		Dur("window", spec.W).
		Dur("wait", wait).
		Msg("limiter rejected admission")

	return Result{Admitted: false, Wait: wait, LoadAfter: admitResult.Load}, nil
}

// Rollback removes the entry a prior admitted check added, used when
// a later limiter in the same Resource Manager call rejects the
// request. Best-effort: a failure here is logged but not propagated,
// treating a failed rollback as safe but slightly conservative rather
// than fatal - the entry just ages out on its own.
func (l *SlidingWindowLimiter) Rollback(ctx context.Context, key string, r Result) {
	if !r.Admitted || r.token == "" {
		return
	}
	if err := l.store.Remove(ctx, key, r.token); err != nil {
		log.Warn().
			Err(err).
			Str("component", "ratelimit_limiter").
			Str("key", key).
			Msg("rollback failed; entry remains and will count toward future load")
	}
}
