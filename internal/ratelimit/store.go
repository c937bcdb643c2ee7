// Package ratelimit implements a sliding-window counting engine and
// multi-limit resource manager: a Timestamp Store (process-local or
// shared-store backed), a Sliding-Window Limiter built on top of it,
// a Resource Manager that composes several limiters per resource, and
// an Admit/Sleep Coordinator that is the library-level entry point
// callers use.
package ratelimit

import (
	"context"
	"time"
)

// AdmitResult is the outcome of the store's atomic
// prune+count+conditional-add operation.
type AdmitResult struct {
	Admitted bool
	Load     float64
	Oldest   time.Time
	HasOldest bool
	// Token identifies the entry that was added, if Admitted, so it
	// can be removed again by Remove (used for rollback). Empty when
	// not admitted.
	Token string
}

// Store is the Timestamp Store contract (component A): holds, per
// resource key, the ordered multiset of (timestamp, weight) entries
// and exposes the trim/count/add/peek-oldest operations the Limiter
// needs. Both the process-local and shared-store variants implement
// it; the Limiter is written entirely against this interface so it
// does not know which backend it runs on.
//
// All operations are observably atomic per key; concurrent calls on
// different keys need not serialize against each other.
type Store interface {
	// CheckAndAdmit performs an atomic prune+count+conditional-add:
	// prune entries older than cutoff, sum the remaining weights, and
	// if the sum plus weight does not exceed limit, add (now, weight)
	// to the series. Returns the load after the operation (including
	// the new entry if admitted) and the oldest surviving timestamp.
	CheckAndAdmit(ctx context.Context, key string, cutoff, now time.Time, limit, weight float64) (AdmitResult, error)

	// Remove deletes one previously-added entry identified by its
	// token (as returned in AdmitResult.Token), used by the Resource
	// Manager's rollback. Removing an entry that no longer exists (it
	// may have aged out already) is not an error.
	Remove(ctx context.Context, key string, token string) error

	// Load returns the sum of weights of entries with timestamp
	// >= cutoff, without adding anything. The process-local variant
	// drops entries older than cutoff as it counts; the shared-store
	// variant leaves the set unchanged.
	Load(ctx context.Context, key string, cutoff time.Time) (float64, error)

	// Oldest returns the smallest timestamp currently in the series
	// (zero time, false if the series is empty or absent).
	Oldest(ctx context.Context, key string) (time.Time, bool, error)

	// Clear removes all entries for a key.
	Clear(ctx context.Context, key string) error

	// AllKeys returns every key the store currently holds state for.
	// Diagnostic only - not used on the hot path.
	AllKeys(ctx context.Context) ([]string, error)

	// ReportMemory returns an approximate measure of the store's
	// memory footprint (bytes for the process-local variant, the sum of
	// Redis MEMORY USAGE over its keys for the shared-store variant).
	ReportMemory(ctx context.Context) (int64, error)

	// Variant names the backend ("memory" or "redis") for BackendInfo.
	Variant() string

	// Ping reports whether the backend is reachable, for health
	// probes and BackendInfo's Reachable field.
	Ping(ctx context.Context) error
}
