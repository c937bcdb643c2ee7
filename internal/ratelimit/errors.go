package ratelimit

import "errors"

// Sentinel errors for the core's error kinds (see the error handling
// design: backend unreachable, backend inconsistent, invalid argument).
//
// Exhaustion and cancellation are not errors - they are Outcome
// statuses, since a caller can get them as a normal result of calling
// Acquire.
var (
	// ErrBackendUnreachable means the store connection failed or timed out.
	ErrBackendUnreachable = errors.New("ratelimit: backend unreachable")

	// ErrBackendInconsistent means a script returned malformed data or a
	// store precondition was violated.
	ErrBackendInconsistent = errors.New("ratelimit: backend returned inconsistent data")

	// ErrInvalidLimitSpec means a LimitSpec's N or W was non-positive.
	// NewRedisStore also wraps it when the Redis URL cannot be parsed.
	ErrInvalidLimitSpec = errors.New("ratelimit: limit spec must have positive N and W")

	// ErrInvalidWeight means a caller-supplied weight was non-positive.
	ErrInvalidWeight = errors.New("ratelimit: weight must be positive")

	// ErrUnknownLimitType means a limit type name outside the five
	// recognized suffixes was requested.
	ErrUnknownLimitType = errors.New("ratelimit: unknown limit type")

	// ErrUnknownResource means Status/BackendInfo was asked about a
	// resource that was never configured.
	ErrUnknownResource = errors.New("ratelimit: unknown resource")
)
