package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the discriminator of an Outcome record.
type Status string

const (
	StatusAdmitted     Status = "admitted"
	StatusRateLimited  Status = "rate_limited"
	StatusExhausted    Status = "exhausted"
	StatusBackendError Status = "backend_error"
	StatusCancelled    Status = "cancelled"
)

// Outcome is the stable shape returned by Acquire and used for
// logging and any HTTP adapter.
type Outcome struct {
	Status      Status
	ResourceKey string
	LimitType   LimitType
	N           float64
	W           time.Duration
	Wait        time.Duration
	Load        float64
	Backend     string
	Err         error
}

// Observer receives one Outcome per terminal result and one per
// intermediate sleep. The default observer logs through
// zerolog; callers may supply their own (e.g. to publish to a message
// queue) via NewCoordinator or NewService.
type Observer interface {
	Observe(o Outcome)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(Outcome)

// Observe implements Observer.
func (f ObserverFunc) Observe(o Outcome) { f(o) }

var zerologObserver Observer = ObserverFunc(func(o Outcome) {
	ev := log.Info()
	if o.Status == StatusBackendError {
		ev = log.Error().Err(o.Err)
	}
	ev.
		Str("component", "ratelimit_coordinator").
		Str("status", string(o.Status)).
		Str("resource_key", o.ResourceKey).
		Str("limit_type", string(o.LimitType)).
		Float64("n", o.N).
		Dur("w", o.W).
		Dur("wait", o.Wait).
		Float64("load", o.Load).
		Str("backend", o.Backend).
		Msg("rate limiter outcome")
})

// Coordinator is component D: the top-level entry point callers use.
// It namespaces the resource key, consults the Resource Manager,
// optionally sleeps and retries, and returns a terminal Outcome.
type Coordinator struct {
	manager  *ResourceManager
	backend  string
	observer Observer
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewCoordinator builds a coordinator over the given manager. backend
// names the store variant ("memory" or "redis") carried on every
// Outcome. A nil observer falls back to structured zerolog logging.
func NewCoordinator(manager *ResourceManager, backend string, observer Observer) *Coordinator {
	if observer == nil {
		observer = zerologObserver
	}
	return &Coordinator{
		manager:  manager,
		backend:  backend,
		observer: observer,
		now:      time.Now,
		sleep:    sleepOrCancel,
	}
}

// sleepOrCancel blocks for d or until ctx is done, whichever comes
// first, honoring cancellation at the sleep boundary.
func sleepOrCancel(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// key builds the namespaced resource key: resource alone, or
// resource_<user_id> when a user_id is supplied.
func key(resource, userID string) string {
	if userID == "" {
		return resource
	}
	return resource + "_" + userID
}

// Acquire is the library surface's acquire. deadline, if non-zero,
// enables retry-with-sleep: the coordinator sleeps the limiter's
// reported wait and retries until admitted, until the retry budget
// bounded by the resource's widest active window is exhausted, or
// until deadline/ctx cancellation, whichever is first. A zero deadline
// means "return immediately" ("Retry-with-sleep vs. immediate
// return"): a rejection becomes rate_limited without sleeping.
func (c *Coordinator) Acquire(ctx context.Context, resource, userID string, weight float64, deadline time.Time) (Outcome, error) {
	if weight <= 0 {
		return Outcome{}, ErrInvalidWeight
	}

	resourceKey := key(resource, userID)
	start := c.now()

	maxWindow := c.manager.MaxWindow(resource)
	retryUntil := start.Add(maxWindow)
	if !deadline.IsZero() && deadline.Before(retryUntil) {
		retryUntil = deadline
	}
	sleepAllowed := !deadline.IsZero()

	for {
		select {
		case <-ctx.Done():
			return c.terminal(Outcome{
				Status:      StatusCancelled,
				ResourceKey: resourceKey,
				Wait:        c.now().Sub(start),
				Backend:     c.backend,
			}), ctx.Err()
		default:
		}

		result, err := c.manager.Check(ctx, resource, resourceKey, 1, weight, c.now())
		if err != nil {
			return c.terminal(Outcome{
				Status:      StatusBackendError,
				ResourceKey: resourceKey,
				Backend:     c.backend,
				Err:         err,
			}), nil
		}

		if result.Admitted {
			return c.terminal(Outcome{
				Status:      StatusAdmitted,
				ResourceKey: resourceKey,
				Backend:     c.backend,
			}), nil
		}

		if !sleepAllowed {
			return c.terminal(Outcome{
				Status:      StatusRateLimited,
				ResourceKey: resourceKey,
				LimitType:   result.BindingLimit,
				N:           result.N,
				W:           result.W,
				Wait:        result.Wait,
				Load:        result.Load,
				Backend:     c.backend,
			}), nil
		}

		if c.now().Add(result.Wait).After(retryUntil) {
			return c.terminal(Outcome{
				Status:      StatusExhausted,
				ResourceKey: resourceKey,
				LimitType:   result.BindingLimit,
				N:           result.N,
				W:           result.W,
				Wait:        c.now().Sub(start),
				Load:        result.Load,
				Backend:     c.backend,
			}), nil
		}

		c.observer.Observe(Outcome{
			Status:      StatusRateLimited,
			ResourceKey: resourceKey,
			LimitType:   result.BindingLimit,
			N:           result.N,
			W:           result.W,
			Wait:        result.Wait,
			Load:        result.Load,
			Backend:     c.backend,
		})

		if err := c.sleep(ctx, result.Wait); err != nil {
			return c.terminal(Outcome{
				Status:      StatusCancelled,
				ResourceKey: resourceKey,
				Wait:        c.now().Sub(start),
				Backend:     c.backend,
			}), err
		}
	}
}

// terminal emits one observation for a terminal outcome, then returns it unchanged.
func (c *Coordinator) terminal(o Outcome) Outcome {
	c.observer.Observe(o)
	return o
}
