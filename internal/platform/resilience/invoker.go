package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/yungbote/benefits-backend/internal/platform/apierr"
)

const (
	ReasonCircuitOpen      = "circuit_open"
	ReasonTimeout          = "timeout"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonRejected         = "rejected"
)

// ErrNoFallback is returned when the dependency failed and the caller gave
// no fallback to degrade to.
var ErrNoFallback = errors.New("dependency unavailable and no fallback registered")

// Outcome is the value of a guarded call. Degraded is set when Value came
// from the fallback, with Reason naming the failure mode.
type Outcome[Out any] struct {
	Value    Out
	Degraded bool
	Reason   string
	Err      error
}

// Invoker runs calls through the registry's breakers with per-attempt
// timeouts and retries.
type Invoker struct {
	registry *Registry
}

func NewInvoker(registry *Registry) *Invoker {
	return &Invoker{registry: registry}
}

func (i *Invoker) Registry() *Registry { return i.registry }

// Call invokes primary for dependency. Open circuits, timeouts, exhausted
// retries and non-retryable failures all resolve to fallback(in); the only
// error is ErrNoFallback when fallback is nil.
func Call[In, Out any](
	ctx context.Context,
	inv *Invoker,
	dependency string,
	in In,
	primary func(context.Context, In) (Out, error),
	fallback func(In) Out,
) (Outcome[Out], error) {
	e := inv.registry.entry(dependency)
	p := e.policy
	start := time.Now()

	attempt := func() (any, error) {
		v, err := e.cb.Execute(func() (any, error) {
			actx, cancel := context.WithTimeout(ctx, p.Timeout)
			defer cancel()
			out, err := primary(actx, in)
			if err == nil && actx.Err() != nil {
				err = actx.Err()
			}
			return out, err
		})
		if err == nil {
			return v, nil
		}
		if isBreakerRejection(err) || !apierr.Transient(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			inv.registry.log.Debug("retrying dependency call", "dependency", dependency, "error", err, "next", next)
		}),
	)
	if err == nil {
		inv.registry.metrics.ObserveDependencyCall(dependency, "success", time.Since(start))
		out, _ := v.(Out)
		return Outcome[Out]{Value: out}, nil
	}

	reason := classify(err)
	inv.registry.metrics.ObserveDependencyCall(dependency, reason, time.Since(start))
	inv.registry.log.Warn("dependency call degraded", "dependency", dependency, "reason", reason, "error", err)
	if fallback == nil {
		return Outcome[Out]{Degraded: true, Reason: reason, Err: err}, fmt.Errorf("%s: %w", dependency, ErrNoFallback)
	}
	return Outcome[Out]{Value: fallback(in), Degraded: true, Reason: reason, Err: err}, nil
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func classify(err error) string {
	switch {
	case isBreakerRejection(err):
		return ReasonCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case !apierr.Transient(err):
		return ReasonRejected
	default:
		return ReasonRetriesExhausted
	}
}
