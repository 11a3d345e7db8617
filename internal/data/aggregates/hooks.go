package aggregates

import (
	"time"

	"github.com/yungbote/benefits-backend/internal/observability"
)

// Hooks receives the outcome of every write. *observability.Metrics
// implements it and is nil-safe.
type Hooks interface {
	ObserveAggregateOperation(op, status string, dur time.Duration)
	IncAggregateConflict(op string)
	IncAggregateRetry(op string)
}

var _ Hooks = (*observability.Metrics)(nil)

type noopHooks struct{}

func (noopHooks) ObserveAggregateOperation(string, string, time.Duration) {}
func (noopHooks) IncAggregateConflict(string)                             {}
func (noopHooks) IncAggregateRetry(string)                                {}
