package aggregates

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

const (
	defaultTxAttempts   = 3
	defaultTxRetryDelay = 25 * time.Millisecond
)

type BaseDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks

	// TxAttempts bounds how often a write transaction runs when it fails
	// with a retryable database error (deadlock, serialization, busy file).
	TxAttempts   uint
	TxRetryDelay time.Duration
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.TxAttempts == 0 {
		d.TxAttempts = defaultTxAttempts
	}
	if d.TxRetryDelay <= 0 {
		d.TxRetryDelay = defaultTxRetryDelay
	}
	return d
}

// executeWrite runs fn in one transaction and returns a classified
// *domainagg.Error. The whole transaction is re-run on retryable failures;
// every other failure is returned from the first attempt.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	deps = deps.withDefaults()
	start := time.Now()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = deps.TxRetryDelay
	b.MaxInterval = 10 * deps.TxRetryDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := MapError(op, deps.Runner.InTx(ctx, fn))
		if err == nil {
			return struct{}{}, nil
		}
		if domainagg.IsCode(err, domainagg.CodeRetryable) {
			deps.Hooks.IncAggregateRetry(op)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(deps.TxAttempts),
	)
	err = MapError(op, err)

	if domainagg.IsCode(err, domainagg.CodeConflict) || domainagg.IsCode(err, domainagg.CodeStateConflict) {
		deps.Hooks.IncAggregateConflict(op)
	}
	deps.Hooks.ObserveAggregateOperation(op, writeStatus(err), time.Since(start))
	return err
}

func writeStatus(err error) string {
	if err == nil {
		return "success"
	}
	if code := domainagg.CodeOf(err); code != "" {
		return string(code)
	}
	return "failure"
}
