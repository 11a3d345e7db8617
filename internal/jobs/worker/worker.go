package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/messaging/broker"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type RelayConfig struct {
	Interval     time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	Lease        time.Duration `env:"OUTBOX_LEASE" envDefault:"30s"`
	RetryInitial time.Duration `env:"OUTBOX_RETRY_INITIAL" envDefault:"1s"`
	RetryMax     time.Duration `env:"OUTBOX_RETRY_MAX" envDefault:"5m"`
	Owner        string        `env:"OUTBOX_RELAY_ID"`
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = time.Second
	}
	if c.RetryMax < c.RetryInitial {
		c.RetryMax = c.RetryInitial
	}
	if c.Owner == "" {
		host, _ := os.Hostname()
		c.Owner = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	return c
}

// OutboxRelay drains committed outbox rows to the broker. A failed publish
// never touches the aggregate; the row is retried with exponential backoff.
type OutboxRelay struct {
	log     *logger.Logger
	repo    repos.OutboxRepo
	broker  broker.Broker
	metrics *observability.Metrics
	tracer  trace.Tracer
	cfg     RelayConfig
	now     func() time.Time
}

func NewOutboxRelay(baseLog *logger.Logger, repo repos.OutboxRepo, br broker.Broker, metrics *observability.Metrics, cfg RelayConfig) *OutboxRelay {
	cfg = cfg.withDefaults()
	return &OutboxRelay{
		log:     baseLog.With("component", "OutboxRelay", "owner", cfg.Owner),
		repo:    repo,
		broker:  br,
		metrics: metrics,
		tracer:  observability.Tracer("outbox"),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context) error {
	r.log.Info("Starting outbox relay", "interval", r.cfg.Interval, "batch", r.cfg.BatchSize)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.log.Error("Outbox relay panic", "panic", rec)
						r.metrics.IncWorkerError("outbox_relay")
					}
				}()
				// Each pass takes one row per aggregate, so keep going until
				// nothing is claimable.
				for {
					n, err := r.RelayOnce(ctx)
					if err != nil {
						r.log.Warn("Outbox relay pass failed", "error", err)
						r.metrics.IncWorkerError("outbox_relay")
						return
					}
					if n == 0 || ctx.Err() != nil {
						return
					}
				}
			}()
		}
	}
}

// RelayOnce claims one batch and publishes it in order. It returns the
// number of rows claimed.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	dbc := dbctx.Context{Ctx: ctx}
	now := r.now()
	rows, err := r.repo.ClaimBatch(dbc, r.cfg.Owner, r.cfg.BatchSize, r.cfg.Lease, now)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		if err := r.publish(ctx, row); err != nil {
			next := now.Add(r.retryDelay(row.AttemptCount))
			r.log.Warn("Outbox publish failed",
				"outbox_id", row.ID,
				"aggregate_id", row.AggregateID,
				"attempt", row.AttemptCount+1,
				"next_attempt_at", next,
				"error", err,
			)
			r.metrics.IncOutboxPublish("failed")
			if err := r.repo.MarkFailed(dbc, row.ID, r.cfg.Owner, err.Error(), next); err != nil {
				r.log.Warn("Outbox mark failed", "outbox_id", row.ID, "error", err)
			}
			continue
		}
		r.metrics.IncOutboxPublish("published")
		if err := r.repo.MarkPublished(dbc, row.ID, r.cfg.Owner, r.now()); err != nil {
			// The lease expires and the row is published again; consumers dedupe.
			r.log.Warn("Outbox mark published failed", "outbox_id", row.ID, "error", err)
		}
	}

	if pending, err := r.repo.CountPending(dbc); err == nil {
		r.metrics.SetOutboxPending(pending)
	}
	return len(rows), nil
}

func (r *OutboxRelay) publish(ctx context.Context, row *types.OutboxEvent) error {
	ctx, span := r.tracer.Start(ctx, "outbox publish", trace.WithAttributes(
		attribute.String("messaging.destination", row.Topic),
		attribute.String("event.type", row.EventType),
		attribute.String("aggregate.id", row.AggregateID.String()),
	))
	defer span.End()
	if err := r.broker.Publish(ctx, row.Topic, row.AggregateID.String(), []byte(row.Envelope)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

// retryDelay is the wait before attempt number attempts+1.
func (r *OutboxRelay) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInitial
	b.MaxInterval = r.cfg.RetryMax
	b.RandomizationFactor = 0
	b.Reset()
	d := b.NextBackOff()
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
