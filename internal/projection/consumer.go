package projection

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/messaging/broker"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

const (
	DefaultTopic      = "benefits.events"
	ProjectorGroup    = "benefits-projector"
	DeadLetterGroup   = "benefits-dead-letter"
	defaultAttempts   = 3
	defaultRetryDelay = time.Second
)

type ConsumerConfig struct {
	Topic         string        `env:"EVENTS_TOPIC" envDefault:"benefits.events"`
	Group         string        `env:"PROJECTOR_GROUP" envDefault:"benefits-projector"`
	MaxAttempts   int           `env:"PROJECTOR_MAX_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"PROJECTOR_RETRY_INTERVAL" envDefault:"1s"`
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Group == "" {
		c.Group = ProjectorGroup
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultAttempts
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryDelay
	}
	return c
}

// Consumer feeds the event topic to the projector. A message that still
// fails after MaxAttempts tries, RetryInterval apart, is forwarded to the
// dead-letter topic under the same key and acknowledged.
type Consumer struct {
	log       *logger.Logger
	broker    broker.Broker
	projector *Projector
	metrics   *observability.Metrics
	tracer    trace.Tracer
	cfg       ConsumerConfig
}

func NewConsumer(baseLog *logger.Logger, br broker.Broker, projector *Projector, metrics *observability.Metrics, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		log:       baseLog.With("component", "ProjectionConsumer", "topic", cfg.Topic),
		broker:    br,
		projector: projector,
		metrics:   metrics,
		tracer:    observability.Tracer("projection"),
		cfg:       cfg,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("Starting projection consumer", "group", c.cfg.Group, "max_attempts", c.cfg.MaxAttempts)
	return c.broker.Subscribe(ctx, c.cfg.Topic, c.cfg.Group, c.Handle)
}

// Handle processes one message. It returns an error only when the message
// could neither be projected nor dead-lettered, so the broker redelivers it.
func (c *Consumer) Handle(ctx context.Context, msg broker.Message) error {
	ctx, span := c.tracer.Start(ctx, "project event", trace.WithAttributes(
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int("messaging.partition", msg.Partition),
		attribute.String("messaging.key", msg.Key),
	))
	defer span.End()

	var (
		ev       events.Event
		attempts int
	)
	_, err := backoff.Retry(ctx, func() (bool, error) {
		attempts++
		decoded, err := events.Decode(msg.Value)
		if err != nil {
			return false, err
		}
		ev = decoded
		return c.projector.Apply(ctx, ev)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.RetryInterval)),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("projection failed, retrying", "key", msg.Key, "attempt", attempts, "next", next, "error", err)
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// Shutting down; leave the message for redelivery.
		return ctx.Err()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "dead-lettered")
	return c.deadLetter(ctx, msg, ev, attempts, err)
}

func (c *Consumer) deadLetter(ctx context.Context, msg broker.Message, ev events.Event, attempts int, cause error) error {
	if ev.EventID == uuid.Nil {
		ev = undecodable(msg)
	}
	body, err := json.Marshal(events.DeadLetter{Event: ev, FailureReason: cause.Error(), AttemptCount: attempts})
	if err != nil {
		return err
	}
	if err := c.broker.Publish(ctx, broker.DeadLetterTopic(msg.Topic), msg.Key, body); err != nil {
		c.log.Error("dead-letter publish failed", "key", msg.Key, "error", err)
		return errors.Join(cause, err)
	}
	c.metrics.IncDeadLetter(string(ev.Type))
	c.log.Error("event dead-lettered",
		"event_id", ev.EventID,
		"aggregate_id", ev.AggregateID,
		"event_type", string(ev.Type),
		"attempts", attempts,
		"error", cause,
	)
	return nil
}

// undecodable wraps a message that is not an event envelope. Its id is
// derived from the content so redeliveries land on one dead-letter row.
func undecodable(msg broker.Message) events.Event {
	aggregateID, _ := uuid.Parse(msg.Key)
	payload := json.RawMessage(msg.Value)
	if !json.Valid(msg.Value) {
		payload = json.RawMessage(strconv.Quote(string(msg.Value)))
	}
	return events.Event{
		EventID:     uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(msg.Topic+"/"), msg.Value...)),
		AggregateID: aggregateID,
		Type:        events.Type("undecodable"),
		Payload:     payload,
	}
}

func sourceTopic(dltTopic string) string {
	return strings.TrimSuffix(dltTopic, broker.DeadLetterTopic(""))
}
