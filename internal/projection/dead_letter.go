package projection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/messaging/broker"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

// DeadLetterConsumer records every dead-lettered event for manual
// remediation. Rows are never deleted.
type DeadLetterConsumer struct {
	log    *logger.Logger
	broker broker.Broker
	repo   repos.DeadLetterRepo
	topic  string
	now    func() time.Time
}

func NewDeadLetterConsumer(baseLog *logger.Logger, br broker.Broker, repo repos.DeadLetterRepo, topic string) *DeadLetterConsumer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &DeadLetterConsumer{
		log:    baseLog.With("component", "DeadLetterConsumer"),
		broker: br,
		repo:   repo,
		topic:  broker.DeadLetterTopic(topic),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (d *DeadLetterConsumer) Run(ctx context.Context) error {
	d.log.Info("Starting dead-letter consumer", "topic", d.topic)
	return d.broker.Subscribe(ctx, d.topic, DeadLetterGroup, d.Handle)
}

// Handle stores msg; a storage error leaves it for redelivery.
func (d *DeadLetterConsumer) Handle(ctx context.Context, msg broker.Message) error {
	dl, err := events.DecodeDeadLetter(msg.Value)
	if err != nil || dl.EventID == uuid.Nil {
		dl = events.DeadLetter{Event: undecodable(msg), FailureReason: "malformed dead letter", AttemptCount: 0}
		if err != nil {
			dl.FailureReason = "malformed dead letter: " + err.Error()
		}
	}
	now := d.now()
	row := &types.DeadLetterRecord{
		EventID:       dl.EventID,
		AggregateID:   dl.AggregateID,
		EventType:     string(dl.Type),
		SourceTopic:   sourceTopic(msg.Topic),
		FailureReason: dl.FailureReason,
		AttemptCount:  dl.AttemptCount,
		Envelope:      datatypes.JSON(msg.Value),
		Status:        events.DeadLetterOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !json.Valid(msg.Value) {
		row.Envelope = datatypes.JSON(`{}`)
	}
	if err := d.repo.Record(dbctx.Context{Ctx: ctx}, row); err != nil {
		d.log.Warn("dead letter not recorded", "event_id", dl.EventID, "error", err)
		return err
	}
	d.log.Error("dead letter recorded",
		"event_id", dl.EventID,
		"aggregate_id", dl.AggregateID,
		"event_type", string(dl.Type),
		"attempts", dl.AttemptCount,
		"reason", dl.FailureReason,
	)
	return nil
}
