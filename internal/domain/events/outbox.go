package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	OutboxPending   = "pending"
	OutboxPublished = "published"
)

// OutboxEvent is written in the same transaction as the aggregate mutation
// and drained to the broker by the relay.
type OutboxEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AggregateID uuid.UUID      `gorm:"type:uuid;not null;index" json:"aggregate_id"`
	EventType   string         `gorm:"column:event_type;not null" json:"event_type"`
	Topic       string         `gorm:"column:topic;not null" json:"topic"`
	Envelope    datatypes.JSON `gorm:"column:envelope;type:jsonb;not null" json:"envelope"`

	// pending|published
	Status        string     `gorm:"column:status;not null;index:idx_outbox_status_next,priority:1" json:"status"`
	AttemptCount  int        `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null;index:idx_outbox_status_next,priority:2" json:"next_attempt_at"`
	LeaseOwner    string     `gorm:"column:lease_owner" json:"lease_owner,omitempty"`
	LeaseUntil    *time.Time `gorm:"column:lease_until" json:"lease_until,omitempty"`
	LastError     string     `gorm:"column:last_error" json:"last_error,omitempty"`
	PublishedAt   *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (OutboxEvent) TableName() string { return "outbox_event" }
