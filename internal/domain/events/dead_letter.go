package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DeadLetterOpen     = "open"
	DeadLetterReplayed = "replayed"
)

// DeadLetterRecord is the remediation ledger kept by the dead-letter consumer.
// Rows are flagged, never deleted.
type DeadLetterRecord struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"event_id"`
	AggregateID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"aggregate_id"`
	EventType     string         `gorm:"column:event_type;not null" json:"event_type"`
	SourceTopic   string         `gorm:"column:source_topic;not null" json:"source_topic"`
	FailureReason string         `gorm:"column:failure_reason" json:"failure_reason"`
	AttemptCount  int            `gorm:"column:attempt_count;not null" json:"attempt_count"`
	Envelope      datatypes.JSON `gorm:"column:envelope;type:jsonb;not null" json:"envelope"`

	// open|replayed
	Status     string     `gorm:"column:status;not null;index" json:"status"`
	ReplayedAt *time.Time `gorm:"column:replayed_at" json:"replayed_at,omitempty"`
	ReplayedBy string     `gorm:"column:replayed_by" json:"replayed_by,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (DeadLetterRecord) TableName() string { return "dead_letter" }
