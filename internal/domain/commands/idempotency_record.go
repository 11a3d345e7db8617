package commands

import (
	"time"

	"gorm.io/datatypes"
)

// IdempotencyRecord is the stored outcome of one command keyed by its
// Idempotency-Key. Rows are inserted once and only ever deleted by the sweeper.
type IdempotencyRecord struct {
	Key          string         `gorm:"column:idempotency_key;primaryKey" json:"idempotency_key"`
	RequestHash  string         `gorm:"column:request_hash;not null" json:"request_hash"`
	ResponseBody datatypes.JSON `gorm:"column:response_body;type:jsonb" json:"response_body"`
	StatusCode   int            `gorm:"column:status_code;not null" json:"status_code"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	ExpiresAt    time.Time      `gorm:"column:expires_at;not null;index" json:"expires_at"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_record" }

// Expired reports whether the record is past its TTL at now.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return r == nil || !now.Before(r.ExpiresAt)
}
