package benefits

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a grant.
type State string

const (
	StatePending   State = "PENDING"
	StateActive    State = "ACTIVE"
	StateSuspended State = "SUSPENDED"
	StateRevoked   State = "REVOKED"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateActive, StateSuspended, StateRevoked:
		return true
	}
	return false
}

// LiveStates are the states that block a second grant of the same type.
var LiveStates = []State{StatePending, StateActive, StateSuspended}

const (
	VerificationVerified = "verified"
	VerificationPending  = "pending_verification"
	VerificationAssumed  = "assumed_valid"
)

// Benefit is the write-side aggregate row for a benefit grant.
type Benefit struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID string    `gorm:"column:subject_id;not null;index:idx_benefit_subject_type,priority:1" json:"subject_id"`
	Type      Type      `gorm:"column:benefit_type;not null;index:idx_benefit_subject_type,priority:2" json:"benefit_type"`
	State     State     `gorm:"column:state;not null;index" json:"state"`

	StartDate   time.Time  `gorm:"column:start_date;not null" json:"start_date"`
	EndDate     *time.Time `gorm:"column:end_date" json:"end_date,omitempty"`
	AmountCents *int64     `gorm:"column:amount_cents" json:"amount_cents,omitempty"`
	Description string     `gorm:"column:description" json:"description,omitempty"`

	Verification     string     `gorm:"column:verification;not null" json:"verification"`
	SuspensionReason string     `gorm:"column:suspension_reason" json:"suspension_reason,omitempty"`
	RevocationReason string     `gorm:"column:revocation_reason" json:"revocation_reason,omitempty"`
	RevokedOn        *time.Time `gorm:"column:revoked_on" json:"revoked_on,omitempty"`

	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedBy string    `gorm:"column:created_by" json:"created_by,omitempty"`
	UpdatedBy string    `gorm:"column:updated_by" json:"updated_by,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Benefit) TableName() string { return "benefit" }
