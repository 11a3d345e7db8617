package benefits

import (
	"time"

	"github.com/google/uuid"
)

// BenefitView is the query-side projection of a grant. Only the projector
// writes it.
type BenefitView struct {
	AggregateID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID       string     `gorm:"column:subject_id;not null;index" json:"subject_id"`
	BenefitType     string     `gorm:"column:benefit_type;not null;index" json:"benefit_type"`
	TypeDescription string     `gorm:"column:type_description" json:"type_description"`
	State           string     `gorm:"column:state;not null;index" json:"state"`
	StartDate       time.Time  `gorm:"column:start_date;not null;index" json:"start_date"`
	EndDate         *time.Time `gorm:"column:end_date" json:"end_date,omitempty"`
	AmountCents     *int64     `gorm:"column:amount_cents" json:"amount_cents,omitempty"`
	FormattedAmount string     `gorm:"column:formatted_amount" json:"formatted_amount,omitempty"`
	Description     string     `gorm:"column:description" json:"description,omitempty"`
	Verification    string     `gorm:"column:verification" json:"verification"`
	LastReason      string     `gorm:"column:last_reason" json:"last_reason,omitempty"`
	RevokedOn       *time.Time `gorm:"column:revoked_on" json:"revoked_on,omitempty"`

	InForce       bool `gorm:"column:in_force;not null" json:"in_force"`
	DaysRemaining *int `gorm:"column:days_remaining" json:"days_remaining,omitempty"`

	Version       int64     `gorm:"column:version;not null" json:"version"`
	LastEventID   uuid.UUID `gorm:"type:uuid;column:last_event_id" json:"last_event_id"`
	LastEventType string    `gorm:"column:last_event_type" json:"last_event_type"`
	AssignedAt    time.Time `gorm:"column:assigned_at" json:"assigned_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (BenefitView) TableName() string { return "benefit_view" }

// Refresh recomputes the date-relative fields for now.
func (v *BenefitView) Refresh(now time.Time) {
	if v == nil {
		return
	}
	v.InForce = InForce(State(v.State), v.StartDate, v.EndDate, now)
	v.DaysRemaining = DaysRemaining(v.EndDate, now)
}

// SubjectSummary aggregates a subject's grants from the read model.
type SubjectSummary struct {
	SubjectID            string `json:"subject_id"`
	Total                int64  `json:"total"`
	Pending              int64  `json:"pending"`
	Active               int64  `json:"active"`
	Suspended            int64  `json:"suspended"`
	Revoked              int64  `json:"revoked"`
	InForce              int64  `json:"in_force"`
	ActiveAmountCents    int64  `json:"active_amount_cents"`
	FormattedActiveTotal string `json:"formatted_active_total"`
}
