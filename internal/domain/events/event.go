package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type tags every domain event; projectors dispatch on it.
type Type string

const (
	BenefitAssigned   Type = "BenefitAssigned"
	BenefitApproved   Type = "BenefitApproved"
	BenefitSuspended  Type = "BenefitSuspended"
	BenefitReinstated Type = "BenefitReinstated"
	BenefitRevoked    Type = "BenefitRevoked"
	BenefitModified   Type = "BenefitModified"
)

// Types lists every known event type.
func Types() []Type {
	return []Type{BenefitAssigned, BenefitApproved, BenefitSuspended, BenefitReinstated, BenefitRevoked, BenefitModified}
}

func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// Event is the wire envelope on the event channel.
type Event struct {
	EventID     uuid.UUID       `json:"eventId"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	Type        Type            `json:"type"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Version     int64           `json:"version"`
	Payload     json.RawMessage `json:"payload"`
}

// DeadLetter is the envelope on the dead-letter channel.
type DeadLetter struct {
	Event
	FailureReason string `json:"failureReason"`
	AttemptCount  int    `json:"attemptCount"`
}

// BenefitPayload is the full post-transition state of the grant, so a
// projection never has to read the write side.
type BenefitPayload struct {
	SubjectID     string `json:"subjectId"`
	BenefitType   string `json:"benefitType"`
	State         string `json:"state"`
	PreviousState string `json:"previousState,omitempty"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate,omitempty"`
	AmountCents   *int64 `json:"amountCents,omitempty"`
	Description   string `json:"description,omitempty"`
	Verification  string `json:"verification,omitempty"`
	Reason        string `json:"reason,omitempty"`
	EffectiveDate string `json:"effectiveDate,omitempty"`
	ActorID       string `json:"actorId,omitempty"`
}

const DateLayout = "2006-01-02"

func NewBenefitEvent(t Type, aggregateID uuid.UUID, version int64, at time.Time, p BenefitPayload) (Event, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{
		EventID:     uuid.New(),
		AggregateID: aggregateID,
		Type:        t,
		OccurredAt:  at.UTC(),
		Version:     version,
		Payload:     raw,
	}, nil
}

func (e Event) BenefitPayload() (BenefitPayload, error) {
	var p BenefitPayload
	if len(e.Payload) == 0 {
		return p, fmt.Errorf("event %s has empty payload", e.EventID)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return p, nil
}

func Decode(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, fmt.Errorf("decode event: %w", err)
	}
	if e.EventID == uuid.Nil || e.AggregateID == uuid.Nil {
		return e, fmt.Errorf("decode event: missing ids")
	}
	return e, nil
}

func DecodeDeadLetter(raw []byte) (DeadLetter, error) {
	var d DeadLetter
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("decode dead letter: %w", err)
	}
	return d, nil
}
