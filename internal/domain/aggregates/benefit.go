package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BenefitAggregate owns benefit grant transition invariants.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict (live duplicate grant),
// CodeStateConflict, CodeRetryable (lost version race, lock or busy errors), CodeInternal.
// ErrOutcomeAlreadyRecorded (wrapped) signals that another request committed the same
// idempotency key first and this write was rolled back.
type BenefitAggregate interface {
	// Assign creates a new grant after checking there is no live grant of the
	// same type for the subject.
	Assign(ctx context.Context, in AssignBenefitInput) (BenefitWriteResult, error)

	// Transition applies a lifecycle action to an existing grant under a row lock.
	Transition(ctx context.Context, in TransitionBenefitInput) (BenefitWriteResult, error)
}

// OutcomeRecord is the command response persisted with the mutation. Render
// builds the stored status and body from the write result.
type OutcomeRecord struct {
	Key         string
	Fingerprint string
	ExpiresAt   time.Time
	Render      func(BenefitWriteResult) (status int, body []byte, err error)
}

type AssignBenefitInput struct {
	BenefitID   uuid.UUID
	SubjectID   string
	BenefitType string
	StartDate   time.Time
	EndDate     *time.Time
	AmountCents *int64
	Description string
	// Verification is the eligibility outcome: verified, pending_verification
	// or assumed_valid.
	Verification string
	ActorID      string
	Now          time.Time
	Outcome      *OutcomeRecord
}

type BenefitAction string

const (
	ActionApprove   BenefitAction = "approve"
	ActionSuspend   BenefitAction = "suspend"
	ActionReinstate BenefitAction = "reinstate"
	ActionRevoke    BenefitAction = "revoke"
	ActionModify    BenefitAction = "modify"
)

type TransitionBenefitInput struct {
	BenefitID     uuid.UUID
	Action        BenefitAction
	Reason        string
	EffectiveDate *time.Time
	AmountCents   *int64
	EndDate       *time.Time
	Description   *string
	ActorID       string
	Now           time.Time
	Outcome       *OutcomeRecord
}

type BenefitWriteResult struct {
	BenefitID uuid.UUID
	SubjectID string
	State     string
	Version   int64
	EventID   uuid.UUID
	EventType string
}
