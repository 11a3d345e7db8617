package benefits

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/domain/events"
)

// transitions lists, for each target state, the legal predecessor states.
var transitions = map[State][]State{
	StateActive:    {StatePending, StateSuspended},
	StateSuspended: {StateActive},
	StateRevoked:   {StateActive, StateSuspended},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to State) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

type AssignParams struct {
	ID          uuid.UUID
	SubjectID   string
	Type        Type
	StartDate   time.Time
	EndDate     *time.Time
	AmountCents *int64
	Description string
	// Verification is VerificationVerified or VerificationAssumed for an
	// immediately active grant, VerificationPending to hold it in PENDING.
	Verification string
	ActorID      string
}

// Assign constructs a new grant and its BenefitAssigned event.
func Assign(p AssignParams, now time.Time) (*Benefit, events.Event, error) {
	const op = "benefit.assign"
	if p.ID == uuid.Nil {
		return nil, events.Event{}, validation(op, "benefit id is required")
	}
	if strings.TrimSpace(p.SubjectID) == "" {
		return nil, events.Event{}, validation(op, "subject id is required")
	}
	if !p.Type.Valid() {
		return nil, events.Event{}, validation(op, "unknown benefit type "+string(p.Type))
	}
	if p.StartDate.IsZero() {
		return nil, events.Event{}, validation(op, "start date is required")
	}
	if err := checkWindow(op, p.StartDate, p.EndDate); err != nil {
		return nil, events.Event{}, err
	}
	if err := checkAmount(op, p.Type, p.AmountCents); err != nil {
		return nil, events.Event{}, err
	}

	state := StateActive
	verification := p.Verification
	switch verification {
	case VerificationVerified, VerificationAssumed:
	case VerificationPending:
		state = StatePending
	default:
		return nil, events.Event{}, validation(op, "unknown verification outcome")
	}

	b := &Benefit{
		ID:           p.ID,
		SubjectID:    strings.TrimSpace(p.SubjectID),
		Type:         p.Type,
		State:        state,
		StartDate:    Day(p.StartDate),
		EndDate:      dayPtr(p.EndDate),
		AmountCents:  p.AmountCents,
		Description:  strings.TrimSpace(p.Description),
		Verification: verification,
		Version:      1,
		CreatedBy:    p.ActorID,
		UpdatedBy:    p.ActorID,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	ev, err := b.event(events.BenefitAssigned, "", "", nil, p.ActorID, now)
	if err != nil {
		return nil, events.Event{}, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return b, ev, nil
}

// Approve moves a pending grant to ACTIVE once eligibility is confirmed.
func (b *Benefit) Approve(actorID string, now time.Time) (events.Event, error) {
	const op = "benefit.approve"
	// SUSPENDED -> ACTIVE is reinstatement, not approval.
	if b.State != StatePending {
		return events.Event{}, stateConflict(op, b.State, StateActive)
	}
	prev, err := b.moveTo(op, StateActive)
	if err != nil {
		return events.Event{}, err
	}
	b.Verification = VerificationVerified
	return b.commit(op, events.BenefitApproved, prev, "", nil, actorID, now)
}

// Suspend is an administrative hold and requires a reason.
func (b *Benefit) Suspend(reason, actorID string, now time.Time) (events.Event, error) {
	const op = "benefit.suspend"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return events.Event{}, validation(op, "suspension reason is required")
	}
	prev, err := b.moveTo(op, StateSuspended)
	if err != nil {
		return events.Event{}, err
	}
	b.SuspensionReason = reason
	return b.commit(op, events.BenefitSuspended, prev, reason, nil, actorID, now)
}

// Reinstate lifts a suspension.
func (b *Benefit) Reinstate(actorID string, now time.Time) (events.Event, error) {
	const op = "benefit.reinstate"
	if b.State != StateSuspended {
		return events.Event{}, stateConflict(op, b.State, StateActive)
	}
	prev, err := b.moveTo(op, StateActive)
	if err != nil {
		return events.Event{}, err
	}
	b.SuspensionReason = ""
	return b.commit(op, events.BenefitReinstated, prev, "", nil, actorID, now)
}

// Revoke ends the grant for good. The effective date cannot be in the past.
func (b *Benefit) Revoke(reason string, effective time.Time, actorID string, now time.Time) (events.Event, error) {
	const op = "benefit.revoke"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return events.Event{}, validation(op, "revocation reason is required")
	}
	if effective.IsZero() {
		return events.Event{}, validation(op, "effective date is required")
	}
	effective = Day(effective)
	if effective.Before(Day(now)) {
		return events.Event{}, validation(op, "effective date must be today or later")
	}
	prev, err := b.moveTo(op, StateRevoked)
	if err != nil {
		return events.Event{}, err
	}
	b.RevocationReason = reason
	b.RevokedOn = &effective
	return b.commit(op, events.BenefitRevoked, prev, reason, &effective, actorID, now)
}

type ModifyParams struct {
	AmountCents *int64
	EndDate     *time.Time
	Description *string
	Reason      string
}

// Modify changes the amount, end date or description of a live grant
// without changing its state.
func (b *Benefit) Modify(p ModifyParams, actorID string, now time.Time) (events.Event, error) {
	const op = "benefit.modify"
	if b.State != StateActive && b.State != StateSuspended {
		return events.Event{}, stateConflict(op, b.State, b.State)
	}
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		return events.Event{}, validation(op, "modification reason is required")
	}
	if p.AmountCents == nil && p.EndDate == nil && p.Description == nil {
		return events.Event{}, validation(op, "nothing to modify")
	}
	if p.AmountCents != nil {
		if err := checkAmount(op, b.Type, p.AmountCents); err != nil {
			return events.Event{}, err
		}
	}
	if p.EndDate != nil {
		if err := checkWindow(op, b.StartDate, p.EndDate); err != nil {
			return events.Event{}, err
		}
	}
	if p.AmountCents != nil {
		amount := *p.AmountCents
		b.AmountCents = &amount
	}
	if p.EndDate != nil {
		b.EndDate = dayPtr(p.EndDate)
	}
	if p.Description != nil {
		b.Description = strings.TrimSpace(*p.Description)
	}
	return b.commit(op, events.BenefitModified, "", reason, nil, actorID, now)
}

func (b *Benefit) moveTo(op string, to State) (State, error) {
	from := b.State
	if !CanTransition(from, to) {
		return from, stateConflict(op, from, to)
	}
	b.State = to
	return from, nil
}

func (b *Benefit) commit(op string, t events.Type, prev State, reason string, effective *time.Time, actorID string, now time.Time) (events.Event, error) {
	b.Version++
	b.UpdatedBy = actorID
	b.UpdatedAt = now.UTC()
	ev, err := b.event(t, prev, reason, effective, actorID, now)
	if err != nil {
		return events.Event{}, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return ev, nil
}

func (b *Benefit) event(t events.Type, prev State, reason string, effective *time.Time, actorID string, now time.Time) (events.Event, error) {
	p := events.BenefitPayload{
		SubjectID:     b.SubjectID,
		BenefitType:   string(b.Type),
		State:         string(b.State),
		PreviousState: string(prev),
		StartDate:     b.StartDate.Format(events.DateLayout),
		AmountCents:   b.AmountCents,
		Description:   b.Description,
		Verification:  b.Verification,
		Reason:        reason,
		ActorID:       actorID,
	}
	if b.EndDate != nil {
		p.EndDate = b.EndDate.Format(events.DateLayout)
	}
	if effective != nil {
		p.EffectiveDate = effective.Format(events.DateLayout)
	}
	return events.NewBenefitEvent(t, b.ID, b.Version, now, p)
}

func checkWindow(op string, start time.Time, end *time.Time) error {
	if end != nil && Day(*end).Before(Day(start)) {
		return validation(op, "end date must not be before start date")
	}
	return nil
}

func checkAmount(op string, t Type, amount *int64) error {
	if amount != nil && *amount <= 0 {
		return validation(op, "amount must be positive")
	}
	if t.RequiresAmount() && amount == nil {
		return validation(op, "amount is required for "+string(t))
	}
	return nil
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := Day(*t)
	return &d
}

func validation(op, msg string) error {
	return domainagg.NewError(domainagg.CodeValidation, op, msg, nil)
}

func stateConflict(op string, from, to State) error {
	return domainagg.NewError(domainagg.CodeStateConflict, op, "transition "+string(from)+" -> "+string(to)+" is not allowed", nil)
}
