package aggregates

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	types "github.com/yungbote/benefits-backend/internal/domain"
	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
)

type BenefitAggregateDeps struct {
	Base     BaseDeps
	Benefits repos.BenefitRepo
	Outbox   repos.OutboxRepo
	Outcomes repos.IdempotencyRecordRepo
	// Topic is the broker topic outbox rows are addressed to.
	Topic string
}

type benefitAggregate struct {
	deps BenefitAggregateDeps
}

func NewBenefitAggregate(deps BenefitAggregateDeps) domainagg.BenefitAggregate {
	if strings.TrimSpace(deps.Topic) == "" {
		deps.Topic = "benefits.events"
	}
	return &benefitAggregate{deps: deps}
}

func (a *benefitAggregate) Assign(ctx context.Context, in domainagg.AssignBenefitInput) (domainagg.BenefitWriteResult, error) {
	const op = "benefit.aggregate.assign"
	var out domainagg.BenefitWriteResult
	now := nowOr(in.Now)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		typ := benefits.Type(strings.TrimSpace(in.BenefitType))
		if err := a.deps.Benefits.LockSubjectType(dbc, in.SubjectID, typ); err != nil {
			return err
		}
		live, err := a.deps.Benefits.ExistsLive(dbc, in.SubjectID, typ)
		if err != nil {
			return err
		}
		if live {
			return domainagg.NewError(domainagg.CodeConflict, op, "duplicate active benefit of this type", nil)
		}
		b, ev, err := benefits.Assign(benefits.AssignParams{
			ID:           in.BenefitID,
			SubjectID:    in.SubjectID,
			Type:         typ,
			StartDate:    in.StartDate,
			EndDate:      in.EndDate,
			AmountCents:  in.AmountCents,
			Description:  in.Description,
			Verification: in.Verification,
			ActorID:      in.ActorID,
		}, now)
		if err != nil {
			return err
		}
		if err := a.deps.Benefits.Create(dbc, b); err != nil {
			return err
		}
		if err := a.appendEvent(dbc, ev, now); err != nil {
			return err
		}
		out = writeResult(b, ev)
		return a.recordOutcome(dbc, in.Outcome, out, now)
	})
	if err != nil {
		return domainagg.BenefitWriteResult{}, err
	}
	return out, nil
}

func (a *benefitAggregate) Transition(ctx context.Context, in domainagg.TransitionBenefitInput) (domainagg.BenefitWriteResult, error) {
	op := "benefit.aggregate." + string(in.Action)
	var out domainagg.BenefitWriteResult
	now := nowOr(in.Now)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		b, err := a.deps.Benefits.LockByID(dbc, in.BenefitID)
		if err != nil {
			return err
		}
		if err := requireFound(b != nil, op, in.BenefitID); err != nil {
			return err
		}
		expected := b.Version

		var ev events.Event
		switch in.Action {
		case domainagg.ActionApprove:
			ev, err = b.Approve(in.ActorID, now)
		case domainagg.ActionSuspend:
			ev, err = b.Suspend(in.Reason, in.ActorID, now)
		case domainagg.ActionReinstate:
			ev, err = b.Reinstate(in.ActorID, now)
		case domainagg.ActionRevoke:
			effective := benefits.Day(now)
			if in.EffectiveDate != nil {
				effective = *in.EffectiveDate
			}
			ev, err = b.Revoke(in.Reason, effective, in.ActorID, now)
		case domainagg.ActionModify:
			ev, err = b.Modify(benefits.ModifyParams{
				AmountCents: in.AmountCents,
				EndDate:     in.EndDate,
				Description: in.Description,
				Reason:      in.Reason,
			}, in.ActorID, now)
		default:
			return domainagg.NewError(domainagg.CodeValidation, op, "unknown benefit action", nil)
		}
		if err != nil {
			return err
		}

		ok, err := a.deps.Benefits.SaveVersioned(dbc, b, expected)
		if err != nil {
			return err
		}
		if err := requireVersion(ok, op, b.ID, expected); err != nil {
			return err
		}
		if err := a.appendEvent(dbc, ev, now); err != nil {
			return err
		}
		out = writeResult(b, ev)
		return a.recordOutcome(dbc, in.Outcome, out, now)
	})
	if err != nil {
		return domainagg.BenefitWriteResult{}, err
	}
	return out, nil
}

func (a *benefitAggregate) appendEvent(dbc dbctx.Context, ev events.Event, now time.Time) error {
	envelope, err := json.Marshal(ev)
	if err != nil {
		return domainagg.Wrap(domainagg.CodeInternal, "benefit.aggregate.outbox", err)
	}
	return a.deps.Outbox.Create(dbc, []*types.OutboxEvent{{
		ID:            ev.EventID,
		AggregateID:   ev.AggregateID,
		EventType:     string(ev.Type),
		Topic:         a.deps.Topic,
		Envelope:      datatypes.JSON(envelope),
		Status:        events.OutboxPending,
		NextAttemptAt: now.UTC(),
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}})
}

// recordOutcome persists the command response under its idempotency key. A
// lost insert means a concurrent request owns the key, so the whole write
// rolls back.
func (a *benefitAggregate) recordOutcome(dbc dbctx.Context, rec *domainagg.OutcomeRecord, res domainagg.BenefitWriteResult, now time.Time) error {
	if rec == nil || strings.TrimSpace(rec.Key) == "" || rec.Render == nil {
		return nil
	}
	status, body, err := rec.Render(res)
	if err != nil {
		return domainagg.Wrap(domainagg.CodeInternal, "benefit.aggregate.outcome", err)
	}
	inserted, err := a.deps.Outcomes.Insert(dbc, &types.IdempotencyRecord{
		Key:          rec.Key,
		RequestHash:  rec.Fingerprint,
		ResponseBody: datatypes.JSON(body),
		StatusCode:   status,
		CreatedAt:    now.UTC(),
		ExpiresAt:    rec.ExpiresAt.UTC(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return domainagg.ErrOutcomeAlreadyRecorded
	}
	return nil
}

func writeResult(b *types.Benefit, ev events.Event) domainagg.BenefitWriteResult {
	return domainagg.BenefitWriteResult{
		BenefitID: b.ID,
		SubjectID: b.SubjectID,
		State:     string(b.State),
		Version:   b.Version,
		EventID:   ev.EventID,
		EventType: string(ev.Type),
	}
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
