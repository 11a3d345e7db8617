package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	"github.com/yungbote/benefits-backend/internal/data/repos/testutil"
	types "github.com/yungbote/benefits-backend/internal/domain"
	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
)

type benefitFixture struct {
	db       *gorm.DB
	agg      domainagg.BenefitAggregate
	benefits repos.BenefitRepo
	outbox   repos.OutboxRepo
	outcomes repos.IdempotencyRecordRepo
	hooks    *spyHooks
}

func newBenefitFixture(t *testing.T) benefitFixture {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	f := benefitFixture{
		db:       db,
		benefits: repos.NewBenefitRepo(db, log),
		outbox:   repos.NewOutboxRepo(db, log),
		outcomes: repos.NewIdempotencyRecordRepo(db, log),
		hooks:    &spyHooks{},
	}
	f.agg = NewBenefitAggregate(BenefitAggregateDeps{
		Base:     BaseDeps{DB: db, Log: log, Hooks: f.hooks},
		Benefits: f.benefits,
		Outbox:   f.outbox,
		Outcomes: f.outcomes,
	})
	return f
}

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func assignInput(subject string, typ benefits.Type) domainagg.AssignBenefitInput {
	amount := int64(12000)
	return domainagg.AssignBenefitInput{
		BenefitID:    uuid.New(),
		SubjectID:    subject,
		BenefitType:  string(typ),
		StartDate:    fixedNow,
		AmountCents:  &amount,
		Verification: benefits.VerificationVerified,
		ActorID:      "officer-1",
		Now:          fixedNow,
	}
}

func staticOutcome(key string) *domainagg.OutcomeRecord {
	return &domainagg.OutcomeRecord{
		Key:         key,
		Fingerprint: "fp-" + key,
		ExpiresAt:   fixedNow.Add(24 * time.Hour),
		Render: func(res domainagg.BenefitWriteResult) (int, []byte, error) {
			return 201, []byte(`{"aggregateId":"` + res.BenefitID.String() + `"}`), nil
		},
	}
}

func TestBenefitAggregateAssignWritesRowOutboxAndOutcome(t *testing.T) {
	f := newBenefitFixture(t)
	ctx := context.Background()
	in := assignInput("S1", benefits.TypeUnemploymentSubsidy)
	in.Outcome = staticOutcome("k-assign")

	res, err := f.agg.Assign(ctx, in)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if res.State != string(benefits.StateActive) || res.Version != 1 {
		t.Fatalf("result: want=ACTIVE/1 got=%s/%d", res.State, res.Version)
	}

	dbc := dbctx.Context{Ctx: ctx}
	stored, err := f.benefits.GetByID(dbc, in.BenefitID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: row=%v err=%v", stored, err)
	}
	pending, err := f.outbox.CountPending(dbc)
	if err != nil || pending != 1 {
		t.Fatalf("outbox pending: want=1 got=%d err=%v", pending, err)
	}
	rec, err := f.outcomes.Get(dbc, "k-assign")
	if err != nil || rec == nil {
		t.Fatalf("outcome: rec=%v err=%v", rec, err)
	}
	if rec.StatusCode != 201 || rec.RequestHash != "fp-k-assign" {
		t.Fatalf("outcome: status=%d hash=%s", rec.StatusCode, rec.RequestHash)
	}
}

func TestBenefitAggregateAssignPendingVerification(t *testing.T) {
	f := newBenefitFixture(t)
	in := assignInput("S1", benefits.TypePharmacyDiscount)
	in.AmountCents = nil
	in.Verification = benefits.VerificationPending

	res, err := f.agg.Assign(context.Background(), in)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if res.State != string(benefits.StatePending) {
		t.Fatalf("state: want=PENDING got=%s", res.State)
	}
}

func TestBenefitAggregateAssignRejectsDuplicateLiveGrant(t *testing.T) {
	f := newBenefitFixture(t)
	ctx := context.Background()
	if _, err := f.agg.Assign(ctx, assignInput("S1", benefits.TypeUnemploymentSubsidy)); err != nil {
		t.Fatalf("first Assign: %v", err)
	}
	_, err := f.agg.Assign(ctx, assignInput("S1", benefits.TypeUnemploymentSubsidy))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate: want conflict got=%v", err)
	}
	if len(f.hooks.Conflicts) != 1 {
		t.Fatalf("conflict hook: want=1 got=%d", len(f.hooks.Conflicts))
	}
	pending, _ := f.outbox.CountPending(dbctx.Context{Ctx: ctx})
	if pending != 1 {
		t.Fatalf("outbox rows after rejected duplicate: want=1 got=%d", pending)
	}
}

func TestBenefitAggregateAssignAllowsNewGrantAfterRevoke(t *testing.T) {
	f := newBenefitFixture(t)
	ctx := context.Background()
	first := assignInput("S1", benefits.TypeTraining)
	first.AmountCents = ptrInt64(500)
	if _, err := f.agg.Assign(ctx, first); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := f.agg.Transition(ctx, domainagg.TransitionBenefitInput{
		BenefitID: first.BenefitID,
		Action:    domainagg.ActionRevoke,
		Reason:    "course cancelled",
		ActorID:   "officer-1",
		Now:       fixedNow,
	}); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	second := assignInput("S1", benefits.TypeTraining)
	second.AmountCents = ptrInt64(700)
	if _, err := f.agg.Assign(ctx, second); err != nil {
		t.Fatalf("Assign after revoke: %v", err)
	}
}

func TestBenefitAggregateLostOutcomeInsertRollsBack(t *testing.T) {
	f := newBenefitFixture(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	if _, err := f.outcomes.Insert(dbc, &types.IdempotencyRecord{
		Key:         "k-race",
		RequestHash: "fp-k-race",
		StatusCode:  201,
		CreatedAt:   fixedNow,
		ExpiresAt:   fixedNow.Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed outcome: %v", err)
	}

	in := assignInput("S2", benefits.TypeFamilyAid)
	in.Outcome = staticOutcome("k-race")
	_, err := f.agg.Assign(ctx, in)
	if !errors.Is(err, domainagg.ErrOutcomeAlreadyRecorded) {
		t.Fatalf("lost insert: want ErrOutcomeAlreadyRecorded got=%v", err)
	}
	stored, err := f.benefits.GetByID(dbc, in.BenefitID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored != nil {
		t.Fatalf("benefit row survived a rolled back write")
	}
	pending, _ := f.outbox.CountPending(dbc)
	if pending != 0 {
		t.Fatalf("outbox rows after rollback: want=0 got=%d", pending)
	}
}

func TestBenefitAggregateTransitionLifecycle(t *testing.T) {
	f := newBenefitFixture(t)
	ctx := context.Background()
	in := assignInput("S3", benefits.TypeDisabilitySubsidy)
	in.Verification = benefits.VerificationPending
	if _, err := f.agg.Assign(ctx, in); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	steps := []struct {
		action    domainagg.BenefitAction
		reason    string
		wantState benefits.State
		wantVer   int64
	}{
		{domainagg.ActionApprove, "", benefits.StateActive, 2},
		{domainagg.ActionSuspend, "document review", benefits.StateSuspended, 3},
		{domainagg.ActionReinstate, "", benefits.StateActive, 4},
		{domainagg.ActionRevoke, "fraud", benefits.StateRevoked, 5},
	}
	for _, step := range steps {
		res, err := f.agg.Transition(ctx, domainagg.TransitionBenefitInput{
			BenefitID: in.BenefitID,
			Action:    step.action,
			Reason:    step.reason,
			ActorID:   "officer-2",
			Now:       fixedNow,
		})
		if err != nil {
			t.Fatalf("%s: %v", step.action, err)
		}
		if res.State != string(step.wantState) || res.Version != step.wantVer {
			t.Fatalf("%s: want=%s/%d got=%s/%d", step.action, step.wantState, step.wantVer, res.State, res.Version)
		}
	}

	_, err := f.agg.Transition(ctx, domainagg.TransitionBenefitInput{
		BenefitID: in.BenefitID,
		Action:    domainagg.ActionReinstate,
		Now:       fixedNow,
	})
	if !domainagg.IsCode(err, domainagg.CodeStateConflict) {
		t.Fatalf("reinstate revoked: want state_conflict got=%v", err)
	}
	pending, _ := f.outbox.CountPending(dbctx.Context{Ctx: ctx})
	if pending != 5 {
		t.Fatalf("outbox rows: want=5 got=%d", pending)
	}
}

func TestBenefitAggregateTransitionUnknownBenefit(t *testing.T) {
	f := newBenefitFixture(t)
	_, err := f.agg.Transition(context.Background(), domainagg.TransitionBenefitInput{
		BenefitID: uuid.New(),
		Action:    domainagg.ActionSuspend,
		Reason:    "x",
		Now:       fixedNow,
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown benefit: want not_found got=%v", err)
	}
}

func ptrInt64(v int64) *int64 { return &v }
