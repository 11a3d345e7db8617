package benefits

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/data/repos/testutil"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
)

func seedBenefit(t *testing.T, repo BenefitRepo, dbc dbctx.Context, subject string, typ benefits.Type, state benefits.State) *types.Benefit {
	t.Helper()
	now := time.Now().UTC()
	amount := int64(1000)
	b := &types.Benefit{
		ID:           uuid.New(),
		SubjectID:    subject,
		Type:         typ,
		State:        state,
		StartDate:    benefits.Day(now),
		AmountCents:  &amount,
		Verification: benefits.VerificationVerified,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(dbc, b); err != nil {
		t.Fatalf("seed benefit: %v", err)
	}
	return b
}

func TestBenefitRepoExistsLive(t *testing.T) {
	db := testutil.SQLite(t)
	repo := NewBenefitRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	seedBenefit(t, repo, dbc, "S1", benefits.TypeHealth, benefits.StateRevoked)
	live, err := repo.ExistsLive(dbc, "S1", benefits.TypeHealth)
	if err != nil {
		t.Fatalf("ExistsLive: %v", err)
	}
	if live {
		t.Fatalf("revoked grant should not count as live")
	}

	seedBenefit(t, repo, dbc, "S1", benefits.TypeHealth, benefits.StateSuspended)
	live, err = repo.ExistsLive(dbc, "S1", benefits.TypeHealth)
	if err != nil || !live {
		t.Fatalf("suspended grant should count as live: live=%v err=%v", live, err)
	}
	live, err = repo.ExistsLive(dbc, "S1", benefits.TypeTraining)
	if err != nil || live {
		t.Fatalf("other type: live=%v err=%v", live, err)
	}
}

func TestBenefitRepoSaveVersioned(t *testing.T) {
	db := testutil.SQLite(t)
	repo := NewBenefitRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	b := seedBenefit(t, repo, dbc, "S2", benefits.TypeHealth, benefits.StateActive)

	b.State = benefits.StateSuspended
	b.SuspensionReason = "audit"
	b.Version = 2
	ok, err := repo.SaveVersioned(dbc, b, 1)
	if err != nil || !ok {
		t.Fatalf("save v1->v2: ok=%v err=%v", ok, err)
	}
	ok, err = repo.SaveVersioned(dbc, b, 1)
	if err != nil {
		t.Fatalf("stale save: %v", err)
	}
	if ok {
		t.Fatalf("stale version should not update")
	}

	got, err := repo.GetByID(dbc, b.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if got.State != benefits.StateSuspended || got.Version != 2 || got.SuspensionReason != "audit" {
		t.Fatalf("stored: state=%s version=%d reason=%q", got.State, got.Version, got.SuspensionReason)
	}

	missing, err := repo.LockByID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("LockByID missing: got=%v err=%v", missing, err)
	}
}
