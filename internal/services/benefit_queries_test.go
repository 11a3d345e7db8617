package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	"github.com/yungbote/benefits-backend/internal/data/repos/testutil"
	types "github.com/yungbote/benefits-backend/internal/domain"
	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
)

var queryNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seedView(t *testing.T, views repos.BenefitViewRepo, subject string, typ benefits.Type, state benefits.State, start time.Time, amount int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	v := &types.BenefitView{
		AggregateID: id,
		SubjectID:   subject,
		BenefitType: string(typ),
		State:       string(state),
		StartDate:   start,
		AmountCents: &amount,
		Version:     1,
		LastEventID: uuid.New(),
		UpdatedAt:   queryNow,
	}
	if _, err := views.Upsert(dbctx.Context{Ctx: context.Background()}, v); err != nil {
		t.Fatalf("seed view: %v", err)
	}
	return id
}

func newQueryFixture(t *testing.T) (*benefitQueryService, repos.BenefitViewRepo) {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	views := repos.NewBenefitViewRepo(db, log)
	svc := NewBenefitQueryService(log, views).(*benefitQueryService)
	svc.now = func() time.Time { return queryNow }
	return svc, views
}

func TestQueryGetRefreshesInForce(t *testing.T) {
	svc, views := newQueryFixture(t)
	future := seedView(t, views, "S1", benefits.TypeHealth, benefits.StateActive, queryNow.AddDate(0, 0, 1), 12000)
	current := seedView(t, views, "S1", benefits.TypeTraining, benefits.StateActive, queryNow.AddDate(0, 0, -1), 5000)

	v, err := svc.Get(context.Background(), future)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.InForce {
		t.Fatalf("grant starting tomorrow: want in_force=false")
	}
	v, _ = svc.Get(context.Background(), current)
	if !v.InForce {
		t.Fatalf("grant started yesterday: want in_force=true")
	}

	_, err = svc.Get(context.Background(), uuid.New())
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing view: want not_found got=%v", err)
	}
}

func TestQuerySearchPaginates(t *testing.T) {
	svc, views := newQueryFixture(t)
	for i := 0; i < 5; i++ {
		seedView(t, views, "S1", benefits.TypeHealth, benefits.StateRevoked, queryNow.AddDate(0, 0, -i), 100)
	}
	seedView(t, views, "S2", benefits.TypeHealth, benefits.StateActive, queryNow, 100)

	page, err := svc.Search(context.Background(), SearchQuery{SubjectID: "S1", Page: 1, Size: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.Page != 1 || page.Size != 2 {
		t.Fatalf("page: got total=%d items=%d page=%d size=%d", page.Total, len(page.Items), page.Page, page.Size)
	}
	if !page.Items[0].StartDate.After(page.Items[1].StartDate) {
		t.Fatalf("order: want start date descending")
	}

	page, _ = svc.Search(context.Background(), SearchQuery{State: "active"})
	if page.Total != 1 || page.Items[0].SubjectID != "S2" {
		t.Fatalf("state filter: got total=%d", page.Total)
	}

	if _, err := svc.Search(context.Background(), SearchQuery{State: "LIMBO"}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("bad state: want validation got=%v", err)
	}
	if _, err := svc.Search(context.Background(), SearchQuery{Page: math.MaxInt / 2, Size: 100}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("huge page: want validation got=%v", err)
	}
	page, _ = svc.Search(context.Background(), SearchQuery{Size: 1000})
	if page.Size != maxPageSize {
		t.Fatalf("size cap: want=%d got=%d", maxPageSize, page.Size)
	}
}

func TestSubjectSummary(t *testing.T) {
	svc, views := newQueryFixture(t)
	seedView(t, views, "S1", benefits.TypeHealth, benefits.StateActive, queryNow.AddDate(0, 0, -3), 12000)
	seedView(t, views, "S1", benefits.TypeTraining, benefits.StateActive, queryNow.AddDate(0, 0, 2), 3050)
	seedView(t, views, "S1", benefits.TypeFamilyAid, benefits.StateSuspended, queryNow.AddDate(0, 0, -3), 999)
	seedView(t, views, "S1", benefits.TypeOpticalDiscount, benefits.StateRevoked, queryNow.AddDate(0, 0, -9), 0)

	sum, err := svc.SubjectSummary(context.Background(), "S1")
	if err != nil {
		t.Fatalf("SubjectSummary: %v", err)
	}
	if sum.Total != 4 || sum.Active != 2 || sum.Suspended != 1 || sum.Revoked != 1 || sum.InForce != 1 {
		t.Fatalf("counts: got=%+v", sum)
	}
	if sum.ActiveAmountCents != 15050 {
		t.Fatalf("active amount: want=15050 got=%d", sum.ActiveAmountCents)
	}
	if sum.FormattedActiveTotal != benefits.FormatAmount(15050) {
		t.Fatalf("formatted total: got=%q", sum.FormattedActiveTotal)
	}
}
