package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	types "github.com/yungbote/benefits-backend/internal/domain"
	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// Keeps page*size well inside an int offset.
	maxPage = 1_000_000
)

type SearchQuery struct {
	SubjectID   string
	State       string
	BenefitType string
	Page        int
	Size        int
}

type SearchPage struct {
	Items []*types.BenefitView `json:"items"`
	Page  int                  `json:"page"`
	Size  int                  `json:"size"`
	Total int64                `json:"total"`
}

// BenefitQueryService reads the projection only. Date-relative fields are
// recomputed on read so a stale row never reports yesterday's in_force.
type BenefitQueryService interface {
	Get(ctx context.Context, id uuid.UUID) (*types.BenefitView, error)
	Search(ctx context.Context, q SearchQuery) (SearchPage, error)
	SubjectSummary(ctx context.Context, subjectID string) (*types.SubjectSummary, error)
	Catalog() []benefits.TypeInfo
}

type benefitQueryService struct {
	log   *logger.Logger
	views repos.BenefitViewRepo
	now   func() time.Time
}

func NewBenefitQueryService(log *logger.Logger, views repos.BenefitViewRepo) BenefitQueryService {
	return &benefitQueryService{
		log:   log.With("service", "BenefitQueryService"),
		views: views,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *benefitQueryService) Get(ctx context.Context, id uuid.UUID) (*types.BenefitView, error) {
	v, err := s.views.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, "query.get", "benefit not found", nil)
	}
	v.Refresh(s.now())
	return v, nil
}

func (s *benefitQueryService) Search(ctx context.Context, q SearchQuery) (SearchPage, error) {
	const op = "query.search"
	if st := strings.ToUpper(strings.TrimSpace(q.State)); st != "" && !benefits.State(st).Valid() {
		return SearchPage{}, domainagg.NewError(domainagg.CodeValidation, op, "unknown state "+q.State, nil)
	}
	if bt := strings.ToUpper(strings.TrimSpace(q.BenefitType)); bt != "" && !benefits.Type(bt).Valid() {
		return SearchPage{}, domainagg.NewError(domainagg.CodeValidation, op, "unknown benefit type "+q.BenefitType, nil)
	}
	if q.Page < 0 || q.Page > maxPage {
		return SearchPage{}, domainagg.NewError(domainagg.CodeValidation, op, "page must be between 0 and "+strconv.Itoa(maxPage), nil)
	}
	size := q.Size
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}

	items, total, err := s.views.Search(dbctx.Context{Ctx: ctx}, repos.ViewFilter{
		SubjectID:   q.SubjectID,
		State:       q.State,
		BenefitType: q.BenefitType,
		Offset:      q.Page * size,
		Limit:       size,
	})
	if err != nil {
		return SearchPage{}, err
	}
	now := s.now()
	for _, v := range items {
		v.Refresh(now)
	}
	if items == nil {
		items = []*types.BenefitView{}
	}
	return SearchPage{Items: items, Page: q.Page, Size: size, Total: total}, nil
}

func (s *benefitQueryService) SubjectSummary(ctx context.Context, subjectID string) (*types.SubjectSummary, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, "query.summary", "subject id is required", nil)
	}
	views, err := s.views.ListBySubject(dbctx.Context{Ctx: ctx}, subjectID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sum := &types.SubjectSummary{SubjectID: subjectID}
	for _, v := range views {
		v.Refresh(now)
		sum.Total++
		switch benefits.State(v.State) {
		case benefits.StatePending:
			sum.Pending++
		case benefits.StateActive:
			sum.Active++
			if v.AmountCents != nil {
				sum.ActiveAmountCents += *v.AmountCents
			}
		case benefits.StateSuspended:
			sum.Suspended++
		case benefits.StateRevoked:
			sum.Revoked++
		}
		if v.InForce {
			sum.InForce++
		}
	}
	sum.FormattedActiveTotal = benefits.FormatAmount(sum.ActiveAmountCents)
	return sum, nil
}

func (s *benefitQueryService) Catalog() []benefits.TypeInfo {
	return benefits.Catalog()
}
