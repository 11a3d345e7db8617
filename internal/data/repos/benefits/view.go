package benefits

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type ViewFilter struct {
	SubjectID   string
	State       string
	BenefitType string
	Offset      int
	Limit       int
}

type BenefitViewRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.BenefitView, error)

	// Upsert stores v unless the stored row already has an equal or newer version.
	// It reports whether the row changed.
	Upsert(dbc dbctx.Context, v *types.BenefitView) (bool, error)

	Search(dbc dbctx.Context, f ViewFilter) ([]*types.BenefitView, int64, error)
	ListBySubject(dbc dbctx.Context, subjectID string) ([]*types.BenefitView, error)
}

type benefitViewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBenefitViewRepo(db *gorm.DB, baseLog *logger.Logger) BenefitViewRepo {
	return &benefitViewRepo{db: db, log: baseLog.With("repo", "BenefitViewRepo")}
}

func (r *benefitViewRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.BenefitView, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.BenefitView
	err := dbc.DB(r.db).Where("aggregate_id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// upsertColumns excludes assigned_at so the first projection keeps it.
var upsertColumns = []string{
	"subject_id", "benefit_type", "type_description", "state", "start_date", "end_date",
	"amount_cents", "formatted_amount", "description", "verification", "last_reason",
	"revoked_on", "in_force", "days_remaining", "version", "last_event_id",
	"last_event_type", "updated_at",
}

func (r *benefitViewRepo) Upsert(dbc dbctx.Context, v *types.BenefitView) (bool, error) {
	if v == nil || v.AggregateID == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "aggregate_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "benefit_view.version < excluded.version"},
		}},
	}).Create(v)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *benefitViewRepo) Search(dbc dbctx.Context, f ViewFilter) ([]*types.BenefitView, int64, error) {
	filtered := func() *gorm.DB {
		q := dbc.DB(r.db).Model(&types.BenefitView{})
		if s := strings.TrimSpace(f.SubjectID); s != "" {
			q = q.Where("subject_id = ?", s)
		}
		if s := strings.TrimSpace(f.State); s != "" {
			q = q.Where("state = ?", strings.ToUpper(s))
		}
		if s := strings.TrimSpace(f.BenefitType); s != "" {
			q = q.Where("benefit_type = ?", strings.ToUpper(s))
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	var out []*types.BenefitView
	err := filtered().
		Order("start_date DESC").
		Order("aggregate_id ASC").
		Offset(f.Offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *benefitViewRepo) ListBySubject(dbc dbctx.Context, subjectID string) ([]*types.BenefitView, error) {
	var out []*types.BenefitView
	err := dbc.DB(r.db).
		Where("subject_id = ?", strings.TrimSpace(subjectID)).
		Order("start_date DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
