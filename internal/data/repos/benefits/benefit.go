package benefits

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type BenefitRepo interface {
	Create(dbc dbctx.Context, b *types.Benefit) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Benefit, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Benefit, error)

	// SaveVersioned writes b only when the stored version equals expectedVersion.
	SaveVersioned(dbc dbctx.Context, b *types.Benefit, expectedVersion int64) (bool, error)

	ExistsLive(dbc dbctx.Context, subjectID string, benefitType benefits.Type) (bool, error)

	// LockSubjectType serialises assignments of one type to one subject until
	// the surrounding transaction ends. It is a no-op outside Postgres.
	LockSubjectType(dbc dbctx.Context, subjectID string, benefitType benefits.Type) error
}

type benefitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBenefitRepo(db *gorm.DB, baseLog *logger.Logger) BenefitRepo {
	return &benefitRepo{db: db, log: baseLog.With("repo", "BenefitRepo")}
}

func (r *benefitRepo) Create(dbc dbctx.Context, b *types.Benefit) error {
	if b == nil {
		return nil
	}
	return dbc.DB(r.db).Create(b).Error
}

func (r *benefitRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Benefit, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Benefit
	err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *benefitRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Benefit, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Benefit
	err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *benefitRepo) SaveVersioned(dbc dbctx.Context, b *types.Benefit, expectedVersion int64) (bool, error) {
	res := dbc.DB(r.db).
		Model(&types.Benefit{}).
		Where("id = ? AND version = ?", b.ID, expectedVersion).
		Updates(map[string]interface{}{
			"state":             b.State,
			"end_date":          b.EndDate,
			"amount_cents":      b.AmountCents,
			"description":       b.Description,
			"verification":      b.Verification,
			"suspension_reason": b.SuspensionReason,
			"revocation_reason": b.RevocationReason,
			"revoked_on":        b.RevokedOn,
			"version":           b.Version,
			"updated_by":        b.UpdatedBy,
			"updated_at":        b.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *benefitRepo) ExistsLive(dbc dbctx.Context, subjectID string, benefitType benefits.Type) (bool, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Benefit{}).
		Where("subject_id = ? AND benefit_type = ? AND state IN ?", subjectID, benefitType, benefits.LiveStates).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *benefitRepo) LockSubjectType(dbc dbctx.Context, subjectID string, benefitType benefits.Type) error {
	tx := dbc.DB(r.db)
	if tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "benefit:"+subjectID+":"+string(benefitType)).Error
}
