package messaging

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type DeadLetterRepo interface {
	// Record stores a dead letter once per event id; redeliveries refresh the
	// failure details of an open row.
	Record(dbc dbctx.Context, row *types.DeadLetterRecord) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DeadLetterRecord, error)
	List(dbc dbctx.Context, status string, offset, limit int) ([]*types.DeadLetterRecord, int64, error)
	MarkReplayed(dbc dbctx.Context, id uuid.UUID, actorID string, now time.Time) (bool, error)
}

type deadLetterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeadLetterRepo(db *gorm.DB, baseLog *logger.Logger) DeadLetterRepo {
	return &deadLetterRepo{db: db, log: baseLog.With("repo", "DeadLetterRepo")}
}

func (r *deadLetterRepo) Record(dbc dbctx.Context, row *types.DeadLetterRecord) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = events.DeadLetterOpen
	}
	return dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"failure_reason", "attempt_count", "envelope", "status", "updated_at"}),
	}).Create(row).Error
}

func (r *deadLetterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DeadLetterRecord, error) {
	var out types.DeadLetterRecord
	err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *deadLetterRepo) List(dbc dbctx.Context, status string, offset, limit int) ([]*types.DeadLetterRecord, int64, error) {
	scoped := func() *gorm.DB {
		q := dbc.DB(r.db).Model(&types.DeadLetterRecord{})
		if s := strings.TrimSpace(status); s != "" {
			q = q.Where("status = ?", s)
		}
		return q
	}
	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*types.DeadLetterRecord
	if err := scoped().Order("created_at DESC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *deadLetterRepo) MarkReplayed(dbc dbctx.Context, id uuid.UUID, actorID string, now time.Time) (bool, error) {
	now = now.UTC()
	res := dbc.DB(r.db).Model(&types.DeadLetterRecord{}).
		Where("id = ? AND status = ?", id, events.DeadLetterOpen).
		Updates(map[string]interface{}{
			"status":      events.DeadLetterReplayed,
			"replayed_at": now,
			"replayed_by": actorID,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
