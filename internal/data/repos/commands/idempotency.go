package commands

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type IdempotencyRecordRepo interface {
	Get(dbc dbctx.Context, key string) (*types.IdempotencyRecord, error)

	// Insert stores rec unless the key already exists. It reports whether
	// this call created the row.
	Insert(dbc dbctx.Context, rec *types.IdempotencyRecord) (bool, error)

	DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error)
	DeleteExpiredKey(dbc dbctx.Context, key string, now time.Time) (int64, error)
}

type idempotencyRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIdempotencyRecordRepo(db *gorm.DB, baseLog *logger.Logger) IdempotencyRecordRepo {
	return &idempotencyRecordRepo{db: db, log: baseLog.With("repo", "IdempotencyRecordRepo")}
}

func (r *idempotencyRecordRepo) Get(dbc dbctx.Context, key string) (*types.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var out types.IdempotencyRecord
	err := dbc.DB(r.db).Where("idempotency_key = ?", key).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *idempotencyRecordRepo) Insert(dbc dbctx.Context, rec *types.IdempotencyRecord) (bool, error) {
	if rec == nil || strings.TrimSpace(rec.Key) == "" {
		return false, errors.New("idempotency record requires a key")
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *idempotencyRecordRepo) DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error) {
	res := dbc.DB(r.db).Where("expires_at < ?", now.UTC()).Delete(&types.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}

func (r *idempotencyRecordRepo) DeleteExpiredKey(dbc dbctx.Context, key string, now time.Time) (int64, error) {
	res := dbc.DB(r.db).
		Where("idempotency_key = ? AND expires_at <= ?", key, now.UTC()).
		Delete(&types.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
