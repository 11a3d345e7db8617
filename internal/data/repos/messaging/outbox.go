package messaging

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type OutboxRepo interface {
	Create(dbc dbctx.Context, rows []*types.OutboxEvent) error

	// ClaimBatch leases up to limit due rows to owner for lease. Only the
	// oldest pending row of each aggregate is eligible, so a row waiting out
	// a retry holds back everything after it.
	ClaimBatch(dbc dbctx.Context, owner string, limit int, lease time.Duration, now time.Time) ([]*types.OutboxEvent, error)

	MarkPublished(dbc dbctx.Context, id uuid.UUID, owner string, now time.Time) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, owner string, lastErr string, nextAttemptAt time.Time) error

	CountPending(dbc dbctx.Context) (int64, error)
}

type outboxRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOutboxRepo(db *gorm.DB, baseLog *logger.Logger) OutboxRepo {
	return &outboxRepo{db: db, log: baseLog.With("repo", "OutboxRepo")}
}

func (r *outboxRepo) Create(dbc dbctx.Context, rows []*types.OutboxEvent) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.DB(r.db).Create(&rows).Error
}

func (r *outboxRepo) ClaimBatch(dbc dbctx.Context, owner string, limit int, lease time.Duration, now time.Time) ([]*types.OutboxEvent, error) {
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	var claimed []*types.OutboxEvent
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var rows []*types.OutboxEvent
		err := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", events.OutboxPending, now).
			Where("lease_until IS NULL OR lease_until < ?", now).
			Where(`NOT EXISTS (SELECT 1 FROM outbox_event older
				WHERE older.aggregate_id = outbox_event.aggregate_id
				AND older.status = ? AND older.created_at < outbox_event.created_at)`, events.OutboxPending).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		until := now.Add(lease)
		if err := txx.Model(&types.OutboxEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"lease_owner": owner,
				"lease_until": until,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}
		for _, row := range rows {
			row.LeaseOwner = owner
			row.LeaseUntil = &until
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *outboxRepo) MarkPublished(dbc dbctx.Context, id uuid.UUID, owner string, now time.Time) error {
	now = now.UTC()
	return dbc.DB(r.db).Model(&types.OutboxEvent{}).
		Where("id = ? AND lease_owner = ?", id, owner).
		Updates(map[string]interface{}{
			"status":       events.OutboxPublished,
			"published_at": now,
			"lease_owner":  "",
			"lease_until":  nil,
			"last_error":   "",
			"updated_at":   now,
		}).Error
}

func (r *outboxRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, owner string, lastErr string, nextAttemptAt time.Time) error {
	return dbc.DB(r.db).Model(&types.OutboxEvent{}).
		Where("id = ? AND lease_owner = ?", id, owner).
		Updates(map[string]interface{}{
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_error":      lastErr,
			"next_attempt_at": nextAttemptAt.UTC(),
			"lease_owner":     "",
			"lease_until":     nil,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *outboxRepo) CountPending(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.OutboxEvent{}).Where("status = ?", events.OutboxPending).Count(&n).Error
	return n, err
}
