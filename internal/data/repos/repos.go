package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/benefits-backend/internal/data/repos/benefits"
	"github.com/yungbote/benefits-backend/internal/data/repos/commands"
	"github.com/yungbote/benefits-backend/internal/data/repos/messaging"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type BenefitRepo = benefits.BenefitRepo
type BenefitViewRepo = benefits.BenefitViewRepo
type ViewFilter = benefits.ViewFilter

type IdempotencyRecordRepo = commands.IdempotencyRecordRepo

type OutboxRepo = messaging.OutboxRepo
type DeadLetterRepo = messaging.DeadLetterRepo

func NewBenefitRepo(db *gorm.DB, log *logger.Logger) BenefitRepo {
	return benefits.NewBenefitRepo(db, log)
}

func NewBenefitViewRepo(db *gorm.DB, log *logger.Logger) BenefitViewRepo {
	return benefits.NewBenefitViewRepo(db, log)
}

func NewIdempotencyRecordRepo(db *gorm.DB, log *logger.Logger) IdempotencyRecordRepo {
	return commands.NewIdempotencyRecordRepo(db, log)
}

func NewOutboxRepo(db *gorm.DB, log *logger.Logger) OutboxRepo {
	return messaging.NewOutboxRepo(db, log)
}

func NewDeadLetterRepo(db *gorm.DB, log *logger.Logger) DeadLetterRepo {
	return messaging.NewDeadLetterRepo(db, log)
}
