package domain

import (
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/domain/commands"
	"github.com/yungbote/benefits-backend/internal/domain/events"
)

type (
	Benefit           = benefits.Benefit
	BenefitView       = benefits.BenefitView
	SubjectSummary    = benefits.SubjectSummary
	IdempotencyRecord = commands.IdempotencyRecord
	OutboxEvent       = events.OutboxEvent
	DeadLetterRecord  = events.DeadLetterRecord
)

// Models lists every persisted model, in migration order.
func Models() []any {
	return []any{
		&Benefit{},
		&IdempotencyRecord{},
		&OutboxEvent{},
		&BenefitView{},
		&DeadLetterRecord{},
	}
}
