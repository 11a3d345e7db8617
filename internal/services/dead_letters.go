package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	types "github.com/yungbote/benefits-backend/internal/domain"
	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/messaging/broker"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type DeadLetterPage struct {
	Items []*types.DeadLetterRecord `json:"items"`
	Page  int                       `json:"page"`
	Size  int                       `json:"size"`
	Total int64                     `json:"total"`
}

// DeadLetterService is the manual remediation surface over recorded dead
// letters. Replaying republishes the original event; the row is flagged,
// never removed.
type DeadLetterService interface {
	List(ctx context.Context, status string, page, size int) (DeadLetterPage, error)
	Replay(ctx context.Context, id uuid.UUID, actorID string) (*types.DeadLetterRecord, error)
}

type deadLetterService struct {
	log    *logger.Logger
	repo   repos.DeadLetterRepo
	broker broker.Broker
	now    func() time.Time
}

func NewDeadLetterService(log *logger.Logger, repo repos.DeadLetterRepo, br broker.Broker) DeadLetterService {
	return &deadLetterService{
		log:    log.With("service", "DeadLetterService"),
		repo:   repo,
		broker: br,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *deadLetterService) List(ctx context.Context, status string, page, size int) (DeadLetterPage, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != events.DeadLetterOpen && status != events.DeadLetterReplayed {
		return DeadLetterPage{}, domainagg.NewError(domainagg.CodeValidation, "dead_letters.list", "unknown status "+status, nil)
	}
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	items, total, err := s.repo.List(dbctx.Context{Ctx: ctx}, status, page*size, size)
	if err != nil {
		return DeadLetterPage{}, err
	}
	if items == nil {
		items = []*types.DeadLetterRecord{}
	}
	return DeadLetterPage{Items: items, Page: page, Size: size, Total: total}, nil
}

func (s *deadLetterService) Replay(ctx context.Context, id uuid.UUID, actorID string) (*types.DeadLetterRecord, error) {
	const op = "dead_letters.replay"
	dbc := dbctx.Context{Ctx: ctx}
	row, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, "dead letter not found", nil)
	}
	if row.Status != events.DeadLetterOpen {
		return nil, domainagg.NewError(domainagg.CodeStateConflict, op, "dead letter already replayed", nil)
	}
	dl, err := events.DecodeDeadLetter(row.Envelope)
	if err != nil || dl.EventID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodePreconditionFailed, op, "dead letter does not hold a replayable event", err)
	}
	body, err := json.Marshal(dl.Event)
	if err != nil {
		return nil, err
	}
	if err := s.broker.Publish(ctx, row.SourceTopic, dl.AggregateID.String(), body); err != nil {
		return nil, domainagg.Wrap(domainagg.CodeDependency, op, err)
	}
	now := s.now()
	if _, err := s.repo.MarkReplayed(dbc, id, actorID, now); err != nil {
		return nil, err
	}
	s.log.Info("dead letter replayed", "dead_letter_id", id, "event_id", dl.EventID, "actor_id", actorID)
	row.Status = events.DeadLetterReplayed
	row.ReplayedAt = &now
	row.ReplayedBy = actorID
	return row, nil
}
