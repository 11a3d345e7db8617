package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

var ErrUnknownEventType = errors.New("no projection for event type")

// applyFunc adjusts the view built from the event payload for one event type.
type applyFunc func(v *types.BenefitView, ev events.Event, p events.BenefitPayload) error

// Projector folds benefit events into the read model. Applying an event
// whose version is not newer than the stored row is a no-op.
type Projector struct {
	log      *logger.Logger
	views    repos.BenefitViewRepo
	metrics  *observability.Metrics
	handlers map[events.Type]applyFunc
	now      func() time.Time
}

func NewProjector(baseLog *logger.Logger, views repos.BenefitViewRepo, metrics *observability.Metrics) *Projector {
	return &Projector{
		log:     baseLog.With("component", "BenefitProjector"),
		views:   views,
		metrics: metrics,
		handlers: map[events.Type]applyFunc{
			events.BenefitAssigned:   applyAssigned,
			events.BenefitApproved:   applyCleared,
			events.BenefitSuspended:  applyReason,
			events.BenefitReinstated: applyCleared,
			events.BenefitRevoked:    applyRevoked,
			events.BenefitModified:   applyReason,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Apply projects ev and reports whether the view changed.
func (p *Projector) Apply(ctx context.Context, ev events.Event) (bool, error) {
	apply, ok := p.handlers[ev.Type]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
	payload, err := ev.BenefitPayload()
	if err != nil {
		return false, err
	}
	v, err := baseView(ev, payload)
	if err != nil {
		return false, err
	}
	if err := apply(v, ev, payload); err != nil {
		return false, err
	}
	v.Refresh(p.now())

	changed, err := p.views.Upsert(dbctx.Context{Ctx: ctx}, v)
	if err != nil {
		p.metrics.ObserveProjection(string(ev.Type), "error", ev.OccurredAt)
		return false, err
	}
	if !changed {
		p.log.Debug("stale event skipped", "event_id", ev.EventID, "aggregate_id", ev.AggregateID, "version", ev.Version)
		p.metrics.ObserveProjection(string(ev.Type), "stale", ev.OccurredAt)
		return false, nil
	}
	p.metrics.ObserveProjection(string(ev.Type), "applied", ev.OccurredAt)
	return true, nil
}

func baseView(ev events.Event, p events.BenefitPayload) (*types.BenefitView, error) {
	start, err := parseDay("startDate", p.StartDate)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, fmt.Errorf("event %s: startDate missing", ev.EventID)
	}
	end, err := parseDay("endDate", p.EndDate)
	if err != nil {
		return nil, err
	}
	typ := benefits.Type(p.BenefitType)
	return &types.BenefitView{
		AggregateID:     ev.AggregateID,
		SubjectID:       p.SubjectID,
		BenefitType:     p.BenefitType,
		TypeDescription: typ.Description(),
		State:           p.State,
		StartDate:       *start,
		EndDate:         end,
		AmountCents:     p.AmountCents,
		FormattedAmount: benefits.FormatAmountPtr(p.AmountCents),
		Description:     p.Description,
		Verification:    p.Verification,
		Version:         ev.Version,
		LastEventID:     ev.EventID,
		LastEventType:   string(ev.Type),
		AssignedAt:      ev.OccurredAt,
		UpdatedAt:       ev.OccurredAt,
	}, nil
}

func applyAssigned(v *types.BenefitView, ev events.Event, _ events.BenefitPayload) error {
	v.AssignedAt = ev.OccurredAt
	return nil
}

func applyCleared(v *types.BenefitView, _ events.Event, _ events.BenefitPayload) error {
	v.LastReason = ""
	return nil
}

func applyReason(v *types.BenefitView, _ events.Event, p events.BenefitPayload) error {
	v.LastReason = p.Reason
	return nil
}

func applyRevoked(v *types.BenefitView, _ events.Event, p events.BenefitPayload) error {
	on, err := parseDay("effectiveDate", p.EffectiveDate)
	if err != nil {
		return err
	}
	v.LastReason = p.Reason
	v.RevokedOn = on
	return nil
}

func parseDay(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(events.DateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &t, nil
}
