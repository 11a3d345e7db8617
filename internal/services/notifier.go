package services

import (
	"context"

	"github.com/yungbote/benefits-backend/internal/clients/notification"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
	"github.com/yungbote/benefits-backend/internal/platform/resilience"
)

const DependencyNotification = "notification"

// Notifier delivers lifecycle notices off the command path. Delivery
// failures are logged and counted, never surfaced to the command.
type Notifier interface {
	Notify(n notification.Notice)
	Run(ctx context.Context) error
}

type notifier struct {
	log     *logger.Logger
	client  notification.Client
	invoker *resilience.Invoker
	metrics *observability.Metrics
	queue   chan notification.Notice
}

func NewNotifier(log *logger.Logger, client notification.Client, invoker *resilience.Invoker, metrics *observability.Metrics, buffer int) Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &notifier{
		log:     log.With("service", "Notifier"),
		client:  client,
		invoker: invoker,
		metrics: metrics,
		queue:   make(chan notification.Notice, buffer),
	}
}

// Notify enqueues n without blocking; a full queue drops it.
func (s *notifier) Notify(n notification.Notice) {
	if s == nil || s.client == nil {
		return
	}
	select {
	case s.queue <- n:
	default:
		s.log.Warn("notification queue full, dropping notice", "benefit_id", n.BenefitID, "event_type", n.EventType)
		s.metrics.IncSideEffect("notification", "dropped")
	}
}

func (s *notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-s.queue:
			s.deliver(ctx, n)
		}
	}
}

func (s *notifier) deliver(ctx context.Context, n notification.Notice) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notification delivery panic", "panic", r)
			s.metrics.IncSideEffect("notification", "panic")
		}
	}()
	out, err := resilience.Call(ctx, s.invoker, DependencyNotification, n, s.client.Send,
		func(notification.Notice) notification.Receipt { return notification.Receipt{Status: "skipped"} })
	if err != nil || out.Degraded {
		s.log.Warn("notification not delivered", "benefit_id", n.BenefitID, "event_type", n.EventType, "reason", out.Reason)
		s.metrics.IncSideEffect("notification", "degraded")
		return
	}
	s.metrics.IncSideEffect("notification", "sent")
}
