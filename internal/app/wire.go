package app

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/benefits-backend/internal/clients/notification"
	"github.com/yungbote/benefits-backend/internal/clients/validation"
	dataagg "github.com/yungbote/benefits-backend/internal/data/aggregates"
	"github.com/yungbote/benefits-backend/internal/data/repos"
	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	apphttp "github.com/yungbote/benefits-backend/internal/http"
	httpH "github.com/yungbote/benefits-backend/internal/http/handlers"
	httpMW "github.com/yungbote/benefits-backend/internal/http/middleware"
	"github.com/yungbote/benefits-backend/internal/jobs/worker"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
	"github.com/yungbote/benefits-backend/internal/platform/resilience"
	"github.com/yungbote/benefits-backend/internal/projection"
	"github.com/yungbote/benefits-backend/internal/services"
)

type Repos struct {
	Benefits    repos.BenefitRepo
	Views       repos.BenefitViewRepo
	Outcomes    repos.IdempotencyRecordRepo
	Outbox      repos.OutboxRepo
	DeadLetters repos.DeadLetterRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Benefits:    repos.NewBenefitRepo(db, log),
		Views:       repos.NewBenefitViewRepo(db, log),
		Outcomes:    repos.NewIdempotencyRecordRepo(db, log),
		Outbox:      repos.NewOutboxRepo(db, log),
		DeadLetters: repos.NewDeadLetterRepo(db, log),
	}
}

// Core is the write and query side of the API process.
type Core struct {
	Breakers    *resilience.Registry
	Idempotency services.IdempotencyService
	Notifier    services.Notifier
	Commands    services.BenefitCommandService
	Queries     services.BenefitQueryService
	DeadLetters services.DeadLetterService
	Aggregate   domainagg.BenefitAggregate
}

func wireCore(a *App) (*Core, error) {
	log, cfg := a.Log, a.Cfg
	log.Info("Wiring services...")

	defaults, err := resilience.PolicyFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resilience policy: %w", err)
	}
	overrides, err := resilience.LoadPolicyFile(cfg.ResiliencePolicyFile)
	if err != nil {
		return nil, err
	}
	registry := resilience.NewRegistry(log, a.Metrics, defaults, overrides)
	invoker := resilience.NewInvoker(registry)

	var validationClient validation.Client
	if strings.TrimSpace(cfg.ValidationBaseURL) != "" {
		validationClient, err = validation.New(log, validation.Config{BaseURL: cfg.ValidationBaseURL, Timeout: cfg.UpstreamTimeout})
		if err != nil {
			return nil, fmt.Errorf("init validation client: %w", err)
		}
	} else {
		log.Warn("VALIDATION_BASE_URL not set; every eligibility check is degraded")
	}
	var notificationClient notification.Client
	if strings.TrimSpace(cfg.NotificationBaseURL) != "" {
		notificationClient, err = notification.New(log, notification.Config{BaseURL: cfg.NotificationBaseURL, Timeout: cfg.UpstreamTimeout})
		if err != nil {
			return nil, fmt.Errorf("init notification client: %w", err)
		}
	} else {
		log.Warn("NOTIFICATION_BASE_URL not set; notifications are disabled")
	}

	policy, err := services.ParseFallbackPolicy(cfg.ValidationFallbackPolicy)
	if err != nil {
		return nil, err
	}

	aggregate := dataagg.NewBenefitAggregate(dataagg.BenefitAggregateDeps{
		Base:     dataagg.BaseDeps{DB: a.DB, Log: log, Hooks: a.Metrics},
		Benefits: a.Repos.Benefits,
		Outbox:   a.Repos.Outbox,
		Outcomes: a.Repos.Outcomes,
		Topic:    cfg.Projector.Topic,
	})
	idem := services.NewIdempotencyService(log, a.Repos.Outcomes, cfg.IdempotencyTTL, a.Metrics)
	notifier := services.NewNotifier(log, notificationClient, invoker, a.Metrics, cfg.NotificationQueue)

	core := &Core{
		Breakers:    registry,
		Idempotency: idem,
		Notifier:    notifier,
		Aggregate:   aggregate,
		Commands: services.NewBenefitCommandService(log, services.BenefitCommandDeps{
			Aggregate:   aggregate,
			Benefits:    a.Repos.Benefits,
			Idempotency: idem,
			Eligibility: services.NewEligibilityChecker(log, validationClient, invoker),
			Notifier:    notifier,
			Metrics:     a.Metrics,
			Policy:      policy,
		}),
		Queries:     services.NewBenefitQueryService(log, a.Repos.Views),
		DeadLetters: services.NewDeadLetterService(log, a.Repos.DeadLetters, a.Broker),
	}
	return core, nil
}

func (a *App) wireProjection() {
	cfg := a.Cfg.Projector
	projector := projection.NewProjector(a.Log, a.Repos.Views, a.Metrics)
	consumer := projection.NewConsumer(a.Log, a.Broker, projector, a.Metrics, cfg)
	dlt := projection.NewDeadLetterConsumer(a.Log, a.Broker, a.Repos.DeadLetters, cfg.Topic)
	a.add("projector", consumer.Run)
	a.add("dead-letter-consumer", dlt.Run)
}

func (a *App) wireAPI(core *Core) {
	cfg := a.Cfg
	a.Log.Info("Wiring handlers...")
	server := apphttp.NewServer(apphttp.RouterConfig{
		Log:            a.Log,
		Metrics:        a.Metrics,
		ServiceName:    cfg.ServiceName,
		AllowOrigins:   cfg.AllowOrigins,
		AuthMiddleware: httpMW.NewAuthMiddleware(a.Log, cfg.JWTSecret),
		CommandHandler: httpH.NewCommandHandler(core.Commands),
		QueryHandler:   httpH.NewQueryHandler(core.Queries),
		OpsHandler:     httpH.NewOpsHandler(core.DeadLetters, core.Breakers),
		HealthHandler:  httpH.NewHealthHandler(core.Breakers, a.dbService.Ping),
	})
	relay := worker.NewOutboxRelay(a.Log, a.Repos.Outbox, a.Broker, a.Metrics, cfg.Outbox)

	a.add("http", func(ctx context.Context) error { return server.Run(ctx, cfg.HTTPAddr) })
	a.add("outbox-relay", relay.Run)
	a.add("idempotency-sweeper", func(ctx context.Context) error {
		return core.Idempotency.RunSweeper(ctx, cfg.IdempotencySweepInterval)
	})
	a.add("notifier", core.Notifier.Run)
}
