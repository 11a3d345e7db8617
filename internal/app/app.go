package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/benefits-backend/internal/data/db"
	"github.com/yungbote/benefits-backend/internal/messaging/broker"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

// Role selects which loops a process runs.
type Role string

const (
	// RoleAll serves the API and runs the relay, sweeper and, unless
	// PROJECTOR_ENABLED is false, the consumers.
	RoleAll Role = "all"
	// RoleProjector runs only the projection and dead-letter consumers.
	RoleProjector Role = "projector"
)

type runner struct {
	name string
	run  func(ctx context.Context) error
}

type App struct {
	Log     *logger.Logger
	Cfg     Config
	Role    Role
	DB      *gorm.DB
	Broker  broker.Broker
	Metrics *observability.Metrics
	Repos   Repos
	Core    *Core

	dbService    *db.Service
	redis        goredis.UniversalClient
	runners      []runner
	shutdownOTel func(context.Context) error
}

func New(ctx context.Context, role Role) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg, Role: role}

	serviceName := cfg.ServiceName
	if role == RoleProjector {
		serviceName += "-projector"
	}
	tracing := cfg.Tracing
	tracing.ServiceName = serviceName
	tracing.Environment = cfg.Env
	tracing.Version = cfg.Version
	a.shutdownOTel = observability.InitOTel(ctx, log, tracing)
	a.Metrics = observability.Init(log)

	if err := a.openDatabase(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openBroker(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Repos = wireRepos(a.DB, log)

	if role == RoleProjector || cfg.ProjectorEnabled {
		a.wireProjection()
	}
	if role == RoleAll {
		core, err := wireCore(a)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Core = core
		a.wireAPI(core)
	}
	return a, nil
}

func (a *App) openDatabase() error {
	svc, err := db.Open(a.Cfg.database(), a.Log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.dbService = svc
	a.DB = svc.DB()
	if err := svc.AutoMigrateAll(); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

func (a *App) openBroker(ctx context.Context) error {
	bcfg := broker.Config{Partitions: a.Cfg.BrokerPartitions, RetryDelay: a.Cfg.BrokerRetryDelay}
	switch a.Cfg.Broker {
	case BrokerMemory:
		if a.Role == RoleProjector {
			a.Log.Warn("in-memory broker in a projector-only process receives nothing")
		}
		a.Broker = broker.NewMemory(a.Log, bcfg)
		return nil
	default:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     a.Cfg.RedisAddr,
			Password: a.Cfg.RedisPassword,
			DB:       a.Cfg.RedisDB,
		})
		br, err := broker.NewRedis(ctx, a.Log, rdb, bcfg)
		if err != nil {
			_ = rdb.Close()
			return fmt.Errorf("init redis broker: %w", err)
		}
		a.redis = rdb
		a.Broker = br
		return nil
	}
}

func (a *App) add(name string, run func(ctx context.Context) error) {
	a.runners = append(a.runners, runner{name: name, run: run})
}

// Run starts every loop and blocks until ctx is cancelled or one of them
// fails, which stops the rest.
func (a *App) Run(ctx context.Context) error {
	if a == nil || len(a.runners) == 0 {
		return fmt.Errorf("app not initialized")
	}
	a.Metrics.StartCollectors(ctx, a.Log, a.DB, a.redis)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range a.runners {
		r := r
		g.Go(func() error {
			a.Log.Info("starting", "loop", r.name)
			err := r.run(gctx)
			if err != nil && gctx.Err() == nil {
				a.Log.Error("loop failed", "loop", r.name, "error", err)
				return fmt.Errorf("%s: %w", r.name, err)
			}
			a.Log.Info("stopped", "loop", r.name)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Log.Warn("broker close", "error", err)
		}
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("database close", "error", err)
		}
	}
	if a.shutdownOTel != nil {
		if err := a.shutdownOTel(context.Background()); err != nil {
			a.Log.Warn("otel shutdown", "error", err)
		}
	}
	a.Log.Sync()
}
