package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/benefits-backend/internal/data/db"
	"github.com/yungbote/benefits-backend/internal/jobs/worker"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/config"
	"github.com/yungbote/benefits-backend/internal/projection"
	"github.com/yungbote/benefits-backend/internal/services"
)

const (
	BrokerRedis  = "redis"
	BrokerMemory = "memory"
)

type Config struct {
	Env          string   `env:"APP_ENV" envDefault:"development"`
	LogMode      string   `env:"LOG_MODE" envDefault:"development"`
	Version      string   `env:"APP_VERSION"`
	HTTPAddr     string   `env:"HTTP_ADDR" envDefault:":8080"`
	ServiceName  string   `env:"OTEL_SERVICE_NAME" envDefault:"benefits-backend"`
	AllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:","`
	JWTSecret    string   `env:"JWT_SECRET"`

	DatabaseDriver   string        `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	PostgresHost     string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     string        `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string        `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string        `env:"POSTGRES_PASSWORD"`
	PostgresName     string        `env:"POSTGRES_NAME" envDefault:"benefits"`
	SQLitePath       string        `env:"SQLITE_PATH" envDefault:"benefits.db"`
	DBMaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns   int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnLifetime   time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	Broker           string        `env:"BROKER" envDefault:"redis"`
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	BrokerPartitions int           `env:"BROKER_PARTITIONS" envDefault:"4"`
	BrokerRetryDelay time.Duration `env:"BROKER_RETRY_DELAY" envDefault:"1s"`

	ValidationBaseURL        string        `env:"VALIDATION_BASE_URL"`
	NotificationBaseURL      string        `env:"NOTIFICATION_BASE_URL"`
	UpstreamTimeout          time.Duration `env:"UPSTREAM_HTTP_TIMEOUT" envDefault:"10s"`
	NotificationQueue        int           `env:"NOTIFICATION_QUEUE_SIZE" envDefault:"256"`
	ValidationFallbackPolicy string        `env:"VALIDATION_FALLBACK_POLICY" envDefault:"pending"`
	ResiliencePolicyFile     string        `env:"RESILIENCE_POLICY_FILE"`

	IdempotencyTTL           time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencySweepInterval time.Duration `env:"IDEMPOTENCY_SWEEP_INTERVAL" envDefault:"1h"`

	ProjectorEnabled bool `env:"PROJECTOR_ENABLED" envDefault:"true"`

	Outbox    worker.RelayConfig
	Projector projection.ConsumerConfig
	Tracing   observability.OtelConfig
}

// LoadConfig reads the environment and rejects unknown enumerations early.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	switch c.DatabaseDriver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER: unsupported %q", c.DatabaseDriver)
	}
	c.Broker = strings.ToLower(strings.TrimSpace(c.Broker))
	switch c.Broker {
	case BrokerRedis, BrokerMemory:
	default:
		return fmt.Errorf("BROKER: unsupported %q", c.Broker)
	}
	if _, err := services.ParseFallbackPolicy(c.ValidationFallbackPolicy); err != nil {
		return fmt.Errorf("VALIDATION_FALLBACK_POLICY: %w", err)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}
	return nil
}

func (c Config) database() db.Config {
	return db.Config{
		Driver:          c.DatabaseDriver,
		URL:             c.DatabaseURL,
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPassword,
		Name:            c.PostgresName,
		SQLitePath:      c.SQLitePath,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnLifetime,
	}
}
