package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	aggregateOps       *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	commands    *CounterVec
	idempotency *CounterVec
	idemSwept   *CounterVec

	dependencyCalls   *CounterVec
	dependencyLatency *HistogramVec
	breakerState      *GaugeVec
	breakerChanges    *CounterVec

	outboxPublished *CounterVec
	outboxPending   *Gauge

	projections    *CounterVec
	projectionLag  *HistogramVec
	deadLetters    *CounterVec
	sideEffects    *CounterVec
	workerErrors   *CounterVec
	pgStats        *GaugeVec
	redisUp        *Gauge
	redisPing      *Gauge
	collectorsOnce sync.Once
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED"))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS")))
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// Init builds the process-wide registry when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New returns an unregistered metrics set.
func New() *Metrics {
	latency := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	return &Metrics{
		apiRequests: NewCounterVec("benefits_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("benefits_api_request_duration_seconds", "API latency by method/route/status.", []string{"method", "route", "status"}, latency),
		apiInflight: NewGauge("benefits_api_inflight_requests", "In-flight API requests."),

		aggregateOps:       NewHistogramVec("benefits_aggregate_operation_duration_seconds", "Aggregate write duration by operation/status.", []string{"operation", "status"}, latency),
		aggregateConflicts: NewCounterVec("benefits_aggregate_conflicts_total", "Aggregate writes rejected with a conflict.", []string{"operation"}),
		aggregateRetries:   NewCounterVec("benefits_aggregate_retryable_total", "Aggregate writes failing with a retryable error.", []string{"operation"}),

		commands:    NewCounterVec("benefits_commands_total", "Commands handled by type/outcome.", []string{"command", "outcome"}),
		idempotency: NewCounterVec("benefits_idempotency_checks_total", "Idempotency decisions by result.", []string{"result"}),
		idemSwept:   NewCounterVec("benefits_idempotency_expired_total", "Expired idempotency records removed.", []string{"source"}),

		dependencyCalls:   NewCounterVec("benefits_dependency_calls_total", "Guarded dependency calls by dependency/result.", []string{"dependency", "result"}),
		dependencyLatency: NewHistogramVec("benefits_dependency_call_duration_seconds", "Guarded dependency call duration.", []string{"dependency", "result"}, latency),
		breakerState:      NewGaugeVec("benefits_circuit_breaker_state", "Breaker state per dependency (0 closed, 1 half-open, 2 open).", []string{"dependency"}),
		breakerChanges:    NewCounterVec("benefits_circuit_breaker_transitions_total", "Breaker state changes.", []string{"dependency", "from", "to"}),

		outboxPublished: NewCounterVec("benefits_outbox_publish_total", "Outbox publish attempts by result.", []string{"result"}),
		outboxPending:   NewGauge("benefits_outbox_pending", "Outbox rows not yet published."),

		projections:   NewCounterVec("benefits_projection_events_total", "Projected events by type/result.", []string{"event_type", "result"}),
		projectionLag: NewHistogramVec("benefits_projection_lag_seconds", "Delay between event occurrence and projection.", []string{"event_type"}, []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60, 300}),
		deadLetters:   NewCounterVec("benefits_dead_letters_total", "Events routed to the dead-letter topic.", []string{"event_type"}),
		sideEffects:   NewCounterVec("benefits_side_effects_total", "Non-critical side effects by kind/result.", []string{"kind", "result"}),
		workerErrors:  NewCounterVec("benefits_worker_errors_total", "Background loop failures by worker.", []string{"worker"}),
		pgStats:       NewGaugeVec("benefits_db_pool", "database/sql pool statistics.", []string{"stat"}),
		redisUp:       NewGauge("benefits_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing:     NewGauge("benefits_redis_ping_seconds", "Last Redis ping latency."),
	}
}

func (m *Metrics) collectors() []collector {
	return []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateOps, m.aggregateConflicts, m.aggregateRetries,
		m.commands, m.idempotency, m.idemSwept,
		m.dependencyCalls, m.dependencyLatency, m.breakerState, m.breakerChanges,
		m.outboxPublished, m.outboxPending,
		m.projections, m.projectionLag, m.deadLetters, m.sideEffects, m.workerErrors,
		m.pgStats, m.redisUp, m.redisPing,
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors() {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(dur.Seconds(), op, status)
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m != nil {
		m.aggregateConflicts.Inc(op)
	}
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m != nil {
		m.aggregateRetries.Inc(op)
	}
}

// IncCommand counts a handled command. outcome is one of success, replayed,
// degraded, rejected or failed.
func (m *Metrics) IncCommand(command, outcome string) {
	if m != nil {
		m.commands.Inc(command, outcome)
	}
}

func (m *Metrics) IncIdempotency(result string) {
	if m != nil {
		m.idempotency.Inc(result)
	}
}

func (m *Metrics) AddIdempotencyExpired(source string, n int64) {
	if m != nil && n > 0 {
		m.idemSwept.Add(float64(n), source)
	}
}

func (m *Metrics) ObserveDependencyCall(dependency, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.dependencyCalls.Inc(dependency, result)
	m.dependencyLatency.Observe(dur.Seconds(), dependency, result)
}

// SetBreakerState records a breaker transition and the resulting state.
func (m *Metrics) SetBreakerState(dependency, from, to string) {
	if m == nil {
		return
	}
	var v float64
	switch to {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.Set(v, dependency)
	if from != "" {
		m.breakerChanges.Inc(dependency, from, to)
	}
}

func (m *Metrics) IncOutboxPublish(result string) {
	if m != nil {
		m.outboxPublished.Inc(result)
	}
}

func (m *Metrics) SetOutboxPending(n int64) {
	if m != nil {
		m.outboxPending.Set(float64(n))
	}
}

func (m *Metrics) ObserveProjection(eventType, result string, occurredAt time.Time) {
	if m == nil {
		return
	}
	m.projections.Inc(eventType, result)
	if result == "applied" && !occurredAt.IsZero() {
		m.projectionLag.Observe(time.Since(occurredAt).Seconds(), eventType)
	}
}

func (m *Metrics) IncDeadLetter(eventType string) {
	if m != nil {
		m.deadLetters.Inc(eventType)
	}
}

func (m *Metrics) IncSideEffect(kind, result string) {
	if m != nil {
		m.sideEffects.Inc(kind, result)
	}
}

func (m *Metrics) IncWorkerError(worker string) {
	if m != nil {
		m.workerErrors.Inc(worker)
	}
}

// StartCollectors polls pool and Redis health until ctx is done. Repeated
// calls are ignored.
func (m *Metrics) StartCollectors(ctx context.Context, log *logger.Logger, db *gorm.DB, rdb redis.UniversalClient) {
	if m == nil {
		return
	}
	m.collectorsOnce.Do(func() {
		go m.collect(ctx, log, db, rdb)
	})
}

func (m *Metrics) collect(ctx context.Context, log *logger.Logger, db *gorm.DB, rdb redis.UniversalClient) {
	ticker := time.NewTicker(scrapeInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if db != nil {
			if sqlDB, err := db.DB(); err == nil {
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			} else if log != nil {
				log.Warn("metrics: db stats unavailable", "error", err)
			}
		}
		if rdb != nil {
			start := time.Now()
			if err := rdb.Ping(ctx).Err(); err != nil {
				m.redisUp.Set(0)
				if log != nil {
					log.Warn("metrics: redis ping failed", "error", err)
				}
				continue
			}
			m.redisUp.Set(1)
			m.redisPing.Set(time.Since(start).Seconds())
		}
	}
}
