package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	types "github.com/yungbote/benefits-backend/internal/domain"
	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/keylock"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type IdempotencyDecision string

const (
	DecisionProceed      IdempotencyDecision = "proceed"
	DecisionReturnCached IdempotencyDecision = "replay"
	DecisionConflict     IdempotencyDecision = "conflict"
)

const fingerprintDomain = "benefits.command.v1"

// CachedResponse is a previously recorded command answer.
type CachedResponse struct {
	StatusCode int
	Body       []byte
}

// IdempotencyCheck is the result of Begin. Release must be called once the
// caller has committed or abandoned the command.
type IdempotencyCheck struct {
	Decision IdempotencyDecision
	Cached   *CachedResponse
	release  func()
}

func (c *IdempotencyCheck) Release() {
	if c != nil && c.release != nil {
		c.release()
		c.release = nil
	}
}

type IdempotencyService interface {
	// Begin locks key in-process and decides whether the command runs.
	Begin(ctx context.Context, key, fingerprint string) (*IdempotencyCheck, error)
	// Lookup decides without locking; used after losing a commit race.
	Lookup(ctx context.Context, key, fingerprint string) (IdempotencyDecision, *CachedResponse, error)
	// Outcome describes the record the aggregate writes with its mutation.
	Outcome(key, fingerprint string, render func(domainagg.BenefitWriteResult) (int, []byte, error)) *domainagg.OutcomeRecord
	// Commit records an outcome that has no aggregate write, such as a
	// terminal business failure.
	Commit(dbc dbctx.Context, key, fingerprint string, status int, body []byte) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	RunSweeper(ctx context.Context, interval time.Duration) error
}

type idempotencyService struct {
	log     *logger.Logger
	repo    repos.IdempotencyRecordRepo
	locks   *keylock.Locker
	ttl     time.Duration
	metrics *observability.Metrics
	now     func() time.Time
}

func NewIdempotencyService(log *logger.Logger, repo repos.IdempotencyRecordRepo, ttl time.Duration, metrics *observability.Metrics) IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &idempotencyService{
		log:     log.With("service", "IdempotencyService"),
		repo:    repo,
		locks:   keylock.New(),
		ttl:     ttl,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Fingerprint hashes the command type, the addressed aggregate (empty when
// the payload carries it) and a canonical JSON form of payload, so reordered
// keys or whitespace do not change it.
func Fingerprint(commandType, target string, payload []byte) (string, error) {
	canonical := []byte("null")
	if len(bytes.TrimSpace(payload)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return "", fmt.Errorf("payload is not valid JSON: %w", err)
		}
		var err error
		if canonical, err = json.Marshal(v); err != nil {
			return "", err
		}
	}
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(commandType)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(target)))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *idempotencyService) Begin(ctx context.Context, key, fingerprint string) (*IdempotencyCheck, error) {
	release, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	decision, cached, err := s.Lookup(ctx, key, fingerprint)
	if err != nil {
		release()
		return nil, err
	}
	s.metrics.IncIdempotency(string(decision))
	return &IdempotencyCheck{Decision: decision, Cached: cached, release: release}, nil
}

func (s *idempotencyService) Lookup(ctx context.Context, key, fingerprint string) (IdempotencyDecision, *CachedResponse, error) {
	dbc := dbctx.Context{Ctx: ctx}
	rec, err := s.repo.Get(dbc, key)
	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		return DecisionProceed, nil, nil
	}
	now := s.now()
	if rec.Expired(now) {
		n, err := s.repo.DeleteExpiredKey(dbc, key, now)
		if err != nil {
			return "", nil, err
		}
		s.metrics.AddIdempotencyExpired("lookup", n)
		return DecisionProceed, nil, nil
	}
	if rec.RequestHash != fingerprint {
		return DecisionConflict, nil, nil
	}
	return DecisionReturnCached, &CachedResponse{StatusCode: rec.StatusCode, Body: []byte(rec.ResponseBody)}, nil
}

func (s *idempotencyService) Outcome(key, fingerprint string, render func(domainagg.BenefitWriteResult) (int, []byte, error)) *domainagg.OutcomeRecord {
	return &domainagg.OutcomeRecord{
		Key:         key,
		Fingerprint: fingerprint,
		ExpiresAt:   s.now().Add(s.ttl),
		Render:      render,
	}
}

func (s *idempotencyService) Commit(dbc dbctx.Context, key, fingerprint string, status int, body []byte) error {
	now := s.now()
	inserted, err := s.repo.Insert(dbc, &types.IdempotencyRecord{
		Key:          key,
		RequestHash:  fingerprint,
		ResponseBody: datatypes.JSON(body),
		StatusCode:   status,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	})
	if err != nil {
		return err
	}
	if inserted {
		return nil
	}
	existing, err := s.repo.Get(dbc, key)
	if err != nil {
		return err
	}
	if existing != nil && existing.RequestHash != fingerprint {
		return domainagg.NewError(domainagg.CodeIdempotency, "idempotency.commit", "idempotency key reused with a different payload", nil)
	}
	return nil
}

func (s *idempotencyService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.DeleteExpired(dbctx.Context{Ctx: ctx}, now.UTC())
	if err != nil {
		return 0, err
	}
	s.metrics.AddIdempotencyExpired("sweeper", n)
	return n, nil
}

// RunSweeper deletes expired records every interval until ctx is done.
func (s *idempotencyService) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("idempotency sweep panic", "panic", r)
						s.metrics.IncWorkerError("idempotency_sweeper")
					}
				}()
				n, err := s.SweepExpired(ctx, s.now())
				if err != nil {
					s.log.Warn("idempotency sweep failed", "error", err)
					s.metrics.IncWorkerError("idempotency_sweeper")
					return
				}
				if n > 0 {
					s.log.Info("expired idempotency records removed", "count", n)
				}
			}()
		}
	}
}
