package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/benefits-backend/internal/data/repos"
	"github.com/yungbote/benefits-backend/internal/data/repos/testutil"
	types "github.com/yungbote/benefits-backend/internal/domain"
	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/messaging/broker"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

const topic = "benefits.events"

// flakyBroker fails publishes for keys in down.
type flakyBroker struct {
	*broker.Memory
	mu   sync.Mutex
	down map[string]bool
}

func (b *flakyBroker) Publish(ctx context.Context, t, key string, value []byte) error {
	b.mu.Lock()
	failing := b.down[key]
	b.mu.Unlock()
	if failing {
		return errors.New("broker unavailable")
	}
	return b.Memory.Publish(ctx, t, key, value)
}

func (b *flakyBroker) heal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = map[string]bool{}
}

type relayFixture struct {
	repo   repos.OutboxRepo
	broker *flakyBroker
	relay  *OutboxRelay
	now    time.Time
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	db := testutil.SQLite(t)
	f := &relayFixture{
		repo:   repos.NewOutboxRepo(db, testutil.Logger(t)),
		broker: &flakyBroker{Memory: broker.NewMemory(logger.Nop(), broker.Config{Partitions: 2}), down: map[string]bool{}},
		now:    time.Now().UTC(),
	}
	f.relay = NewOutboxRelay(logger.Nop(), f.repo, f.broker, nil, RelayConfig{
		Owner:        "relay-test",
		BatchSize:    10,
		RetryInitial: time.Minute,
		RetryMax:     10 * time.Minute,
	})
	f.relay.now = func() time.Time { return f.now }
	return f
}

func (f *relayFixture) add(t *testing.T, aggregateID uuid.UUID, n int) []*types.OutboxEvent {
	t.Helper()
	rows := make([]*types.OutboxEvent, 0, n)
	for i := 0; i < n; i++ {
		at := f.now.Add(-time.Duration(n-i) * time.Second)
		rows = append(rows, &types.OutboxEvent{
			ID:            uuid.New(),
			AggregateID:   aggregateID,
			EventType:     string(events.BenefitAssigned),
			Topic:         topic,
			Envelope:      []byte(`{"seq":` + string(rune('0'+i)) + `}`),
			Status:        events.OutboxPending,
			NextAttemptAt: at,
			CreatedAt:     at,
			UpdatedAt:     at,
		})
	}
	if err := f.repo.Create(dbctx.Context{Ctx: context.Background()}, rows); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rows
}

func (f *relayFixture) pending(t *testing.T) int64 {
	t.Helper()
	n, err := f.repo.CountPending(dbctx.Context{Ctx: context.Background()})
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	return n
}

func TestRelayPublishesInOrderKeyedByAggregate(t *testing.T) {
	f := newRelayFixture(t)
	agg := uuid.New()
	f.add(t, agg, 3)

	for pass := 0; pass < 3; pass++ {
		n, err := f.relay.RelayOnce(context.Background())
		if err != nil {
			t.Fatalf("RelayOnce: %v", err)
		}
		if n != 1 {
			t.Fatalf("pass %d claimed: want=1 got=%d", pass, n)
		}
	}
	msgs := f.broker.Messages(topic)
	if len(msgs) != 3 {
		t.Fatalf("published: want=3 got=%d", len(msgs))
	}
	for i, m := range msgs {
		if m.Key != agg.String() {
			t.Fatalf("message %d key: want=%s got=%s", i, agg, m.Key)
		}
		if want := `{"seq":` + string(rune('0'+i)) + `}`; string(m.Value) != want {
			t.Fatalf("message %d: want=%s got=%s", i, want, m.Value)
		}
	}
	if got := f.pending(t); got != 0 {
		t.Fatalf("pending: want=0 got=%d", got)
	}
}

func TestRelayRetriesFailedPublishWithBackoff(t *testing.T) {
	f := newRelayFixture(t)
	stuck, healthy := uuid.New(), uuid.New()
	f.add(t, stuck, 2)
	f.add(t, healthy, 1)
	f.broker.down[stuck.String()] = true

	if _, err := f.relay.RelayOnce(context.Background()); err != nil {
		t.Fatalf("RelayOnce: %v", err)
	}
	if got := len(f.broker.Messages(topic)); got != 1 {
		t.Fatalf("published while stuck: want=1 got=%d", got)
	}
	if got := f.pending(t); got != 2 {
		t.Fatalf("pending: want=2 got=%d", got)
	}

	// Both rows of the stuck aggregate wait out the backoff, then go in order.
	f.broker.heal()
	if n, _ := f.relay.RelayOnce(context.Background()); n != 0 {
		t.Fatalf("claim before backoff: want=0 got=%d", n)
	}

	f.now = f.now.Add(2 * time.Minute)
	for pass := 0; pass < 2; pass++ {
		if n, _ := f.relay.RelayOnce(context.Background()); n != 1 {
			t.Fatalf("claim %d after backoff: want=1 got=%d", pass, n)
		}
	}
	if got := f.pending(t); got != 0 {
		t.Fatalf("pending: want=0 got=%d", got)
	}
	var stuckSeq []string
	for _, m := range f.broker.Messages(topic) {
		if m.Key == stuck.String() {
			stuckSeq = append(stuckSeq, string(m.Value))
		}
	}
	if len(stuckSeq) != 2 || stuckSeq[0] != `{"seq":0}` || stuckSeq[1] != `{"seq":1}` {
		t.Fatalf("stuck aggregate order: got=%v", stuckSeq)
	}
}

func TestRelayHoldsLaterEventsBehindRetryingRow(t *testing.T) {
	f := newRelayFixture(t)
	agg := uuid.New()
	first := f.add(t, agg, 1)[0]
	f.broker.down[agg.String()] = true
	if _, err := f.relay.RelayOnce(context.Background()); err != nil {
		t.Fatalf("RelayOnce: %v", err)
	}
	f.broker.heal()

	// Committed after the failure and due right away.
	f.now = f.now.Add(time.Second)
	second := &types.OutboxEvent{
		ID:            uuid.New(),
		AggregateID:   agg,
		EventType:     string(events.BenefitSuspended),
		Topic:         topic,
		Envelope:      []byte(`{"seq":1}`),
		Status:        events.OutboxPending,
		NextAttemptAt: f.now,
		CreatedAt:     f.now,
		UpdatedAt:     f.now,
	}
	if err := f.repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.OutboxEvent{second}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n, _ := f.relay.RelayOnce(context.Background()); n != 0 {
		t.Fatalf("later event claimed ahead of retrying row: got=%d", n)
	}

	f.now = f.now.Add(5 * time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := f.relay.RelayOnce(context.Background()); err != nil {
			t.Fatalf("RelayOnce: %v", err)
		}
	}
	msgs := f.broker.Messages(topic)
	if len(msgs) != 2 || string(msgs[0].Value) != string(first.Envelope) || string(msgs[1].Value) != `{"seq":1}` {
		var got []string
		for _, m := range msgs {
			got = append(got, string(m.Value))
		}
		t.Fatalf("publish order: want=[{\"seq\":0} {\"seq\":1}] got=%v", got)
	}
}

func TestRelayRetryDelayGrows(t *testing.T) {
	r := NewOutboxRelay(logger.Nop(), nil, nil, nil, RelayConfig{RetryInitial: time.Second, RetryMax: 5 * time.Second})
	want := []time.Duration{time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond}
	for i, w := range want {
		if got := r.retryDelay(i); got != w {
			t.Fatalf("retryDelay(%d): want=%s got=%s", i, w, got)
		}
	}
	if got := r.retryDelay(20); got != 5*time.Second {
		t.Fatalf("retryDelay cap: want=5s got=%s", got)
	}
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	f := newRelayFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.relay.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}
