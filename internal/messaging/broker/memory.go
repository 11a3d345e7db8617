package broker

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

// Memory is an in-process Broker for tests and single-binary deployments.
type Memory struct {
	log *logger.Logger
	cfg Config

	mu     sync.Mutex
	topics map[string][]*memPartition
	closed bool
	done   chan struct{}
}

type memPartition struct {
	mu      sync.Mutex
	log     []Message
	offsets map[string]int
	wake    chan struct{}
}

func NewMemory(log *logger.Logger, cfg Config) *Memory {
	if log == nil {
		log = logger.Nop()
	}
	return &Memory{
		log:    log.With("component", "MemoryBroker"),
		cfg:    cfg.withDefaults(),
		topics: map[string][]*memPartition{},
		done:   make(chan struct{}),
	}
}

func (m *Memory) Partitions() int { return m.cfg.Partitions }

func (m *Memory) partitions(topic string) ([]*memPartition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	parts, ok := m.topics[topic]
	if !ok {
		parts = make([]*memPartition, m.cfg.Partitions)
		for i := range parts {
			parts[i] = &memPartition{offsets: map[string]int{}, wake: make(chan struct{})}
		}
		m.topics[topic] = parts
	}
	return parts, nil
}

func (m *Memory) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parts, err := m.partitions(topic)
	if err != nil {
		return err
	}
	idx := Partition(key, len(parts))
	p := parts[idx]
	p.mu.Lock()
	msg := Message{
		Topic:     topic,
		Partition: idx,
		Key:       key,
		Value:     append([]byte(nil), value...),
		ID:        strconv.Itoa(idx) + "-" + strconv.Itoa(len(p.log)),
	}
	p.log = append(p.log, msg)
	close(p.wake)
	p.wake = make(chan struct{})
	p.mu.Unlock()
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic, group string, h Handler) error {
	parts, err := m.partitions(topic)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range parts {
		p := p
		g.Go(func() error { return m.consume(gctx, p, group, h) })
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (m *Memory) consume(ctx context.Context, p *memPartition, group string, h Handler) error {
	for {
		p.mu.Lock()
		off := p.offsets[group]
		var (
			msg  Message
			have = off < len(p.log)
			wake = p.wake
		)
		if have {
			msg = p.log[off]
		}
		p.mu.Unlock()

		if !have {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.done:
				return ErrClosed
			case <-wake:
			}
			continue
		}

		if err := h(ctx, msg); err != nil {
			m.log.Warn("handler failed, redelivering", "topic", msg.Topic, "partition", msg.Partition, "id", msg.ID, "error", err)
			if err := sleepCtx(ctx, m.cfg.RetryDelay); err != nil {
				return err
			}
			continue
		}
		p.mu.Lock()
		p.offsets[group] = off + 1
		p.mu.Unlock()
	}
}

// Messages returns a copy of everything published to topic, partition by
// partition.
func (m *Memory) Messages(topic string) []Message {
	parts, err := m.partitions(topic)
	if err != nil {
		return nil
	}
	var out []Message
	for _, p := range parts {
		p.mu.Lock()
		out = append(out, p.log...)
		p.mu.Unlock()
	}
	return out
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
