package broker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Message is one record on a topic partition. ID is assigned by the broker.
type Message struct {
	Topic     string
	Partition int
	Key       string
	Value     []byte
	ID        string
}

// Handler processes one message. A nil return acknowledges it; an error
// leaves it at the head of its partition for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Broker is a partitioned, at-least-once log. Messages sharing a key land in
// the same partition and are delivered to a group in publish order.
type Broker interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	// Subscribe consumes every partition of topic as group until ctx is done.
	// Partitions are processed concurrently, messages within one sequentially.
	Subscribe(ctx context.Context, topic, group string, h Handler) error
	Partitions() int
	Close() error
}

var ErrClosed = errors.New("broker closed")

type Config struct {
	Partitions int
	// RetryDelay is the pause before redelivering a message whose handler failed.
	RetryDelay time.Duration
	// Block bounds each Redis XREADGROUP wait.
	Block time.Duration
	Batch int64
	// ClaimIdle is how long a message may sit unacked with another consumer
	// before this one claims it.
	ClaimIdle time.Duration
	MaxLen    int64
	Consumer  string
}

func (c Config) withDefaults() Config {
	if c.Partitions <= 0 {
		c.Partitions = 4
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.Block <= 0 {
		c.Block = 2 * time.Second
	}
	if c.Batch <= 0 {
		c.Batch = 32
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = time.Minute
	}
	return c
}

// Partition maps key onto [0, n) with FNV-1a.
func Partition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// DeadLetterTopic names the dead-letter topic paired with topic.
func DeadLetterTopic(topic string) string {
	return strings.TrimSpace(topic) + ".dlt"
}

func streamName(topic string, partition int) string {
	return fmt.Sprintf("%s:%d", topic, partition)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
