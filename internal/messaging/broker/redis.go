package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

const (
	fieldKey   = "key"
	fieldValue = "value"
)

// Redis is a Broker over Redis Streams: one stream per topic partition, one
// consumer group per subscriber group.
type Redis struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	cfg Config
}

// NewRedis pings rdb and returns a broker over it. The caller owns rdb
// unless Close is called.
func NewRedis(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient, cfg Config) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Consumer) == "" {
		host, _ := os.Hostname()
		cfg.Consumer = host + "-" + uuid.NewString()[:8]
	}
	return &Redis{
		log: log.With("component", "RedisStreamsBroker", "consumer", cfg.Consumer),
		rdb: rdb,
		cfg: cfg,
	}, nil
}

func (b *Redis) Partitions() int { return b.cfg.Partitions }

func (b *Redis) Publish(ctx context.Context, topic, key string, value []byte) error {
	args := &goredis.XAddArgs{
		Stream: streamName(topic, Partition(key, b.cfg.Partitions)),
		Values: map[string]any{fieldKey: key, fieldValue: value},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}

func (b *Redis) Subscribe(ctx context.Context, topic, group string, h Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < b.cfg.Partitions; p++ {
		stream := streamName(topic, p)
		if err := b.ensureGroup(ctx, stream, group); err != nil {
			return err
		}
		partition := p
		g.Go(func() error { return b.consume(gctx, topic, partition, stream, group, h) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Redis) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// consume drains this consumer's pending entries before reading new ones, so
// a failed message is retried ahead of everything behind it.
func (b *Redis) consume(ctx context.Context, topic string, partition int, stream, group string, h Handler) error {
	lastClaim := time.Time{}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if time.Since(lastClaim) >= b.cfg.ClaimIdle {
			lastClaim = time.Now()
			if _, _, err := b.rdb.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
				Stream:   stream,
				Group:    group,
				Consumer: b.cfg.Consumer,
				MinIdle:  b.cfg.ClaimIdle,
				Start:    "0-0",
				Count:    b.cfg.Batch,
			}).Result(); err != nil && !errors.Is(err, goredis.Nil) {
				b.log.Warn("xautoclaim failed", "stream", stream, "error", err)
			}
		}

		msgs, err := b.read(ctx, stream, group, "0")
		if err == nil && len(msgs) == 0 {
			msgs, err = b.read(ctx, stream, group, ">")
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Warn("xreadgroup failed", "stream", stream, "error", err)
			if err := sleepCtx(ctx, b.cfg.RetryDelay); err != nil {
				return err
			}
			continue
		}

		for _, xm := range msgs {
			msg := toMessage(topic, partition, xm)
			if err := h(ctx, msg); err != nil {
				b.log.Warn("handler failed, redelivering", "stream", stream, "id", xm.ID, "error", err)
				if err := sleepCtx(ctx, b.cfg.RetryDelay); err != nil {
					return err
				}
				break
			}
			if err := b.rdb.XAck(ctx, stream, group, xm.ID).Err(); err != nil {
				b.log.Warn("xack failed", "stream", stream, "id", xm.ID, "error", err)
				break
			}
		}
	}
}

func (b *Redis) read(ctx context.Context, stream, group, id string) ([]goredis.XMessage, error) {
	args := &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: b.cfg.Consumer,
		Streams:  []string{stream, id},
		Count:    b.cfg.Batch,
		Block:    -1,
	}
	if id == ">" {
		args.Block = b.cfg.Block
	}
	res, err := b.rdb.XReadGroup(ctx, args).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []goredis.XMessage
	for _, s := range res {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func toMessage(topic string, partition int, xm goredis.XMessage) Message {
	return Message{
		Topic:     topic,
		Partition: partition,
		Key:       asString(xm.Values[fieldKey]),
		Value:     []byte(asString(xm.Values[fieldValue])),
		ID:        xm.ID,
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func (b *Redis) Close() error {
	return b.rdb.Close()
}
