package bus

import (
	"chat-relay/contract"
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

var _ contract.MessageBus = (*RedisBus)(nil)

type RedisBus struct {
	rdb     *redis.Client
	log     *slog.Logger
	channel string
}

// NewRedisBus connects to redis and verifies connectivity
func NewRedisBus(ctx context.Context, log *slog.Logger, addr string, db int, prefix string) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisBus{rdb: rdb, log: log, channel: channel(prefix)}, nil
}

func (b *RedisBus) Publish(ctx context.Context, msg contract.BusMessage) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscribe listens on the relay channel and invokes fn for each message until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(contract.BusMessage)) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = pubsub.Close() }()

	// Wait for the subscription confirmation so a bad connection surfaces as an error
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := decode([]byte(m.Payload))
			if err != nil {
				b.log.Warn("Dropping bus message", "error", err)
				continue
			}
			fn(msg)
		}
	}
}

func (b *RedisBus) Close() error { return b.rdb.Close() }
