// Package bus shares room traffic between relay instances.
package bus

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
)

const (
	DriverNone  = "none"
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

type Config struct {
	Driver       string
	RedisAddr    string
	RedisDB      int
	RedisPrefix  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
}

// New opens the bus selected by cfg.Driver.
func New(ctx context.Context, log *slog.Logger, cfg Config) (contract.MessageBus, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return Noop{}, nil
	case DriverRedis:
		return NewRedisBus(ctx, log, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix)
	case DriverKafka:
		return NewKafkaBus(log, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownBusDriver, cfg.Driver)
	}
}
