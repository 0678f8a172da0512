package bus

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
)

var _ contract.MessageBus = (*KafkaBus)(nil)

// KafkaBus shares room traffic through one topic. Messages are keyed by room id
// so a room keeps its order within a partition.
type KafkaBus struct {
	log    *slog.Logger
	writer *kafka.Writer
	reader *kafka.Reader
}

// NewKafkaBus builds the writer and reader. Every relay instance must use its own
// group so each of them receives every message.
func NewKafkaBus(log *slog.Logger, brokers []string, topic, group string) *KafkaBus {
	return &KafkaBus{
		log: log,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: group,
		}),
	}
}

func (b *KafkaBus) Publish(ctx context.Context, msg contract.BusMessage) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(int64(msg.Message.RoomID), 10)),
		Value: raw,
	})
}

// Subscribe reads the topic and invokes fn for each message until ctx is done.
// A read error ends the subscription so the supervisor can restart it.
func (b *KafkaBus) Subscribe(ctx context.Context, fn func(contract.BusMessage)) error {
	for {
		m, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg, err := decode(m.Value)
		if err != nil {
			b.log.Warn("Dropping bus message", "offset", m.Offset, "error", err)
			continue
		}
		fn(msg)
	}
}

func (b *KafkaBus) Close() error {
	werr := b.writer.Close()
	if err := b.reader.Close(); err != nil {
		return err
	}
	return werr
}
