package bus

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer reads one topic in a consumer group, one message at a time.
type Consumer struct {
	Reader *kafka.Reader
	Logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	return &Consumer{
		Reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1e6,
			MaxWait:  500 * time.Millisecond,
		}),
		Logger: logger.With(zap.String("topic", topic), zap.String("group", groupID)),
	}
}

// Run feeds messages to h until ctx is cancelled. Offsets are committed after h
// returns, so a crash mid-handler redelivers the message.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.Reader.Close()
	for {
		m, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg := Message{Topic: m.Topic, Key: string(m.Key), Value: m.Value, Time: m.Time}
		if err := h(ctx, msg); err != nil {
			c.Logger.Error("handle message", zap.Int64("offset", m.Offset), zap.Error(err))
		}
		if err := c.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
