package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EnsureTopics attempts to create the topics (best-effort).
func EnsureTopics(ctx context.Context, broker string, logger *zap.Logger, topics ...string) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		logger.Warn("ensure topics: dial failed", zap.String("broker", broker), zap.Error(err))
		return
	}
	defer conn.Close()

	cfgs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		cfgs = append(cfgs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := conn.CreateTopics(cfgs...); err != nil {
		logger.Info("ensure topics: create (ok if exists)", zap.Strings("topics", topics), zap.Error(err))
	}
}

// Producer publishes to any topic through one kafka.Writer.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{Writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}}
}

// Publish blocks until the broker acknowledged the message.
func (p *Producer) Publish(ctx context.Context, topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: b, Time: time.Now().UTC()}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error { return p.Writer.Close() }
