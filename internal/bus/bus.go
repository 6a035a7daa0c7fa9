package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Message is one record read from or written to a topic.
type Message struct {
	Topic string
	Key   string
	Value []byte
	Time  time.Time
}

// Handler processes one message. Returned errors are logged by the consumer;
// the message is committed regardless, so handlers own their retry policy.
type Handler func(ctx context.Context, m Message) error

// Publisher writes JSON payloads to a topic. key selects the partition.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, v any) error
}

// Decode unmarshals a message payload into T.
func Decode[T any](m Message) (T, error) {
	var v T
	err := json.Unmarshal(m.Value, &v)
	return v, err
}
