package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Mem is an in-process bus. Publish dispatches synchronously to subscribers of
// the topic, in subscription order.
type Mem struct {
	mu        sync.Mutex
	subs      map[string][]Handler
	published []Message
	// Err, when set, fails every Publish without delivering.
	Err error
}

func NewMem() *Mem { return &Mem{subs: make(map[string][]Handler)} }

func (b *Mem) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

func (b *Mem) Publish(ctx context.Context, topic, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.Err != nil {
		err := b.Err
		b.mu.Unlock()
		return err
	}
	m := Message{Topic: topic, Key: key, Value: payload, Time: time.Now().UTC()}
	b.published = append(b.published, m)
	handlers := append([]Handler(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Published returns a copy of every message accepted on topic.
func (b *Mem) Published(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, m := range b.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
