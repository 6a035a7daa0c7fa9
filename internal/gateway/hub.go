package gateway

import (
	"context"
	"encoding/json"

	"github.com/example/order-pipeline/internal/bus"
	"github.com/example/order-pipeline/internal/cache"
	"github.com/example/order-pipeline/internal/models"
	"go.uber.org/zap"
)

// Hub owns the userId → session registry. Only the Run loop writes to it;
// admission, removal and relay all pass through that loop as messages.
type Hub struct {
	sessions   *cache.MapCache[string, *session]
	register   chan *session
	unregister chan *session
	deliver    chan models.OrderEvent
	done       chan struct{}
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions:   cache.NewMapCache[string, *session](),
		register:   make(chan *session),
		unregister: make(chan *session),
		deliver:    make(chan models.OrderEvent),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registry changes and deliveries until ctx is cancelled, then
// closes every live session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.sessions.Range(func(_ string, s *session) bool {
				s.close()
				return true
			})
			h.sessions.Clear()
			return

		case s := <-h.register:
			if prev, ok := h.sessions.Get(s.userID); ok && prev != s {
				// The older socket stays open but no longer receives deliveries.
				h.logger.Info("ws session superseded", zap.String("user_id", s.userID))
			}
			h.sessions.Set(s.userID, s)
			h.logger.Info("ws connected", zap.String("user_id", s.userID), zap.Int("sessions", h.sessions.Len()))

		case s := <-h.unregister:
			if h.sessions.CompareAndDelete(s.userID, s) {
				h.logger.Info("ws disconnected", zap.String("user_id", s.userID))
			}

		case ev := <-h.deliver:
			h.relay(ev)
		}
	}
}

func (h *Hub) relay(ev models.OrderEvent) {
	log := h.logger.With(zap.String("user_id", ev.UserID), zap.String("order_id", ev.OrderID), zap.String("status", ev.Status.String()))
	s, ok := h.sessions.Get(ev.UserID)
	if !ok {
		log.Info("no live session; update not pushed")
		return
	}
	b, err := json.Marshal(models.Envelope{Type: models.EnvelopeOrderUpdate, Data: &ev})
	if err != nil {
		log.Error("marshal envelope", zap.Error(err))
		return
	}
	if !s.enqueue(b) {
		log.Warn("session closed or backed up; update dropped")
		return
	}
	log.Info("order update pushed")
}

// Online reports whether userID currently has a registered session.
func (h *Hub) Online(userID string) bool {
	_, ok := h.sessions.Get(userID)
	return ok
}

// Count is the number of registered sessions.
func (h *Hub) Count() int { return h.sessions.Len() }

// Deliver queues ev for relay. It returns false if the hub has stopped.
func (h *Hub) Deliver(ev models.OrderEvent) bool {
	select {
	case h.deliver <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) add(s *session) bool {
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(s *session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// HandleMessage is the bus.Handler for the settled topic. Malformed events are
// logged and discarded.
func (h *Hub) HandleMessage(ctx context.Context, m bus.Message) error {
	ev, err := bus.Decode[models.OrderEvent](m)
	if err != nil {
		h.logger.Warn("bad settlement message", zap.Error(err), zap.ByteString("value", m.Value))
		return nil
	}
	if ev.UserID == "" || ev.OrderID == "" {
		h.logger.Warn("settlement without userId/orderId", zap.ByteString("value", m.Value))
		return nil
	}
	h.Deliver(ev)
	return nil
}
