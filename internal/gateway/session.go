package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// session is one admitted websocket connection. Only writePump writes to conn
// (apart from Close); only readPump reads from it.
type session struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	alive  atomic.Bool
	once   sync.Once
	logger *zap.Logger
}

func newSession(userID string, conn *websocket.Conn, buffer int, logger *zap.Logger) *session {
	s := &session{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("user_id", userID), zap.String("remote", conn.RemoteAddr().String())),
	}
	s.alive.Store(true)
	return s
}

// enqueue hands a frame to the writer without blocking. It reports false when
// the session is closed or its buffer is full.
func (s *session) enqueue(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// readPump drains client frames so control frames (pong, close) get processed.
// It returns when the connection fails or is closed.
func (s *session) readPump() {
	s.conn.SetReadLimit(4096)
	s.conn.SetPongHandler(func(string) error {
		s.alive.Store(true)
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("ws read", zap.Error(err))
			}
			return
		}
	}
}

// writePump sends queued frames and runs the liveness cycle: a connection that
// has not answered the previous ping by the next tick is terminated.
func (s *session) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case <-s.done:
			return
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.logger.Info("ws write", zap.Error(err))
				return
			}
		case <-ticker.C:
			if !s.alive.Swap(false) {
				s.logger.Info("terminating unresponsive ws")
				return
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Info("ws ping", zap.Error(err))
				return
			}
		}
	}
}
