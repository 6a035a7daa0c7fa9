package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/order-pipeline/internal/auth"
	httpserver "github.com/example/order-pipeline/internal/http"
	"github.com/example/order-pipeline/internal/models"
)

const welcomeMessage = "Connected to order updates"

type Server struct {
	R            *gin.Engine
	Hub          *Hub
	Tokens       *auth.Tokens
	Upgrader     websocket.Upgrader
	PingInterval time.Duration
	SendBuffer   int
	Logger       *zap.Logger
}

// NewServer serves the websocket endpoint at wsPath plus status routes.
func NewServer(hub *Hub, tokens *auth.Tokens, logger *zap.Logger, wsPath string, pingInterval time.Duration, sendBuffer int) *Server {
	g := gin.New()
	g.Use(httpserver.RequestLogger(logger))
	g.Use(gin.Recovery())

	if sendBuffer < 1 {
		sendBuffer = 1
	}

	s := &Server{
		R:      g,
		Hub:    hub,
		Tokens: tokens,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Admission is by token, not origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		PingInterval: pingInterval,
		SendBuffer:   sendBuffer,
		Logger:       logger,
	}

	g.GET("/", func(cn *gin.Context) {
		cn.JSON(http.StatusOK, gin.H{"message": "Delivery gateway is running"})
	})
	g.GET("/health", func(cn *gin.Context) {
		cn.JSON(http.StatusOK, gin.H{"status": "healthy", "sessions": hub.Count(), "timestamp": time.Now().UTC()})
	})
	g.GET(wsPath, s.serveWS)
	g.NoRoute(func(cn *gin.Context) { cn.JSON(http.StatusNotFound, gin.H{"error": "Not Found"}) })

	return s
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		s.Logger.Info("ws upgrade", zap.Error(err))
		return
	}

	token := c.Query("token")
	if token == "" {
		s.reject(conn, "Missing token")
		return
	}
	userID, err := s.Tokens.Verify(token)
	if err != nil {
		s.Logger.Info("ws auth failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		s.reject(conn, "Auth failed")
		return
	}

	sess := newSession(userID, conn, s.SendBuffer, s.Logger)
	welcome, _ := json.Marshal(models.Envelope{Type: models.EnvelopeWelcome, Message: welcomeMessage})
	sess.enqueue(welcome)

	if !s.Hub.add(sess) {
		sess.close()
		return
	}
	go sess.writePump(s.PingInterval)
	sess.readPump()

	s.Hub.remove(sess)
	sess.close()
}

// reject closes an unauthenticated connection with 1008 before any data frame.
func (s *Server) reject(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
