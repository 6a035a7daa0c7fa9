package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/order-pipeline/internal/auth"
	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/models"
	"github.com/example/order-pipeline/internal/store"
)

// Store is what the API reads and writes outside of order submission.
type Store interface {
	CreateUser(ctx context.Context, u models.User) error
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	ListCommands(ctx context.Context, userID string, limit int) ([]models.OrderCommand, error)
}

// Submitter is the Command Ingress.
type Submitter interface {
	Submit(ctx context.Context, userID string, req models.SubmitOrderRequest) (models.SubmitOrderResponse, error)
}

type Server struct {
	R      *gin.Engine
	Orders Submitter
	Store  Store
	Tokens *auth.Tokens
	Logger *zap.Logger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ordersResponse struct {
	Rows []models.OrderCommand `json:"rows"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

const ctxUserID = "userId"

// NewServer wires the router, services, and middleware.
func NewServer(orders Submitter, st Store, tokens *auth.Tokens, logger *zap.Logger, corsOrigin string) *Server {
	g := gin.New()

	g.Use(RequestLogger(logger))
	g.Use(gin.Recovery())

	// CORS
	g.Use(func(cn *gin.Context) {
		origin := cn.GetHeader("Origin")
		cn.Writer.Header().Set("Vary", "Origin")
		cn.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		cn.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		cn.Writer.Header().Set("Access-Control-Max-Age", "86400")
		if corsOrigin == "*" {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && origin == corsOrigin {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", corsOrigin)
		}
		if cn.Request.Method == http.MethodOptions {
			cn.AbortWithStatus(http.StatusNoContent)
			return
		}
		cn.Next()
	})

	s := &Server{
		R:      g,
		Orders: orders,
		Store:  st,
		Tokens: tokens,
		Logger: logger,
	}

	g.GET("/health", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"ok": true}) })

	a := g.Group("/api/auth")
	a.POST("/register", s.register)
	a.POST("/login", s.login)

	t := g.Group("/api/trading", s.requireUser)
	t.POST("/orders", s.submitOrder)
	t.GET("/orders", s.listOrders)

	return s
}

// --- Helpers ---

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

func (s *Server) unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Code: "unauthorized", Message: msg})
}

func (s *Server) internalError(c *gin.Context, where string, err error) {
	s.Logger.Error("internal_error", zap.String("where", where), zap.Error(err))
	c.JSON(http.StatusInternalServerError, apiError{Code: "internal_server_error", Message: "internal server error"})
}

func parseLimit(v string, def, min, max int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// requireUser verifies the bearer token and stores its userId on the context.
func (s *Server) requireUser(c *gin.Context) {
	h := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		s.unauthorized(c, "missing bearer token")
		return
	}
	userID, err := s.Tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		s.unauthorized(c, "invalid or expired token")
		return
	}
	c.Set(ctxUserID, userID)
	c.Next()
}

// --- Handlers ---

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid JSON body")
		return
	}
	email := normalizeEmail(req.Email)
	if !strings.Contains(email, "@") {
		s.badRequest(c, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		s.badRequest(c, "password must be at least 8 characters")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" || strings.TrimSpace(req.SecretKey) == "" {
		s.badRequest(c, "apiKey and secretKey are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internalError(c, "HashPassword", err)
		return
	}
	u := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		APIKey:       auth.EncodeSecret(strings.TrimSpace(req.APIKey)),
		SecretKey:    auth.EncodeSecret(strings.TrimSpace(req.SecretKey)),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Store.CreateUser(c.Request.Context(), u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, apiError{Code: "conflict", Message: "email already registered"})
			return
		}
		s.internalError(c, "CreateUser", err)
		return
	}

	token, err := s.Tokens.Issue(u.ID)
	if err != nil {
		s.internalError(c, "Issue", err)
		return
	}
	c.JSON(http.StatusCreated, authResponse{Token: token, User: u})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid JSON body")
		return
	}
	u, err := s.Store.FindUserByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if err != nil {
		if store.IsNotFound(err) {
			s.unauthorized(c, "invalid email or password")
			return
		}
		s.internalError(c, "FindUserByEmail", err)
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		s.unauthorized(c, "invalid email or password")
		return
	}

	token, err := s.Tokens.Issue(u.ID)
	if err != nil {
		s.internalError(c, "Issue", err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, User: u})
}

func (s *Server) submitOrder(c *gin.Context) {
	var req models.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid JSON body")
		return
	}
	resp, err := s.Orders.Submit(c.Request.Context(), c.GetString(ctxUserID), req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.badRequest(c, strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
			return
		}
		s.internalError(c, "Submit", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listOrders(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50, 1, 500)

	rows, err := s.Store.ListCommands(c.Request.Context(), c.GetString(ctxUserID), limit)
	if err != nil {
		s.internalError(c, "ListCommands", err)
		return
	}
	if rows == nil {
		rows = make([]models.OrderCommand, 0)
	}
	c.JSON(http.StatusOK, ordersResponse{Rows: rows})
}
