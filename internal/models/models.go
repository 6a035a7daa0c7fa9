package models

import (
	"time"

	"github.com/example/order-pipeline/internal/domain"
)

// OrderCommand is both the order_commands row and the order.submitted payload.
type OrderCommand struct {
	OrderID   string           `json:"orderId"`
	UserID    string           `json:"userId"`
	Symbol    string           `json:"symbol"`
	Side      domain.Side      `json:"side"`
	Type      domain.OrderType `json:"type"`
	Quantity  float64          `json:"quantity"`
	Price     *float64         `json:"price,omitempty"` // LIMIT only
	Status    domain.Status    `json:"status,omitempty"`
	Timestamp time.Time        `json:"timestamp"`

	VenueOrderID int64   `json:"-"`
	Executed     float64 `json:"-"` // venue executed quantity so far
}

// OrderEvent is both the order_events row and the order.settled payload.
type OrderEvent struct {
	OrderID   string        `json:"orderId"`
	UserID    string        `json:"userId"`
	Status    domain.Status `json:"status"`
	Symbol    string        `json:"symbol"`
	Side      domain.Side   `json:"side"`
	Quantity  float64       `json:"quantity"`
	Price     float64       `json:"price"`
	Timestamp time.Time     `json:"timestamp"`
}

// SubmitOrderRequest is the client payload accepted by ingress.
type SubmitOrderRequest struct {
	Symbol   string   `json:"symbol"`
	Side     string   `json:"side"`
	Type     string   `json:"type"`
	Quantity float64  `json:"quantity"`
	Price    *float64 `json:"price,omitempty"`
}

type SubmitOrderResponse struct {
	OrderID string        `json:"orderId"`
	Status  domain.Status `json:"status"`
}

// User owns venue credentials; the secrets are stored encoded, never in clear.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	APIKey       string    `json:"-"`
	SecretKey    string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Credentials are decoded venue API keys.
type Credentials struct {
	APIKey    string
	SecretKey string
}

const (
	EnvelopeWelcome     = "WELCOME"
	EnvelopeOrderUpdate = "ORDER_UPDATE"
)

// Envelope is a frame pushed to a live session.
type Envelope struct {
	Type    string      `json:"type"`
	Data    *OrderEvent `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}
