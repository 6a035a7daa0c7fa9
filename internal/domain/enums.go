package domain

import "strings"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) String() string { return string(s) }
func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell:
		return true
	default:
		return false
	}
}

func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, true
	case "SELL":
		return SideSell, true
	default:
		return "", false
	}
}

// OrderType is the closed set of order types accepted at ingress.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

func (t OrderType) String() string { return string(t) }
func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

func ParseOrderType(s string) (OrderType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MARKET":
		return OrderTypeMarket, true
	case "LIMIT":
		return OrderTypeLimit, true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a command. It never moves back to PENDING.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusFilled          Status = "FILLED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusRejected        Status = "REJECTED"
)

func (s Status) String() string { return string(s) }
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFilled, StatusPartiallyFilled, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status transition is expected.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusRejected
}

// Unknown fills fields of a rejection that could not be resolved.
const Unknown = "UNKNOWN"
