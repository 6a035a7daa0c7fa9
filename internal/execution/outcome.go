package execution

import (
	"time"

	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/models"
	"github.com/shopspring/decimal"
)

// Outcome is the result of one execution attempt: exactly one of Success or Failure is set.
type Outcome struct {
	Success *Fill
	Failure *Rejection
}

// Fill is what the venue reported for an accepted order. Quantity is the
// reported amount (executed, else requested); Executed is the venue's raw figure.
type Fill struct {
	VenueOrderID int64
	Status       domain.Status
	Quantity     decimal.Decimal
	Executed     decimal.Decimal
	Price        decimal.Decimal
	At           time.Time
}

// Rejection carries the reason an attempt failed before or at the venue.
type Rejection struct {
	Reason error
	At     time.Time
}

func succeeded(f Fill) Outcome { return Outcome{Success: &f} }

func rejected(reason error, at time.Time) Outcome {
	return Outcome{Failure: &Rejection{Reason: reason, At: at}}
}

// Event renders the outcome as a settlement event for cmd. Rejections use
// best-effort fields: whatever the command carries, UNKNOWN otherwise.
func (o Outcome) Event(cmd models.OrderCommand) models.OrderEvent {
	if o.Success != nil {
		f := o.Success
		return models.OrderEvent{
			OrderID:   cmd.OrderID,
			UserID:    cmd.UserID,
			Status:    f.Status,
			Symbol:    cmd.Symbol,
			Side:      cmd.Side,
			Quantity:  f.Quantity.InexactFloat64(),
			Price:     f.Price.InexactFloat64(),
			Timestamp: f.At,
		}
	}
	at := time.Now().UTC()
	if o.Failure != nil && !o.Failure.At.IsZero() {
		at = o.Failure.At
	}
	side := cmd.Side
	if side == "" {
		side = domain.Side(domain.Unknown)
	}
	return models.OrderEvent{
		OrderID:   orUnknown(cmd.OrderID),
		UserID:    orUnknown(cmd.UserID),
		Status:    domain.StatusRejected,
		Symbol:    orUnknown(cmd.Symbol),
		Side:      side,
		Quantity:  cmd.Quantity,
		Price:     0,
		Timestamp: at,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return domain.Unknown
	}
	return s
}

// venueStatus maps a venue order state onto the command lifecycle.
func venueStatus(s string) domain.Status {
	switch s {
	case "", "FILLED":
		return domain.StatusFilled
	case "PARTIALLY_FILLED":
		return domain.StatusPartiallyFilled
	case "CANCELED", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return domain.StatusRejected
	default:
		// NEW, PENDING_NEW and anything unrecognised: accepted but not done.
		return domain.StatusPending
	}
}

// effectivePrice prefers the venue's direct price, then average price from
// cumulative quote over executed quantity, then zero.
func effectivePrice(price, cumQuote, executed, fallbackQty decimal.Decimal) decimal.Decimal {
	if price.IsPositive() {
		return price
	}
	if !cumQuote.IsPositive() {
		return decimal.Zero
	}
	qty := executed
	if !qty.IsPositive() {
		qty = fallbackQty
	}
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return cumQuote.Div(qty)
}
