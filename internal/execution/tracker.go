package execution

import (
	"context"
	"time"

	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/exchange"
	"github.com/example/order-pipeline/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tracker polls the venue for orders that were accepted but not yet FILLED or
// REJECTED (resting LIMIT orders, partial fills) and settles each status change.
type Tracker struct {
	Worker   *Worker
	Interval time.Duration
	Batch    int
}

func NewTracker(w *Worker, interval time.Duration, batch int) *Tracker {
	return &Tracker{Worker: w, Interval: interval, Batch: batch}
}

func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Sweep(ctx); err != nil {
				t.Worker.Logger.Error("tracker sweep", zap.Error(err))
			}
		}
	}
}

// Sweep checks one batch of open orders and returns how many were settled.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	w := t.Worker
	open, err := w.Store.ListOpenCommands(ctx, t.Batch)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, cmd := range open {
		log := w.Logger.With(zap.String("order_id", cmd.OrderID), zap.Int64("venue_order_id", cmd.VenueOrderID))
		creds, err := w.credentials(ctx, cmd.UserID)
		if err != nil {
			log.Warn("tracker credentials", zap.Error(err))
			continue
		}
		res, err := w.Venue.QueryOrder(ctx, creds, cmd.Symbol, exchange.OrderRef{VenueOrderID: cmd.VenueOrderID, ClientOrderID: cmd.OrderID})
		if err != nil {
			log.Warn("tracker query order", zap.Error(err))
			continue
		}
		requested, _, err := w.quantity(ctx, cmd)
		if err != nil {
			requested = decimal.NewFromFloat(cmd.Quantity)
		}
		f := w.fill(res, requested)
		if !progressed(cmd, f) {
			continue
		}
		ok, err := w.settle(ctx, cmd, succeeded(f))
		if err != nil {
			log.Error("tracker settle", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		settled++
	}
	return settled, nil
}

// progressed reports whether f moves cmd forward: a new status, or more
// executed quantity while still PARTIALLY_FILLED.
func progressed(cmd models.OrderCommand, f Fill) bool {
	if f.Status == domain.StatusPending {
		return false
	}
	if f.Status != cmd.Status {
		return true
	}
	return f.Executed.GreaterThan(decimal.NewFromFloat(cmd.Executed))
}
