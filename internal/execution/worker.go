package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/example/order-pipeline/internal/auth"
	"github.com/example/order-pipeline/internal/bus"
	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/exchange"
	"github.com/example/order-pipeline/internal/models"
	"github.com/example/order-pipeline/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the slice of the Command Store the worker needs.
type Store interface {
	ClaimCommand(ctx context.Context, orderID string) (models.OrderCommand, bool, error)
	Settle(ctx context.Context, ev models.OrderEvent, venueOrderID int64, executed float64) error
	ListOpenCommands(ctx context.Context, limit int) ([]models.OrderCommand, error)
	FindUserByID(ctx context.Context, id string) (models.User, error)
}

// Venue is the Exchange Adapter.
type Venue interface {
	TradingRules(ctx context.Context, symbol string) (exchange.SymbolRules, error)
	SubmitOrder(ctx context.Context, creds models.Credentials, p exchange.OrderParams) (exchange.OrderResult, error)
	QueryOrder(ctx context.Context, creds models.Credentials, symbol string, ref exchange.OrderRef) (exchange.OrderResult, error)
}

// Worker executes submitted commands against the venue and publishes settlements.
type Worker struct {
	Store        Store
	Venue        Venue
	Bus          bus.Publisher
	SettledTopic string
	Logger       *zap.Logger
	now          func() time.Time
}

func NewWorker(st Store, venue Venue, pub bus.Publisher, settledTopic string, logger *zap.Logger) *Worker {
	return &Worker{
		Store:        st,
		Venue:        venue,
		Bus:          pub,
		SettledTopic: settledTopic,
		Logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage is the bus.Handler for the submitted-commands topic.
func (w *Worker) HandleMessage(ctx context.Context, m bus.Message) error {
	msg, err := bus.Decode[models.OrderCommand](m)
	if err != nil {
		w.Logger.Warn("bad command message", zap.Error(err))
		return nil
	}
	if _, err := uuid.Parse(msg.OrderID); err != nil {
		w.Logger.Warn("command without valid orderId", zap.String("order_id", msg.OrderID), zap.String("user_id", msg.UserID))
		return nil
	}
	return w.Handle(ctx, msg)
}

// Handle claims the command and runs at most one execution attempt for it.
// Redelivered or already settled commands are skipped.
func (w *Worker) Handle(ctx context.Context, msg models.OrderCommand) error {
	// A claimed command must settle even if the consumer is shutting down.
	ctx = context.WithoutCancel(ctx)

	cmd, ok, err := w.Store.ClaimCommand(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("%w: claim %s: %v", domain.ErrPersistence, msg.OrderID, err)
	}
	if !ok {
		w.Logger.Info("command already claimed or unknown, skipping", zap.String("order_id", msg.OrderID))
		return nil
	}

	log := w.Logger.With(zap.String("order_id", cmd.OrderID), zap.String("user_id", cmd.UserID), zap.String("symbol", cmd.Symbol))
	out := w.execute(ctx, cmd)
	if out.Failure != nil {
		log.Warn("execution rejected", zap.Error(out.Failure.Reason))
	} else {
		log.Info("execution accepted",
			zap.String("status", out.Success.Status.String()),
			zap.String("quantity", out.Success.Quantity.String()),
			zap.String("price", out.Success.Price.String()),
		)
	}
	_, err = w.settle(ctx, cmd, out)
	return err
}

func (w *Worker) execute(ctx context.Context, cmd models.OrderCommand) Outcome {
	// Price is checked first so a LIMIT order without one never reaches the venue.
	price, err := limitPrice(cmd)
	if err != nil {
		return rejected(err, w.now())
	}

	creds, err := w.credentials(ctx, cmd.UserID)
	if err != nil {
		return rejected(err, w.now())
	}

	qty, lot, err := w.quantity(ctx, cmd)
	if err != nil {
		return rejected(err, w.now())
	}
	if !qty.Equal(decimal.NewFromFloat(cmd.Quantity)) {
		w.Logger.Debug("quantity quantized",
			zap.String("order_id", cmd.OrderID),
			zap.Float64("requested", cmd.Quantity),
			zap.String("rounded", qty.String()),
			zap.String("min", lot.MinQuantity.String()),
			zap.String("step", lot.StepSize.String()),
		)
	}

	params := exchange.OrderParams{
		ClientOrderID: cmd.OrderID,
		Symbol:        cmd.Symbol,
		Side:          cmd.Side.String(),
		Type:          cmd.Type.String(),
		Quantity:      qty,
	}
	if cmd.Type == domain.OrderTypeLimit {
		params.Price = price
		params.TimeInForce = "GTC"
	}

	res, err := w.Venue.SubmitOrder(ctx, creds, params)
	if err != nil {
		return rejected(err, w.now())
	}
	return succeeded(w.fill(res, qty))
}

// quantity snaps the command quantity to the symbol's LOT_SIZE filter.
func (w *Worker) quantity(ctx context.Context, cmd models.OrderCommand) (decimal.Decimal, exchange.LotSize, error) {
	rules, err := w.Venue.TradingRules(ctx, cmd.Symbol)
	if err != nil {
		return decimal.Zero, exchange.LotSize{}, err
	}
	lot, ok := rules.LotSize()
	if !ok {
		return decimal.Zero, exchange.LotSize{}, fmt.Errorf("%w: %s", domain.ErrFilterNotFound, cmd.Symbol)
	}
	qty, err := Quantize(decimal.NewFromFloat(cmd.Quantity), lot)
	return qty, lot, err
}

func (w *Worker) fill(res exchange.OrderResult, requested decimal.Decimal) Fill {
	qty := requested
	if res.ExecutedQuantity.IsPositive() {
		qty = res.ExecutedQuantity
	}
	at := res.TransactTime
	if at.IsZero() {
		at = w.now()
	}
	return Fill{
		VenueOrderID: res.VenueOrderID,
		Status:       venueStatus(res.Status),
		Quantity:     qty,
		Executed:     res.ExecutedQuantity,
		Price:        effectivePrice(res.Price, res.CumulativeQuote, res.ExecutedQuantity, requested),
		At:           at,
	}
}

// limitPrice validates the order type and returns the LIMIT price (zero for MARKET).
func limitPrice(cmd models.OrderCommand) (decimal.Decimal, error) {
	switch cmd.Type {
	case domain.OrderTypeMarket:
		return decimal.Zero, nil
	case domain.OrderTypeLimit:
		if cmd.Price == nil || !(*cmd.Price > 0) {
			return decimal.Zero, domain.ErrPriceRequired
		}
		return decimal.NewFromFloat(*cmd.Price), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported order type %q", domain.ErrValidation, cmd.Type)
	}
}

func (w *Worker) credentials(ctx context.Context, userID string) (models.Credentials, error) {
	u, err := w.Store.FindUserByID(ctx, userID)
	if store.IsNotFound(err) {
		return models.Credentials{}, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	if err != nil {
		return models.Credentials{}, fmt.Errorf("%w: load user %s: %v", domain.ErrPersistence, userID, err)
	}
	creds, err := auth.UserCredentials(u)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("%w: venue keys for %s: %v", domain.ErrAuth, userID, err)
	}
	return creds, nil
}

// settle records the event and the command's new status in one transaction and
// publishes the settlement only after it commits. ok is false when the command was
// already FILLED or REJECTED, in which case nothing is written or published.
func (w *Worker) settle(ctx context.Context, cmd models.OrderCommand, out Outcome) (bool, error) {
	ev := out.Event(cmd)
	var venueID int64
	var executed float64
	if out.Success != nil {
		venueID = out.Success.VenueOrderID
		executed = out.Success.Executed.InexactFloat64()
	}

	err := w.Store.Settle(ctx, ev, venueID, executed)
	if store.IsNotFound(err) {
		w.Logger.Info("command already settled, skipping",
			zap.String("order_id", cmd.OrderID),
			zap.String("status", ev.Status.String()),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: settle %s: %v", domain.ErrPersistence, ev.OrderID, err)
	}

	if err := w.Bus.Publish(ctx, w.SettledTopic, ev.UserID, ev); err != nil {
		return false, fmt.Errorf("publish settlement %s: %w", ev.OrderID, err)
	}
	return true, nil
}
