package ingress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/order-pipeline/internal/bus"
	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the slice of the Command Store ingress writes to.
type Store interface {
	CreateCommand(ctx context.Context, c models.OrderCommand) error
	ListUnclaimed(ctx context.Context, olderThan time.Time, limit int) ([]models.OrderCommand, error)
}

// Service accepts client order requests, persists them PENDING and hands them
// to the execution worker through the submitted topic.
type Service struct {
	Store          Store
	Bus            bus.Publisher
	SubmittedTopic string
	Logger         *zap.Logger
	now            func() time.Time
	newID          func() string
}

func NewService(st Store, pub bus.Publisher, submittedTopic string, logger *zap.Logger) *Service {
	return &Service{
		Store:          st,
		Bus:            pub,
		SubmittedTopic: submittedTopic,
		Logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

// Submit validates req and accepts it for userID. The response never waits on
// execution. A publish failure is logged only; the Sweeper republishes the
// command later.
func (s *Service) Submit(ctx context.Context, userID string, req models.SubmitOrderRequest) (models.SubmitOrderResponse, error) {
	cmd, err := s.command(userID, req)
	if err != nil {
		return models.SubmitOrderResponse{}, err
	}

	if err := s.Store.CreateCommand(ctx, cmd); err != nil {
		return models.SubmitOrderResponse{}, fmt.Errorf("%w: create command: %v", domain.ErrPersistence, err)
	}

	log := s.Logger.With(zap.String("order_id", cmd.OrderID), zap.String("user_id", userID))
	if err := s.Bus.Publish(ctx, s.SubmittedTopic, cmd.UserID, cmd); err != nil {
		log.Error("publish submitted command; left for sweep", zap.Error(err))
	} else {
		log.Info("order accepted",
			zap.String("symbol", cmd.Symbol),
			zap.String("side", cmd.Side.String()),
			zap.String("type", cmd.Type.String()),
			zap.Float64("quantity", cmd.Quantity),
		)
	}
	return models.SubmitOrderResponse{OrderID: cmd.OrderID, Status: domain.StatusPending}, nil
}

func (s *Service) command(userID string, req models.SubmitOrderRequest) (models.OrderCommand, error) {
	if strings.TrimSpace(userID) == "" {
		return models.OrderCommand{}, fmt.Errorf("%w: user is required", domain.ErrValidation)
	}
	typ, ok := domain.ParseOrderType(req.Type)
	if !ok {
		return models.OrderCommand{}, fmt.Errorf("%w: type must be MARKET or LIMIT", domain.ErrValidation)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return models.OrderCommand{}, fmt.Errorf("%w: symbol is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Side) == "" {
		return models.OrderCommand{}, fmt.Errorf("%w: side is required", domain.ErrValidation)
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		return models.OrderCommand{}, fmt.Errorf("%w: side must be BUY or SELL", domain.ErrValidation)
	}
	if !(req.Quantity > 0) {
		return models.OrderCommand{}, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}

	cmd := models.OrderCommand{
		OrderID:   s.newID(),
		UserID:    userID,
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Quantity:  req.Quantity,
		Status:    domain.StatusPending,
		Timestamp: s.now(),
	}
	if typ == domain.OrderTypeLimit && req.Price != nil {
		p := *req.Price
		cmd.Price = &p
	}
	return cmd, nil
}
