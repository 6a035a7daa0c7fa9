package ingress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/order-pipeline/internal/bus"
	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder keeps one ordered log of store writes and bus publishes.
type recorder struct {
	mu       sync.Mutex
	steps    []string
	commands []models.OrderCommand
	err      error
}

func (r *recorder) CreateCommand(ctx context.Context, c models.OrderCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.steps = append(r.steps, "persist:"+c.OrderID)
	r.commands = append(r.commands, c)
	return nil
}

func (r *recorder) ListUnclaimed(ctx context.Context, olderThan time.Time, limit int) ([]models.OrderCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OrderCommand
	for _, c := range r.commands {
		if c.Timestamp.Before(olderThan) && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *recorder) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

const submitted = "order.submitted"

func newService(t *testing.T) (*Service, *recorder, *bus.Mem) {
	t.Helper()
	rec := &recorder{}
	mem := bus.NewMem()
	mem.Subscribe(submitted, func(ctx context.Context, m bus.Message) error {
		c, err := bus.Decode[models.OrderCommand](m)
		require.NoError(t, err)
		rec.mu.Lock()
		rec.steps = append(rec.steps, "publish:"+c.OrderID)
		rec.mu.Unlock()
		return nil
	})
	return NewService(rec, mem, submitted, zap.NewNop()), rec, mem
}

func price(p float64) *float64 { return &p }

func Test_Submit_PersistsThenPublishes(t *testing.T) {
	svc, rec, mem := newService(t)

	resp, err := svc.Submit(context.Background(), "u1", models.SubmitOrderRequest{
		Symbol: " btcusdt ", Side: "buy", Type: "MARKET", Quantity: 0.00017,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, resp.Status)
	require.NotEmpty(t, resp.OrderID)

	require.Equal(t, []string{"persist:" + resp.OrderID, "publish:" + resp.OrderID}, rec.log())

	msgs := mem.Published(submitted)
	require.Len(t, msgs, 1)
	require.Equal(t, "u1", msgs[0].Key)
	cmd, err := bus.Decode[models.OrderCommand](msgs[0])
	require.NoError(t, err)
	require.Equal(t, resp.OrderID, cmd.OrderID)
	require.Equal(t, "BTCUSDT", cmd.Symbol)
	require.Equal(t, domain.SideBuy, cmd.Side)
	require.Equal(t, domain.OrderTypeMarket, cmd.Type)
	require.Equal(t, 0.00017, cmd.Quantity)
	require.Nil(t, cmd.Price)
	require.False(t, cmd.Timestamp.IsZero())
}

func Test_Submit_PriceHandling(t *testing.T) {
	svc, rec, _ := newService(t)

	_, err := svc.Submit(context.Background(), "u1", models.SubmitOrderRequest{Symbol: "ETHUSDT", Side: "SELL", Type: "MARKET", Quantity: 1, Price: price(10)})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), "u1", models.SubmitOrderRequest{Symbol: "ETHUSDT", Side: "SELL", Type: "LIMIT", Quantity: 1, Price: price(2500)})
	require.NoError(t, err)
	// A LIMIT without price is accepted here; the worker rejects it.
	_, err = svc.Submit(context.Background(), "u1", models.SubmitOrderRequest{Symbol: "ETHUSDT", Side: "SELL", Type: "LIMIT", Quantity: 1})
	require.NoError(t, err)

	require.Len(t, rec.commands, 3)
	require.Nil(t, rec.commands[0].Price)
	require.Equal(t, 2500.0, *rec.commands[1].Price)
	require.Nil(t, rec.commands[2].Price)
}

func Test_Submit_ValidationRejectsBeforePersist(t *testing.T) {
	cases := map[string]models.SubmitOrderRequest{
		"bad type":      {Symbol: "BTCUSDT", Side: "BUY", Type: "STOP", Quantity: 1},
		"no type":       {Symbol: "BTCUSDT", Side: "BUY", Quantity: 1},
		"no symbol":     {Side: "BUY", Type: "MARKET", Quantity: 1},
		"no side":       {Symbol: "BTCUSDT", Type: "MARKET", Quantity: 1},
		"bad side":      {Symbol: "BTCUSDT", Side: "HOLD", Type: "MARKET", Quantity: 1},
		"zero quantity": {Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET"},
		"negative qty":  {Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: -2},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			svc, rec, mem := newService(t)
			_, err := svc.Submit(context.Background(), "u1", req)
			require.ErrorIs(t, err, domain.ErrValidation)
			require.Empty(t, rec.log())
			require.Empty(t, mem.Published(submitted))
		})
	}
}

func Test_Submit_PersistFailureNeverPublishes(t *testing.T) {
	svc, rec, mem := newService(t)
	rec.err = errors.New("connection refused")

	_, err := svc.Submit(context.Background(), "u1", models.SubmitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.Empty(t, mem.Published(submitted))
}

func Test_Submit_PublishFailureStillAccepted(t *testing.T) {
	svc, rec, mem := newService(t)
	mem.Err = errors.New("broker unavailable")

	resp, err := svc.Submit(context.Background(), "u1", models.SubmitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, resp.Status)
	require.Equal(t, []string{"persist:" + resp.OrderID}, rec.log())
}

func Test_Sweeper_RepublishesUnclaimed(t *testing.T) {
	svc, rec, mem := newService(t)
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	mem.Err = errors.New("broker unavailable")
	resp, err := svc.Submit(context.Background(), "u1", models.SubmitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: 1})
	require.NoError(t, err)
	mem.Err = nil

	sw := NewSweeper(svc, time.Second, time.Minute, 10)

	n, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, n, "too young to sweep")

	now = now.Add(2 * time.Minute)
	n, err = sw.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"persist:" + resp.OrderID, "publish:" + resp.OrderID}, rec.log())
}

func Test_Sweeper_StopsOnBusError(t *testing.T) {
	svc, _, mem := newService(t)
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		_, err := svc.Submit(context.Background(), "u1", models.SubmitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Quantity: 1})
		require.NoError(t, err)
	}
	now = now.Add(time.Hour)
	mem.Err = errors.New("broker unavailable")

	n, err := NewSweeper(svc, time.Second, time.Minute, 10).Sweep(context.Background())
	require.Error(t, err)
	require.Zero(t, n)
}
