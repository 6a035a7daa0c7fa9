package execution

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/order-pipeline/internal/bus"
	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/exchange"
	"github.com/example/order-pipeline/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const settled = "order.settled"

type harness struct {
	store  *fakeStore
	venue  *fakeVenue
	bus    *bus.Mem
	worker *Worker
}

func newHarness() *harness {
	h := &harness{store: newFakeStore(), venue: newFakeVenue(), bus: bus.NewMem()}
	h.store.addUser("u1")
	h.worker = NewWorker(h.store, h.venue, h.bus, settled, zap.NewNop())
	return h
}

func (h *harness) submit(t *testing.T, c models.OrderCommand) models.OrderCommand {
	t.Helper()
	if c.OrderID == "" {
		c.OrderID = uuid.NewString()
	}
	if c.UserID == "" {
		c.UserID = "u1"
	}
	c.Timestamp = time.Now().UTC()
	h.store.addCommand(c)
	b, err := json.Marshal(c)
	require.NoError(t, err)
	require.NoError(t, h.worker.HandleMessage(context.Background(), bus.Message{Topic: "order.submitted", Key: c.UserID, Value: b}))
	return c
}

func (h *harness) settlements(t *testing.T) []models.OrderEvent {
	t.Helper()
	var out []models.OrderEvent
	for _, m := range h.bus.Published(settled) {
		ev, err := bus.Decode[models.OrderEvent](m)
		require.NoError(t, err)
		require.Equal(t, ev.UserID, m.Key)
		out = append(out, ev)
	}
	return out
}

func price(p float64) *float64 { return &p }

func Test_Worker_MarketOrderQuantizedAndFilled(t *testing.T) {
	h := newHarness()
	c := h.submit(t, models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.00017})

	require.Equal(t, 1, h.venue.submitCalls)
	sent := h.venue.submitted[0]
	require.Equal(t, "0.0001", sent.Quantity.String())
	require.Equal(t, "MARKET", sent.Type)
	require.Equal(t, c.OrderID, sent.ClientOrderID)
	require.True(t, sent.Price.IsZero())
	require.Empty(t, sent.TimeInForce)

	evs := h.settlements(t)
	require.Len(t, evs, 1)
	require.Equal(t, c.OrderID, evs[0].OrderID)
	require.Equal(t, domain.StatusFilled, evs[0].Status)
	require.Equal(t, 0.0001, evs[0].Quantity)
	require.Equal(t, 30000.0, evs[0].Price)
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), evs[0].Timestamp)

	require.Equal(t, domain.StatusFilled, h.store.status(c.OrderID))
	require.Len(t, h.store.events, 1)
}

func Test_Worker_LimitOrderUsesGTC(t *testing.T) {
	h := newHarness()
	h.venue.result = exchange.OrderResult{VenueOrderID: 5, Status: "NEW", Price: decimal.RequireFromString("25000")}
	c := h.submit(t, models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideSell, Type: domain.OrderTypeLimit, Quantity: 0.0002, Price: price(25000)})

	sent := h.venue.submitted[0]
	require.Equal(t, "GTC", sent.TimeInForce)
	require.Equal(t, "25000", sent.Price.String())

	evs := h.settlements(t)
	require.Len(t, evs, 1)
	require.Equal(t, domain.StatusPending, evs[0].Status)
	require.Equal(t, 25000.0, evs[0].Price)
	require.Equal(t, 0.0002, evs[0].Quantity)
	require.EqualValues(t, 5, h.store.commands[c.OrderID].VenueOrderID)
}

func Test_Worker_LimitWithoutPriceNeverReachesVenue(t *testing.T) {
	for _, p := range []*float64{nil, price(0), price(-3)} {
		h := newHarness()
		c := h.submit(t, models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeLimit, Quantity: 1, Price: p})

		require.Zero(t, h.venue.rulesCalls)
		require.Zero(t, h.venue.submitCalls)
		evs := h.settlements(t)
		require.Len(t, evs, 1)
		require.Equal(t, domain.StatusRejected, evs[0].Status)
		require.Equal(t, 1.0, evs[0].Quantity)
		require.Zero(t, evs[0].Price)
		require.Equal(t, domain.StatusRejected, h.store.status(c.OrderID))
	}
}

func Test_Worker_RejectionReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(h *harness, c *models.OrderCommand)
		venue  int
	}{
		{"user not found", func(h *harness, c *models.OrderCommand) { c.UserID = "ghost" }, 0},
		{"symbol not found", func(h *harness, c *models.OrderCommand) { c.Symbol = "NOPEUSDT" }, 0},
		{"filter not found", func(h *harness, c *models.OrderCommand) {
			h.venue.rules["XUSDT"] = exchange.SymbolRules{Symbol: "XUSDT"}
			c.Symbol = "XUSDT"
		}, 0},
		{"quantity too small", func(h *harness, c *models.OrderCommand) {
			h.venue.rules["DUSTUSDT"] = lotSize("0", "1")
			c.Symbol = "DUSTUSDT"
			c.Quantity = 0.5
		}, 0},
		{"adapter error", func(h *harness, c *models.OrderCommand) {
			h.venue.submitErr = errors.New("connection reset")
		}, 1},
		{"unsupported type", func(h *harness, c *models.OrderCommand) { c.Type = "STOP" }, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			c := models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.5}
			tc.mutate(h, &c)
			c = h.submit(t, c)

			require.Equal(t, tc.venue, h.venue.submitCalls)
			evs := h.settlements(t)
			require.Len(t, evs, 1)
			require.Equal(t, domain.StatusRejected, evs[0].Status)
			require.Equal(t, c.OrderID, evs[0].OrderID)
			require.Equal(t, c.Symbol, evs[0].Symbol)
			require.Equal(t, c.Quantity, evs[0].Quantity)
			require.Equal(t, domain.StatusRejected, h.store.status(c.OrderID))
		})
	}
}

func Test_Worker_RedeliveryExecutesOnce(t *testing.T) {
	h := newHarness()
	c := h.submit(t, models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.0001})

	b, err := json.Marshal(c)
	require.NoError(t, err)
	require.NoError(t, h.worker.HandleMessage(context.Background(), bus.Message{Value: b}))
	require.NoError(t, h.worker.Handle(context.Background(), c))

	require.Equal(t, 1, h.venue.submitCalls)
	require.Len(t, h.settlements(t), 1)
}

func Test_Worker_UnknownCommandIsSkipped(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.worker.Handle(context.Background(), models.OrderCommand{OrderID: uuid.NewString(), UserID: "u1"}))
	require.Zero(t, h.venue.submitCalls)
	require.Empty(t, h.settlements(t))
}

func Test_Worker_MalformedMessagesDropped(t *testing.T) {
	h := newHarness()
	for _, raw := range []string{`not json`, `{"userId":"u1"}`, `{"orderId":"nope"}`} {
		require.NoError(t, h.worker.HandleMessage(context.Background(), bus.Message{Value: []byte(raw)}))
	}
	require.Zero(t, h.venue.submitCalls)
	require.Empty(t, h.settlements(t))
}

func Test_Worker_NoPublishWithoutPersistedEvent(t *testing.T) {
	h := newHarness()
	h.store.eventErr = errors.New("db down")
	c := models.OrderCommand{OrderID: uuid.NewString(), UserID: "u1", Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.0001}
	h.store.addCommand(c)

	err := h.worker.Handle(context.Background(), c)
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.Empty(t, h.settlements(t))
	require.Equal(t, domain.StatusPending, h.store.status(c.OrderID))
}

func Test_Worker_StatusWriteFailureBlocksPublish(t *testing.T) {
	h := newHarness()
	h.store.statusErr = errors.New("could not serialize access")
	c := models.OrderCommand{OrderID: uuid.NewString(), UserID: "u1", Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.0001}
	h.store.addCommand(c)

	err := h.worker.Handle(context.Background(), c)
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.Equal(t, 1, h.venue.submitCalls)
	require.Empty(t, h.settlements(t))
	require.Empty(t, h.store.events)
	require.Equal(t, domain.StatusPending, h.store.status(c.OrderID))
}

func Test_Worker_SettleSkipsTerminalCommand(t *testing.T) {
	h := newHarness()
	c := h.submit(t, models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.0001})
	require.Equal(t, domain.StatusFilled, h.store.status(c.OrderID))

	ok, err := h.worker.settle(context.Background(), c, succeeded(Fill{Status: domain.StatusRejected, At: time.Now().UTC()}))
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, h.settlements(t), 1)
	require.Len(t, h.store.events, 1)
	require.Equal(t, domain.StatusFilled, h.store.status(c.OrderID))
}

func Test_Worker_OutOfOrderDeliveryForOneUser(t *testing.T) {
	h := newHarness()
	deliver := func(c models.OrderCommand) {
		raw, err := json.Marshal(c)
		require.NoError(t, err)
		require.NoError(t, h.worker.HandleMessage(context.Background(), bus.Message{Topic: "order.submitted", Key: c.UserID, Value: raw}))
	}

	a := models.OrderCommand{OrderID: uuid.NewString(), UserID: "u1", Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.0001, Timestamp: time.Now().UTC()}
	b := a
	b.OrderID = uuid.NewString()
	b.Side = domain.SideSell
	b.Timestamp = a.Timestamp.Add(time.Millisecond)
	h.store.addCommand(a)
	h.store.addCommand(b)

	deliver(b)
	deliver(a)
	deliver(b)

	evs := h.settlements(t)
	require.Len(t, evs, 2)
	require.Equal(t, b.OrderID, evs[0].OrderID)
	require.Equal(t, a.OrderID, evs[1].OrderID)
	for _, ev := range evs {
		cmd := h.store.commands[ev.OrderID]
		require.Equal(t, cmd.UserID, ev.UserID)
		require.Equal(t, cmd.Side, ev.Side)
		require.Equal(t, cmd.Symbol, ev.Symbol)
		require.Equal(t, cmd.Status, ev.Status)
	}
	require.Equal(t, 2, h.venue.submitCalls)
	require.Equal(t, b.OrderID, h.venue.submitted[0].ClientOrderID)
	require.Equal(t, "SELL", h.venue.submitted[0].Side)
	require.Equal(t, a.OrderID, h.venue.submitted[1].ClientOrderID)

	// The message overtook its command row: nothing settles until the row exists.
	c := a
	c.OrderID = uuid.NewString()
	deliver(c)
	require.Len(t, h.settlements(t), 2)
	require.Equal(t, 2, h.venue.submitCalls)

	h.store.addCommand(c)
	deliver(c)
	evs = h.settlements(t)
	require.Len(t, evs, 3)
	require.Equal(t, c.OrderID, evs[2].OrderID)
}

func Test_Worker_EveryCommandSettlesOnce(t *testing.T) {
	h := newHarness()
	cmds := []models.OrderCommand{
		{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.001},
		{Symbol: "BTCUSDT", Side: domain.SideSell, Type: domain.OrderTypeLimit, Quantity: 0.001},
		{Symbol: "ETHUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 1},
		{UserID: "ghost", Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 1},
	}
	ids := map[string]bool{}
	for _, c := range cmds {
		ids[h.submit(t, c).OrderID] = true
	}

	evs := h.settlements(t)
	require.Len(t, evs, len(cmds))
	for _, ev := range evs {
		require.True(t, ids[ev.OrderID])
		require.True(t, ev.Status.Terminal())
		delete(ids, ev.OrderID)
	}
	require.Empty(t, ids)
}

func Test_Tracker_SettlesRestingOrder(t *testing.T) {
	h := newHarness()
	h.venue.result = exchange.OrderResult{VenueOrderID: 9, Status: "NEW", Price: decimal.RequireFromString("100")}
	c := h.submit(t, models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeLimit, Quantity: 0.001, Price: price(100)})

	tr := NewTracker(h.worker, time.Second, 10)

	h.venue.queryResult = exchange.OrderResult{VenueOrderID: 9, Status: "NEW"}
	n, err := tr.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	h.venue.queryResult = exchange.OrderResult{VenueOrderID: 9, Status: "FILLED", Price: decimal.RequireFromString("100"), ExecutedQuantity: decimal.RequireFromString("0.001")}
	n, err = tr.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	evs := h.settlements(t)
	require.Len(t, evs, 2)
	require.Equal(t, domain.StatusPending, evs[0].Status)
	require.Equal(t, domain.StatusFilled, evs[1].Status)
	require.Equal(t, domain.StatusFilled, h.store.status(c.OrderID))

	n, err = tr.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func Test_Tracker_ReportsQuantizedQuantityWhenNothingExecuted(t *testing.T) {
	h := newHarness()
	h.venue.result = exchange.OrderResult{VenueOrderID: 11, Status: "NEW", Price: decimal.RequireFromString("100")}
	c := h.submit(t, models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeLimit, Quantity: 0.00017, Price: price(100)})

	h.venue.queryResult = exchange.OrderResult{VenueOrderID: 11, Status: "CANCELED"}
	n, err := NewTracker(h.worker, time.Second, 10).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []exchange.OrderRef{{VenueOrderID: 11, ClientOrderID: c.OrderID}}, h.venue.queried)

	evs := h.settlements(t)
	require.Len(t, evs, 2)
	require.Equal(t, domain.StatusRejected, evs[1].Status)
	require.Equal(t, 0.0001, evs[0].Quantity)
	require.Equal(t, 0.0001, evs[1].Quantity)
}

func Test_Tracker_SettlesPartialFillProgress(t *testing.T) {
	h := newHarness()
	d := decimal.RequireFromString
	partial := func(executed string) exchange.OrderResult {
		return exchange.OrderResult{VenueOrderID: 12, Status: "PARTIALLY_FILLED", Price: d("100"), ExecutedQuantity: d(executed)}
	}
	h.venue.result = partial("0.0004")
	c := h.submit(t, models.OrderCommand{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeLimit, Quantity: 0.001, Price: price(100)})
	require.Equal(t, domain.StatusPartiallyFilled, h.store.status(c.OrderID))
	require.Equal(t, 0.0004, h.store.commands[c.OrderID].Executed)

	tr := NewTracker(h.worker, time.Second, 10)
	sweep := func() int {
		n, err := tr.Sweep(context.Background())
		require.NoError(t, err)
		return n
	}

	h.venue.queryResult = partial("0.0004")
	require.Zero(t, sweep())

	h.venue.queryResult = partial("0.0007")
	require.Equal(t, 1, sweep())
	require.Zero(t, sweep())

	h.venue.queryResult = exchange.OrderResult{VenueOrderID: 12, Status: "FILLED", Price: d("100"), ExecutedQuantity: d("0.001")}
	require.Equal(t, 1, sweep())

	evs := h.settlements(t)
	require.Len(t, evs, 3)
	require.Equal(t, []float64{0.0004, 0.0007, 0.001}, []float64{evs[0].Quantity, evs[1].Quantity, evs[2].Quantity})
	require.Equal(t, domain.StatusPartiallyFilled, evs[1].Status)
	require.Equal(t, domain.StatusFilled, evs[2].Status)
	require.Equal(t, domain.StatusFilled, h.store.status(c.OrderID))
}

func Test_Progressed(t *testing.T) {
	d := decimal.RequireFromString
	open := models.OrderCommand{Status: domain.StatusPartiallyFilled, Executed: 0.0004}
	require.False(t, progressed(open, Fill{Status: domain.StatusPending}))
	require.False(t, progressed(open, Fill{Status: domain.StatusPartiallyFilled, Executed: d("0.0004")}))
	require.True(t, progressed(open, Fill{Status: domain.StatusPartiallyFilled, Executed: d("0.0005")}))
	require.True(t, progressed(open, Fill{Status: domain.StatusFilled, Executed: d("0.0004")}))
}

func Test_Outcome_RejectionFallbacks(t *testing.T) {
	ev := rejected(domain.ErrUserNotFound, time.Time{}).Event(models.OrderCommand{Quantity: 2})
	require.Equal(t, domain.Unknown, ev.OrderID)
	require.Equal(t, domain.Unknown, ev.UserID)
	require.Equal(t, domain.Unknown, ev.Symbol)
	require.Equal(t, domain.Side(domain.Unknown), ev.Side)
	require.Equal(t, domain.StatusRejected, ev.Status)
	require.Equal(t, 2.0, ev.Quantity)
	require.False(t, ev.Timestamp.IsZero())
}

func Test_EffectivePrice(t *testing.T) {
	d := decimal.RequireFromString
	require.Equal(t, "101", effectivePrice(d("101"), d("50"), d("1"), d("1")).String())
	require.Equal(t, "25", effectivePrice(d("0"), d("50"), d("2"), d("1")).String())
	require.Equal(t, "50", effectivePrice(d("0"), d("50"), d("0"), d("1")).String())
	require.True(t, effectivePrice(d("0"), d("0"), d("2"), d("2")).IsZero())
}

func Test_VenueStatus(t *testing.T) {
	require.Equal(t, domain.StatusFilled, venueStatus(""))
	require.Equal(t, domain.StatusFilled, venueStatus("FILLED"))
	require.Equal(t, domain.StatusPartiallyFilled, venueStatus("PARTIALLY_FILLED"))
	require.Equal(t, domain.StatusRejected, venueStatus("EXPIRED"))
	require.Equal(t, domain.StatusPending, venueStatus("NEW"))
}
