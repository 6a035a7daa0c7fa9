package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/order-pipeline/internal/auth"
	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/exchange"
	"github.com/example/order-pipeline/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type fakeStore struct {
	mu       sync.Mutex
	commands map[string]*models.OrderCommand
	claimed  map[string]bool
	users    map[string]models.User
	events   []models.OrderEvent

	statusErr error
	eventErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		commands: map[string]*models.OrderCommand{},
		claimed:  map[string]bool{},
		users:    map[string]models.User{},
	}
}

func (s *fakeStore) addUser(id string) {
	s.users[id] = models.User{ID: id, APIKey: auth.EncodeSecret("key-" + id), SecretKey: auth.EncodeSecret("secret-" + id)}
}

func (s *fakeStore) addCommand(c models.OrderCommand) {
	c.Status = domain.StatusPending
	s.commands[c.OrderID] = &c
}

func (s *fakeStore) ClaimCommand(ctx context.Context, orderID string) (models.OrderCommand, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[orderID]
	if !ok || s.claimed[orderID] || c.Status != domain.StatusPending {
		return models.OrderCommand{}, false, nil
	}
	s.claimed[orderID] = true
	return *c, true, nil
}

// Settle mirrors the transactional store: on any failure neither the command
// nor the event log changes.
func (s *fakeStore) Settle(ctx context.Context, ev models.OrderEvent, venueOrderID int64, executed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[ev.OrderID]
	if !ok || c.Status.Terminal() {
		return pgx.ErrNoRows
	}
	if s.statusErr != nil {
		return s.statusErr
	}
	if s.eventErr != nil {
		return s.eventErr
	}
	c.Status = ev.Status
	if venueOrderID != 0 {
		c.VenueOrderID = venueOrderID
	}
	if executed > c.Executed {
		c.Executed = executed
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) ListOpenCommands(ctx context.Context, limit int) ([]models.OrderCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OrderCommand
	for _, c := range s.commands {
		if c.VenueOrderID != 0 && (c.Status == domain.StatusPending || c.Status == domain.StatusPartiallyFilled) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeStore) FindUserByID(ctx context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *fakeStore) status(orderID string) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands[orderID].Status
}

type fakeVenue struct {
	mu          sync.Mutex
	rules       map[string]exchange.SymbolRules
	result      exchange.OrderResult
	submitErr   error
	queryResult exchange.OrderResult

	rulesCalls  int
	submitCalls int
	submitted   []exchange.OrderParams
	queried     []exchange.OrderRef
}

func lotSize(min, step string) exchange.SymbolRules {
	return exchange.SymbolRules{Filters: []exchange.Filter{{
		FilterType: "LOT_SIZE",
		MinQty:     decimal.RequireFromString(min),
		StepSize:   decimal.RequireFromString(step),
	}}}
}

func newFakeVenue() *fakeVenue {
	btc := lotSize("0.0001", "0.0001")
	btc.Symbol = "BTCUSDT"
	return &fakeVenue{
		rules: map[string]exchange.SymbolRules{"BTCUSDT": btc},
		result: exchange.OrderResult{
			VenueOrderID:     1,
			Status:           "FILLED",
			Price:            decimal.Zero,
			CumulativeQuote:  decimal.RequireFromString("3"),
			ExecutedQuantity: decimal.RequireFromString("0.0001"),
			TransactTime:     time.UnixMilli(1700000000000).UTC(),
		},
	}
}

func (v *fakeVenue) TradingRules(ctx context.Context, symbol string) (exchange.SymbolRules, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rulesCalls++
	r, ok := v.rules[symbol]
	if !ok {
		return exchange.SymbolRules{}, domain.ErrSymbolNotFound
	}
	return r, nil
}

func (v *fakeVenue) SubmitOrder(ctx context.Context, creds models.Credentials, p exchange.OrderParams) (exchange.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitCalls++
	v.submitted = append(v.submitted, p)
	if v.submitErr != nil {
		return exchange.OrderResult{}, v.submitErr
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return exchange.OrderResult{}, errors.New("unsigned request")
	}
	return v.result, nil
}

func (v *fakeVenue) QueryOrder(ctx context.Context, creds models.Credentials, symbol string, ref exchange.OrderRef) (exchange.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.queried = append(v.queried, ref)
	return v.queryResult, nil
}
