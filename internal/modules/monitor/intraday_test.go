package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/helmsman/internal/clients/alpaca"
	"github.com/aristath/helmsman/internal/domain"
)

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func floatPtr(v float64) *float64 { return &v }

type mockBroker struct {
	open      bool
	quotes    map[string]alpaca.Quote
	closed    []string
	canceled  []string
	fills     map[string]float64
	connected int // credential-bound sessions derived
}

// connectTo is the test connector: it counts derivations and hands the
// same mock back.
func connectTo(b *mockBroker) BrokerConnector {
	return func(apiKey, apiSecret string) Broker {
		b.connected++
		return b
	}
}

func (b *mockBroker) IsMarketOpen() (bool, error) { return b.open, nil }

func (b *mockBroker) GetLatestQuote(symbol string) (*alpaca.Quote, error) {
	quote, ok := b.quotes[symbol]
	if !ok {
		return nil, errors.New("no quote")
	}
	return &quote, nil
}

func (b *mockBroker) ClosePosition(symbol string, qty *float64) (*alpaca.Order, error) {
	b.closed = append(b.closed, symbol)
	order := &alpaca.Order{ID: "exit-" + symbol, Symbol: symbol}
	if fill, ok := b.fills[symbol]; ok {
		order.FilledAvgPrice = &fill
	}
	return order, nil
}

func (b *mockBroker) CancelOrder(orderID string) error {
	b.canceled = append(b.canceled, orderID)
	return nil
}

type mockAgentStore struct {
	agents []domain.Agent
	cash   map[int64]float64
}

func (s *mockAgentStore) ListActive() ([]domain.Agent, error) { return s.agents, nil }

func (s *mockAgentStore) UpdateCashBalance(id int64, cashBalance float64) error {
	if s.cash == nil {
		s.cash = make(map[int64]float64)
	}
	s.cash[id] = cashBalance
	return nil
}

type mockUserStore struct {
	creds map[int64]domain.BrokerCredentials
}

func (s *mockUserStore) GetBrokerCredentials(userID int64) (domain.BrokerCredentials, error) {
	return s.creds[userID], nil
}

type priceUpdate struct {
	id    int64
	price float64
}

type closedRow struct {
	id        int64
	exitPrice float64
	rationale string
}

type mockPositionStore struct {
	rows    map[int64][]domain.Position
	updates []priceUpdate
	closed  []closedRow
}

func (s *mockPositionStore) ListOpenByAgent(agentID int64) ([]domain.Position, error) {
	return s.rows[agentID], nil
}

func (s *mockPositionStore) UpdateCurrentPrice(id int64, price, unrealizedPL, unrealizedPct float64) error {
	s.updates = append(s.updates, priceUpdate{id, price})
	return nil
}

func (s *mockPositionStore) Close(id int64, exitPrice float64, exitDate time.Time, exitRationale string, realizedPL, realizedPct float64, exitOrderID string) error {
	s.closed = append(s.closed, closedRow{id, exitPrice, exitRationale})
	return nil
}

type activityRecord struct {
	activityType domain.ActivityType
	summary      string
}

type mockActivityWriter struct {
	records []activityRecord
}

func (w *mockActivityWriter) Record(agentID int64, activityType domain.ActivityType, summary string, details interface{}) error {
	w.records = append(w.records, activityRecord{activityType, summary})
	return nil
}

func connectedCreds(userID int64) map[int64]domain.BrokerCredentials {
	return map[int64]domain.BrokerCredentials{
		userID: {UserID: userID, APIKey: "key", APISecret: "secret"},
	}
}

func quote(bid, ask float64) alpaca.Quote {
	return alpaca.Quote{BidPrice: bid, AskPrice: ask}
}

func TestSweep_StopBreachForcesExit(t *testing.T) {
	broker := &mockBroker{
		open:   true,
		quotes: map[string]alpaca.Quote{"AAPL": quote(88.9, 89.1)},
		fills:  map[string]float64{"AAPL": 89},
	}
	agents := &mockAgentStore{agents: []domain.Agent{
		{ID: 1, UserID: 1, Status: domain.AgentStatusActive, CashBalance: 1000},
	}}
	positions := &mockPositionStore{rows: map[int64][]domain.Position{
		1: {{
			ID: 10, AgentID: 1, Ticker: "AAPL", Side: domain.SideLong,
			Status: domain.PositionOpen, Shares: 20, EntryPrice: 100,
			CurrentPrice: 95, StopLossPrice: floatPtr(90),
			StopOrderID: "stop-1", TargetOrderID: "target-1",
			EntryDate: time.Now().Add(-24 * time.Hour),
		}},
	}}
	activities := &mockActivityWriter{}

	monitor := New(connectTo(broker), agents, &mockUserStore{creds: connectedCreds(1)}, positions, activities, testLog())
	err := monitor.Sweep(time.Now())
	assert.NoError(t, err)

	// Brackets cancel before the market close.
	assert.ElementsMatch(t, []string{"stop-1", "target-1"}, broker.canceled)
	assert.Equal(t, []string{"AAPL"}, broker.closed)

	assert.Len(t, positions.closed, 1)
	assert.Equal(t, int64(10), positions.closed[0].id)
	assert.Equal(t, 89.0, positions.closed[0].exitPrice)
	assert.Contains(t, positions.closed[0].rationale, "Stop-loss breached")

	// 1000 + 20 * 89.
	assert.InDelta(t, 2780.0, agents.cash[1], 1e-9)

	assert.Len(t, activities.records, 1)
	assert.Equal(t, domain.ActivityStopHit, activities.records[0].activityType)
	assert.Contains(t, activities.records[0].summary, "Exited 20 AAPL @ 89.00")
}

func TestSweep_TakeProfitUsesTargetHitActivity(t *testing.T) {
	broker := &mockBroker{
		open:   true,
		quotes: map[string]alpaca.Quote{"MSFT": quote(124, 126)},
		fills:  map[string]float64{"MSFT": 125},
	}
	agents := &mockAgentStore{agents: []domain.Agent{
		{ID: 1, UserID: 1, Status: domain.AgentStatusActive},
	}}
	positions := &mockPositionStore{rows: map[int64][]domain.Position{
		1: {{
			ID: 11, AgentID: 1, Ticker: "MSFT", Side: domain.SideLong,
			Status: domain.PositionOpen, Shares: 10, EntryPrice: 100,
			CurrentPrice: 110, TargetPrice: floatPtr(120),
			EntryDate: time.Now().Add(-24 * time.Hour),
		}},
	}}
	activities := &mockActivityWriter{}

	monitor := New(connectTo(broker), agents, &mockUserStore{creds: connectedCreds(1)}, positions, activities, testLog())
	assert.NoError(t, monitor.Sweep(time.Now()))

	assert.Len(t, activities.records, 1)
	assert.Equal(t, domain.ActivityTargetHit, activities.records[0].activityType)
}

func TestSweep_HealthyPositionOnlyRefreshesPrice(t *testing.T) {
	broker := &mockBroker{
		open:   true,
		quotes: map[string]alpaca.Quote{"AAPL": quote(104, 106)},
	}
	agents := &mockAgentStore{agents: []domain.Agent{
		{ID: 1, UserID: 1, Status: domain.AgentStatusActive, CashBalance: 1000},
	}}
	positions := &mockPositionStore{rows: map[int64][]domain.Position{
		1: {{
			ID: 12, AgentID: 1, Ticker: "AAPL", Side: domain.SideLong,
			Status: domain.PositionOpen, Shares: 20, EntryPrice: 100,
			CurrentPrice: 100, StopLossPrice: floatPtr(90), TargetPrice: floatPtr(120),
			EntryDate: time.Now().Add(-24 * time.Hour),
		}},
	}}

	monitor := New(connectTo(broker), agents, &mockUserStore{creds: connectedCreds(1)}, positions, &mockActivityWriter{}, testLog())
	assert.NoError(t, monitor.Sweep(time.Now()))

	assert.Len(t, positions.updates, 1)
	assert.Equal(t, 105.0, positions.updates[0].price)
	assert.Empty(t, broker.closed)
	assert.Empty(t, positions.closed)
	// No exits, no cash sync.
	assert.Empty(t, agents.cash)
}

func TestSweep_SkipsUsersWithoutBroker(t *testing.T) {
	broker := &mockBroker{open: true}
	agents := &mockAgentStore{agents: []domain.Agent{
		{ID: 1, UserID: 1, Status: domain.AgentStatusActive},
	}}
	positions := &mockPositionStore{rows: map[int64][]domain.Position{
		1: {{ID: 13, AgentID: 1, Ticker: "AAPL", Status: domain.PositionOpen, Shares: 10, EntryPrice: 100, CurrentPrice: 80, StopLossPrice: floatPtr(90)}},
	}}

	monitor := New(connectTo(broker), agents, &mockUserStore{}, positions, &mockActivityWriter{}, testLog())
	assert.NoError(t, monitor.Sweep(time.Now()))

	assert.Zero(t, broker.connected)
	assert.Empty(t, broker.closed)
	assert.Empty(t, positions.closed)
}

func TestSweep_SkipsWhenMarketClosed(t *testing.T) {
	broker := &mockBroker{open: false}
	agents := &mockAgentStore{agents: []domain.Agent{
		{ID: 1, UserID: 1, Status: domain.AgentStatusActive},
	}}
	positions := &mockPositionStore{rows: map[int64][]domain.Position{
		1: {{ID: 14, AgentID: 1, Ticker: "AAPL", Status: domain.PositionOpen, Shares: 10, EntryPrice: 100, CurrentPrice: 80, StopLossPrice: floatPtr(90)}},
	}}

	monitor := New(connectTo(broker), agents, &mockUserStore{creds: connectedCreds(1)}, positions, &mockActivityWriter{}, testLog())
	assert.NoError(t, monitor.Sweep(time.Now()))

	assert.Equal(t, 1, broker.connected)
	assert.Empty(t, positions.updates)
	assert.Empty(t, positions.closed)
}

func TestSweep_MissingQuoteLeavesPositionAlone(t *testing.T) {
	broker := &mockBroker{open: true, quotes: map[string]alpaca.Quote{}}
	agents := &mockAgentStore{agents: []domain.Agent{
		{ID: 1, UserID: 1, Status: domain.AgentStatusActive},
	}}
	positions := &mockPositionStore{rows: map[int64][]domain.Position{
		1: {{ID: 15, AgentID: 1, Ticker: "AAPL", Status: domain.PositionOpen, Shares: 10, EntryPrice: 100, CurrentPrice: 80, StopLossPrice: floatPtr(90)}},
	}}

	monitor := New(connectTo(broker), agents, &mockUserStore{creds: connectedCreds(1)}, positions, &mockActivityWriter{}, testLog())
	assert.NoError(t, monitor.Sweep(time.Now()))

	assert.Empty(t, positions.updates)
	assert.Empty(t, positions.closed)
}
