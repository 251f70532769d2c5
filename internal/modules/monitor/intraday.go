// Package monitor is the intraday safety net: it refreshes live prices on
// open positions and force-exits anything whose stop, target or holding
// limit trips between nightly runs. It never opens new positions.
package monitor

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/clients/alpaca"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/modules/engine"
)

// Broker is the quote and exit surface the monitor needs, already bound
// to one user's credentials.
type Broker interface {
	IsMarketOpen() (bool, error)
	GetLatestQuote(symbol string) (*alpaca.Quote, error)
	ClosePosition(symbol string, qty *float64) (*alpaca.Order, error)
	CancelOrder(orderID string) error
}

// BrokerConnector derives a credential-bound broker for one user, so
// users of the sweep never share credential state.
type BrokerConnector func(apiKey, apiSecret string) Broker

// AgentStore lists agents and syncs cash
type AgentStore interface {
	ListActive() ([]domain.Agent, error)
	UpdateCashBalance(id int64, cashBalance float64) error
}

// UserStore resolves broker credentials per user
type UserStore interface {
	GetBrokerCredentials(userID int64) (domain.BrokerCredentials, error)
}

// PositionStore is the position surface the monitor needs
type PositionStore interface {
	ListOpenByAgent(agentID int64) ([]domain.Position, error)
	UpdateCurrentPrice(id int64, price, unrealizedPL, unrealizedPct float64) error
	Close(id int64, exitPrice float64, exitDate time.Time, exitRationale string, realizedPL, realizedPct float64, exitOrderID string) error
}

// ActivityWriter records audit rows
type ActivityWriter interface {
	Record(agentID int64, activityType domain.ActivityType, summary string, details interface{}) error
}

// Monitor runs the intraday exit sweep
type Monitor struct {
	connect    BrokerConnector
	agents     AgentStore
	users      UserStore
	positions  PositionStore
	activities ActivityWriter
	log        zerolog.Logger
}

// New creates a new intraday monitor
func New(connect BrokerConnector, agents AgentStore, users UserStore, positions PositionStore, activities ActivityWriter, log zerolog.Logger) *Monitor {
	return &Monitor{
		connect:    connect,
		agents:     agents,
		users:      users,
		positions:  positions,
		activities: activities,
		log:        log.With().Str("component", "intraday_monitor").Logger(),
	}
}

// Sweep checks every active agent's open positions once. Agents are
// grouped by owner so credentials are resolved once per user; users
// without a connected broker are skipped.
func (m *Monitor) Sweep(now time.Time) error {
	agents, err := m.agents.ListActive()
	if err != nil {
		return fmt.Errorf("failed to list active agents: %w", err)
	}

	byUser := make(map[int64][]domain.Agent)
	for _, agent := range agents {
		byUser[agent.UserID] = append(byUser[agent.UserID], agent)
	}

	for userID, userAgents := range byUser {
		creds, err := m.users.GetBrokerCredentials(userID)
		if err != nil {
			m.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load broker credentials")
			continue
		}
		if !creds.HasCredentials() {
			m.log.Debug().Int64("user_id", userID).Msg("Monitor skipped: broker not connected")
			continue
		}

		broker := m.connect(creds.APIKey, creds.APISecret)

		open, err := broker.IsMarketOpen()
		if err != nil {
			m.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to check market hours")
			continue
		}
		if !open {
			continue
		}

		for _, agent := range userAgents {
			if err := m.sweepAgent(broker, agent, now); err != nil {
				m.log.Error().Err(err).Int64("agent_id", agent.ID).Msg("Agent sweep failed")
			}
		}
	}

	return nil
}

func (m *Monitor) sweepAgent(broker Broker, agent domain.Agent, now time.Time) error {
	positions, err := m.positions.ListOpenByAgent(agent.ID)
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}

	cash := agent.CashBalance
	exited := 0
	for _, position := range positions {
		quote, err := broker.GetLatestQuote(position.Ticker)
		if err != nil {
			m.log.Warn().Err(err).Str("ticker", position.Ticker).Msg("Quote unavailable, position not checked")
			continue
		}
		live := quote.Mid()
		if live <= 0 {
			continue
		}

		m.refreshPrice(position, live)

		decision := engine.EvaluateExit(position, live, now)
		if decision == nil {
			continue
		}

		proceeds, err := m.forceExit(broker, agent, position, live, decision, now)
		if err != nil {
			m.log.Error().Err(err).Str("ticker", position.Ticker).Msg("Forced exit failed")
			continue
		}
		cash += proceeds
		exited++
	}

	if exited > 0 {
		if cash < 0 {
			cash = 0
		}
		if err := m.agents.UpdateCashBalance(agent.ID, cash); err != nil {
			return fmt.Errorf("failed to sync cash balance: %w", err)
		}
	}
	return nil
}

func (m *Monitor) refreshPrice(position domain.Position, live float64) {
	var pl, pct float64
	if position.Side == domain.SideShort {
		pl = (position.EntryPrice - live) * position.Shares
	} else {
		pl = (live - position.EntryPrice) * position.Shares
	}
	if basis := position.EntryPrice * position.Shares; basis != 0 {
		pct = pl / basis
	}

	if err := m.positions.UpdateCurrentPrice(position.ID, live, pl, pct); err != nil {
		m.log.Warn().Err(err).Str("ticker", position.Ticker).Msg("Failed to refresh position price")
	}
}

// forceExit cancels the position's brackets, market-closes it and settles
// the ledger. Returns the cash proceeds.
func (m *Monitor) forceExit(broker Broker, agent domain.Agent, position domain.Position, live float64, decision *engine.ExitDecision, now time.Time) (float64, error) {
	if position.StopOrderID != "" {
		if err := broker.CancelOrder(position.StopOrderID); err != nil {
			m.log.Warn().Err(err).Str("ticker", position.Ticker).Msg("Failed to cancel stop order")
		}
	}
	if position.TargetOrderID != "" {
		if err := broker.CancelOrder(position.TargetOrderID); err != nil {
			m.log.Warn().Err(err).Str("ticker", position.Ticker).Msg("Failed to cancel target order")
		}
	}

	order, err := broker.ClosePosition(position.Ticker, nil)
	if err != nil {
		return 0, err
	}

	fill := order.FillPrice()
	if fill <= 0 {
		fill = live
	}

	var pl float64
	if position.Side == domain.SideShort {
		pl = (position.EntryPrice - fill) * position.Shares
	} else {
		pl = (fill - position.EntryPrice) * position.Shares
	}
	pct := 0.0
	if basis := position.EntryPrice * position.Shares; basis != 0 {
		pct = pl / basis
	}

	if err := m.positions.Close(position.ID, fill, now, decision.Reason, pl, pct, order.ID); err != nil {
		return 0, err
	}

	activityType := domain.ActivitySell
	switch decision.Kind {
	case engine.ExitStopLoss:
		activityType = domain.ActivityStopHit
	case engine.ExitTakeProfit:
		activityType = domain.ActivityTargetHit
	}

	summary := fmt.Sprintf("Exited %.0f %s @ %.2f: %s", position.Shares, position.Ticker, fill, decision.Reason)
	if err := m.activities.Record(agent.ID, activityType, summary, position); err != nil {
		return 0, err
	}

	m.log.Info().
		Str("ticker", position.Ticker).
		Str("kind", string(decision.Kind)).
		Float64("fill", fill).
		Msg("Intraday exit executed")

	return fill * position.Shares, nil
}
