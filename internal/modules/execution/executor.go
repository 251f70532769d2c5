// Package execution turns engine decisions into broker orders and keeps
// the internal ledger (positions, cash, activity) reconciled with fills.
package execution

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/clients/alpaca"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// Price slippage allowances on day-limit orders: buys pay up to +0.5%,
// sells accept down to -0.5%.
const (
	buyLimitSlippage  = 1.005
	sellLimitSlippage = 0.995
)

const regimeCircuitBreaker = "circuit_breaker"

// Broker is the order surface the executor needs, already bound to one
// user's credentials.
type Broker interface {
	IsMarketOpen() (bool, error)
	GetAccount() (*alpaca.Account, error)
	PlaceLimitOrder(symbol string, qty, limitPrice float64, side, tif, clientOrderID string) (*alpaca.Order, error)
	PlaceStopOrder(symbol string, qty, stopPrice float64, side, tif, clientOrderID string) (*alpaca.Order, error)
	ClosePosition(symbol string, qty *float64) (*alpaca.Order, error)
	CancelOrder(orderID string) error
}

// BrokerConnector derives a credential-bound broker for one user. The
// returned broker is private to the calling agent run, so concurrent
// agents of different users never share credential state.
type BrokerConnector func(apiKey, apiSecret string) Broker

// PositionStore is the position persistence surface the executor needs
type PositionStore interface {
	ListOpenByAgent(agentID int64) ([]domain.Position, error)
	ListOpenByAgentTicker(agentID int64, ticker string) ([]domain.Position, error)
	Create(pos domain.Position) (int64, error)
	UpdateShares(id int64, shares float64, stopOrderID, targetOrderID string) error
	Close(id int64, exitPrice float64, exitDate time.Time, exitRationale string, realizedPL, realizedPct float64, exitOrderID string) error
}

// AgentStore updates agent state after fills
type AgentStore interface {
	UpdateCashBalance(id int64, cashBalance float64) error
	UpdateStatus(id int64, status domain.AgentStatus) error
}

// ActivityWriter records audit rows
type ActivityWriter interface {
	Record(agentID int64, activityType domain.ActivityType, summary string, details interface{}) error
}

// Executor places orders for one agent's actions and reconciles the ledger
type Executor struct {
	connect    BrokerConnector
	positions  PositionStore
	agents     AgentStore
	activities ActivityWriter
	log        zerolog.Logger
}

// NewExecutor creates a new order executor
func NewExecutor(connect BrokerConnector, positions PositionStore, agents AgentStore, activities ActivityWriter, log zerolog.Logger) *Executor {
	return &Executor{
		connect:    connect,
		positions:  positions,
		agents:     agents,
		activities: activities,
		log:        log.With().Str("component", "order_executor").Logger(),
	}
}

// Execute processes one agent's decision cycle. Sells run before buys so
// freed capital funds the entries. A failing action is logged and skipped;
// the rest of the batch still runs.
func (e *Executor) Execute(agent domain.Agent, creds domain.BrokerCredentials, result domain.ExecutionResult, stocks map[string]domain.Stock, now time.Time) error {
	if result.Skipped || len(result.Actions) == 0 {
		return nil
	}
	log := e.log.With().Int64("agent_id", agent.ID).Logger()

	if !creds.HasCredentials() {
		// Without a broker the ledger must still honor a tripped circuit
		// breaker; everything else waits for a connection.
		if result.Regime == regimeCircuitBreaker {
			return e.closeAllInternal(agent, result, stocks, now)
		}
		log.Info().Msg("Execution skipped: broker not connected")
		return nil
	}

	broker := e.connect(creds.APIKey, creds.APISecret)

	open, err := broker.IsMarketOpen()
	if err != nil {
		return fmt.Errorf("failed to check market hours: %w", err)
	}
	if !open {
		// Deferral leaves no audit row: the next run recomputes the diff.
		log.Info().Msg("Execution deferred: market closed")
		return nil
	}

	account, err := broker.GetAccount()
	if err != nil {
		return fmt.Errorf("failed to get broker account: %w", err)
	}

	// The agent never sizes against more than its allocation, and never
	// against more than the account actually holds.
	sizingBasis := math.Min(agent.AllocatedCapital, account.Equity)
	remainingBP := math.Min(account.BuyingPower, agent.AllocatedCapital)

	targets := make(map[string]domain.TargetPosition, len(result.Targets))
	for _, t := range result.Targets {
		targets[t.Ticker] = t
	}

	cash := agent.CashBalance
	var bought, sold, held, failed int

	for _, action := range result.Actions {
		if action.Action != domain.ActionSell && action.Action != domain.ActionDecrease {
			continue
		}
		proceeds, err := e.executeSell(broker, agent, action, stocks, sizingBasis, now)
		if err != nil {
			failed++
			log.Error().Err(err).Str("ticker", action.Ticker).Str("action", string(action.Action)).Msg("Sell failed")
			continue
		}
		cash += proceeds
		// Sold capital is buying power again before the entries size.
		remainingBP += proceeds
		sold++
	}

	for _, action := range result.Actions {
		if action.Action != domain.ActionBuy && action.Action != domain.ActionIncrease {
			continue
		}
		spent, err := e.executeBuy(broker, agent, action, targets[action.Ticker], stocks, sizingBasis, remainingBP, cash, now)
		if err != nil {
			failed++
			log.Error().Err(err).Str("ticker", action.Ticker).Str("action", string(action.Action)).Msg("Buy failed")
			continue
		}
		cash -= spent
		remainingBP -= spent
		bought++
	}

	for _, action := range result.Actions {
		if action.Action != domain.ActionHold {
			continue
		}
		held++
		summary := fmt.Sprintf("Held %s: current %.1f%%, target %.1f%%", action.Ticker, action.CurrentWeight*100, action.TargetWeight*100)
		if err := e.activities.Record(agent.ID, domain.ActivitySignal, summary, action); err != nil {
			log.Warn().Err(err).Str("ticker", action.Ticker).Msg("Failed to record hold")
		}
	}

	if cash < 0 {
		cash = 0
	}
	if err := e.agents.UpdateCashBalance(agent.ID, cash); err != nil {
		return fmt.Errorf("failed to sync cash balance: %w", err)
	}

	scale := 1.0
	if result.Overlay != nil {
		scale = result.Overlay.ScaleFactor
	}
	regime := result.Regime
	if regime == "" {
		regime = "normal"
	}
	summary := fmt.Sprintf("Rebalanced %s (regime %s, scale %.2f): %d buys, %d sells, %d holds, %d failed, cash %.2f",
		result.StrategyName, regime, scale, bought, sold, held, failed, cash)
	if err := e.activities.Record(agent.ID, domain.ActivityRebalance, summary, result.Actions); err != nil {
		return fmt.Errorf("failed to record rebalance: %w", err)
	}

	if result.Regime == regimeCircuitBreaker {
		e.pauseAfterLiquidation(agent.ID)
	}

	log.Info().
		Int("bought", bought).
		Int("sold", sold).
		Int("failed", failed).
		Float64("cash", cash).
		Msg("Execution complete")
	return nil
}

// executeSell handles sell and decrease actions for one ticker and
// returns the cash proceeds.
func (e *Executor) executeSell(broker Broker, agent domain.Agent, action domain.OrderAction, stocks map[string]domain.Stock, sizingBasis float64, now time.Time) (float64, error) {
	rows, err := e.positions.ListOpenByAgentTicker(agent.ID, action.Ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to load positions for %s: %w", action.Ticker, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	proceeds := 0.0
	for _, position := range rows {
		price := position.CurrentPrice
		if stock, ok := stocks[position.Ticker]; ok && stock.Price > 0 {
			price = stock.Price
		}

		if action.Action == domain.ActionSell {
			got, err := e.fullExit(broker, agent, position, price, action.Reason, now)
			if err != nil {
				return proceeds, err
			}
			proceeds += got
			continue
		}

		got, err := e.partialExit(broker, agent, position, action, price, sizingBasis, now)
		if err != nil {
			return proceeds, err
		}
		proceeds += got
	}
	return proceeds, nil
}

// fullExit cancels brackets, market-closes the position at the broker and
// closes the ledger row at the fill price.
func (e *Executor) fullExit(broker Broker, agent domain.Agent, position domain.Position, price float64, reason string, now time.Time) (float64, error) {
	e.cancelBrackets(broker, position)

	order, err := broker.ClosePosition(position.Ticker, nil)
	if err != nil {
		return 0, err
	}

	fill := order.FillPrice()
	if fill <= 0 {
		fill = price
	}

	realizedPL, realizedPct := realized(position, fill)
	if err := e.positions.Close(position.ID, fill, now, reason, realizedPL, realizedPct, order.ID); err != nil {
		return 0, err
	}

	summary := fmt.Sprintf("Sold %.0f %s @ %.2f: %s", position.Shares, position.Ticker, fill, reason)
	if err := e.activities.Record(agent.ID, domain.ActivitySell, summary, position); err != nil {
		return 0, err
	}
	return fill * position.Shares, nil
}

// partialExit trims a position with a day-limit sell slightly under the
// live price. A trim that empties the position closes it instead.
func (e *Executor) partialExit(broker Broker, agent domain.Agent, position domain.Position, action domain.OrderAction, price, sizingBasis float64, now time.Time) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("no price for %s", position.Ticker)
	}

	deltaWeight := action.CurrentWeight - action.TargetWeight
	qty := math.Floor(deltaWeight * sizingBasis / price)
	if qty <= 0 {
		return 0, nil
	}
	if qty >= position.Shares {
		return e.fullExit(broker, agent, position, price, action.Reason, now)
	}

	limit := formulas.Round2(price * sellLimitSlippage)
	e.cancelBrackets(broker, position)

	order, err := broker.PlaceLimitOrder(position.Ticker, qty, limit, alpaca.SideSell, alpaca.TIFDay, orderID(agent.ID))
	if err != nil {
		return 0, err
	}

	fill := order.FillPrice()
	if fill <= 0 {
		fill = limit
	}

	remaining := position.Shares - qty
	stopID, targetID := e.placeBrackets(broker, agent.ID, position.Ticker, remaining, position.Side, position.StopLossPrice, position.TargetPrice)
	if err := e.positions.UpdateShares(position.ID, remaining, stopID, targetID); err != nil {
		return 0, err
	}

	summary := fmt.Sprintf("Trimmed %s by %.0f shares @ limit %.2f: %s", position.Ticker, qty, limit, action.Reason)
	if err := e.activities.Record(agent.ID, domain.ActivitySell, summary, order); err != nil {
		return 0, err
	}
	return qty * fill, nil
}

// executeBuy handles buy and increase actions for one ticker and returns
// the cash spent.
func (e *Executor) executeBuy(broker Broker, agent domain.Agent, action domain.OrderAction, target domain.TargetPosition, stocks map[string]domain.Stock, sizingBasis, remainingBP, cash float64, now time.Time) (float64, error) {
	stock, ok := stocks[action.Ticker]
	if !ok || stock.Price <= 0 {
		return 0, fmt.Errorf("no price for %s", action.Ticker)
	}
	price := stock.Price

	weight := action.TargetWeight
	if action.Action == domain.ActionIncrease {
		weight = action.TargetWeight - action.CurrentWeight
	}

	notional := weight * sizingBasis
	notional = math.Min(notional, remainingBP)
	notional = math.Min(notional, cash)
	qty := math.Floor(notional / price)
	if qty < 1 {
		return 0, nil
	}

	// Short entries open with a sell; the limit then tolerates slippage
	// downward instead of up.
	entrySide := alpaca.SideBuy
	limit := formulas.Round2(price * buyLimitSlippage)
	if target.Side == domain.SideShort {
		entrySide = alpaca.SideSell
		limit = formulas.Round2(price * sellLimitSlippage)
	}

	order, err := broker.PlaceLimitOrder(action.Ticker, qty, limit, entrySide, alpaca.TIFDay, orderID(agent.ID))
	if err != nil {
		return 0, err
	}

	// Cash settles at the actual fill, not the limit ceiling.
	fill := order.FillPrice()
	if fill <= 0 {
		fill = limit
	}

	if action.Action == domain.ActionIncrease {
		if err := e.applyIncrease(broker, agent, action.Ticker, qty, order.ID); err != nil {
			return 0, err
		}
	} else {
		if err := e.openPosition(broker, agent, target, action, qty, fill, order.ID, now); err != nil {
			return 0, err
		}
	}

	summary := fmt.Sprintf("Bought %.0f %s @ limit %.2f: %s", qty, action.Ticker, limit, action.Reason)
	if err := e.activities.Record(agent.ID, domain.ActivityBuy, summary, order); err != nil {
		return 0, err
	}
	return qty * fill, nil
}

// openPosition records a new ledger row for a fresh entry and arms its
// bracket orders.
func (e *Executor) openPosition(broker Broker, agent domain.Agent, target domain.TargetPosition, action domain.OrderAction, qty, entryPrice float64, entryOrderID string, now time.Time) error {
	side := target.Side
	if side == "" {
		side = domain.SideLong
	}

	position := domain.Position{
		AgentID:        agent.ID,
		Ticker:         action.Ticker,
		Side:           side,
		Status:         domain.PositionOpen,
		Shares:         qty,
		EntryPrice:     entryPrice,
		EntryDate:      now,
		EntryRationale: action.Reason,
		CurrentPrice:   entryPrice,
		StopLossPrice:  target.StopLoss,
		TargetPrice:    target.TakeProfit,
		MaxHoldingDays: target.MaxHoldingDays,
		EntryOrderID:   entryOrderID,
	}

	id, err := e.positions.Create(position)
	if err != nil {
		return err
	}

	stopID, targetID := e.placeBrackets(broker, agent.ID, action.Ticker, qty, side, target.StopLoss, target.TakeProfit)
	if stopID == "" && targetID == "" {
		return nil
	}
	return e.positions.UpdateShares(id, qty, stopID, targetID)
}

// applyIncrease adds filled shares to the existing row and re-arms its
// brackets at the new size.
func (e *Executor) applyIncrease(broker Broker, agent domain.Agent, ticker string, qty float64, entryOrderID string) error {
	rows, err := e.positions.ListOpenByAgentTicker(agent.ID, ticker)
	if err != nil || len(rows) == 0 {
		return fmt.Errorf("no open position to increase for %s: %w", ticker, err)
	}
	position := rows[0]

	e.cancelBrackets(broker, position)
	newShares := position.Shares + qty
	stopID, targetID := e.placeBrackets(broker, agent.ID, ticker, newShares, position.Side, position.StopLossPrice, position.TargetPrice)
	return e.positions.UpdateShares(position.ID, newShares, stopID, targetID)
}

// closeAllInternal settles circuit-breaker liquidations on the ledger
// alone when no broker is connected, using last known prices.
func (e *Executor) closeAllInternal(agent domain.Agent, result domain.ExecutionResult, stocks map[string]domain.Stock, now time.Time) error {
	rows, err := e.positions.ListOpenByAgent(agent.ID)
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}

	reason := "Circuit breaker liquidation"
	for _, action := range result.Actions {
		if action.Action == domain.ActionSell && action.Reason != "" {
			reason = action.Reason
			break
		}
	}

	cash := agent.CashBalance
	for _, position := range rows {
		price := position.CurrentPrice
		if stock, ok := stocks[position.Ticker]; ok && stock.Price > 0 {
			price = stock.Price
		}
		if price <= 0 {
			price = position.EntryPrice
		}

		realizedPL, realizedPct := realized(position, price)
		if err := e.positions.Close(position.ID, price, now, reason, realizedPL, realizedPct, ""); err != nil {
			return err
		}
		cash += price * position.Shares

		summary := fmt.Sprintf("Sold %.0f %s @ %.2f: %s", position.Shares, position.Ticker, price, reason)
		if err := e.activities.Record(agent.ID, domain.ActivitySell, summary, position); err != nil {
			return err
		}
	}

	if err := e.agents.UpdateCashBalance(agent.ID, cash); err != nil {
		return fmt.Errorf("failed to sync cash balance: %w", err)
	}
	if err := e.activities.Record(agent.ID, domain.ActivityRebalance,
		fmt.Sprintf("Circuit breaker: liquidated %d positions, cash %.2f", len(rows), cash), result.Actions); err != nil {
		return err
	}

	e.pauseAfterLiquidation(agent.ID)
	return nil
}

// pauseAfterLiquidation parks the agent so it does not re-enter the market
// on the next run without review.
func (e *Executor) pauseAfterLiquidation(agentID int64) {
	if err := e.agents.UpdateStatus(agentID, domain.AgentStatusPaused); err != nil {
		e.log.Error().Err(err).Int64("agent_id", agentID).Msg("Failed to pause agent after liquidation")
		return
	}
	if err := e.activities.Record(agentID, domain.ActivityPaused, "Agent paused after circuit breaker liquidation", nil); err != nil {
		e.log.Warn().Err(err).Int64("agent_id", agentID).Msg("Failed to record pause")
	}
}

// realized computes the realized P/L of closing a position at the given price.
func realized(position domain.Position, exitPrice float64) (pl float64, pct float64) {
	if position.Side == domain.SideShort {
		pl = (position.EntryPrice - exitPrice) * position.Shares
	} else {
		pl = (exitPrice - position.EntryPrice) * position.Shares
	}
	basis := position.EntryPrice * position.Shares
	if basis != 0 {
		pct = pl / math.Abs(basis)
	}
	return pl, pct
}

func orderID(agentID int64) string {
	return fmt.Sprintf("hm-%d-%s", agentID, uuid.NewString()[:8])
}
