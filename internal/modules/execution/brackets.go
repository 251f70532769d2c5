package execution

import (
	"github.com/aristath/helmsman/internal/clients/alpaca"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// placeBrackets arms GTC stop-loss and take-profit orders sized to the
// full position. Either leg may be absent; a failed leg is logged and the
// position simply runs without that protection until the next cycle.
func (e *Executor) placeBrackets(broker Broker, agentID int64, ticker string, qty float64, side domain.PositionSide, stopLoss, takeProfit *float64) (stopID, targetID string) {
	if qty <= 0 {
		return "", ""
	}

	exitSide := alpaca.SideSell
	if side == domain.SideShort {
		exitSide = alpaca.SideBuy
	}

	if stopLoss != nil && *stopLoss > 0 {
		order, err := broker.PlaceStopOrder(ticker, qty, formulas.Round2(*stopLoss), exitSide, alpaca.TIFGTC, orderID(agentID))
		if err != nil {
			e.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to place stop-loss order")
		} else {
			stopID = order.ID
		}
	}

	if takeProfit != nil && *takeProfit > 0 {
		order, err := broker.PlaceLimitOrder(ticker, qty, formulas.Round2(*takeProfit), exitSide, alpaca.TIFGTC, orderID(agentID))
		if err != nil {
			e.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to place take-profit order")
		} else {
			targetID = order.ID
		}
	}

	return stopID, targetID
}

// cancelBrackets cancels whatever protective orders the position carries.
// Cancellation failures are logged, not fatal: the broker rejects fills
// against already-closed positions anyway.
func (e *Executor) cancelBrackets(broker Broker, position domain.Position) {
	if position.StopOrderID != "" {
		if err := broker.CancelOrder(position.StopOrderID); err != nil {
			e.log.Warn().Err(err).Str("ticker", position.Ticker).Msg("Failed to cancel stop order")
		}
	}
	if position.TargetOrderID != "" {
		if err := broker.CancelOrder(position.TargetOrderID); err != nil {
			e.log.Warn().Err(err).Str("ticker", position.Ticker).Msg("Failed to cancel target order")
		}
	}
}
