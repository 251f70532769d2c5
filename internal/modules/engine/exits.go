package engine

import (
	"fmt"
	"time"

	"github.com/aristath/helmsman/internal/domain"
)

// ExitKind classifies which exit rule tripped
type ExitKind string

const (
	ExitStopLoss   ExitKind = "stop_loss"
	ExitTakeProfit ExitKind = "take_profit"
	ExitMaxAge     ExitKind = "max_age"
)

// ExitDecision is a tripped exit rule with its audit reason.
type ExitDecision struct {
	Kind   ExitKind
	Reason string
}

// EvaluateExit checks a position's exit conditions against the live price
// in priority order: stop-loss, then take-profit, then holding age. A nil
// return means the position may stand.
func EvaluateExit(position domain.Position, livePrice float64, now time.Time) *ExitDecision {
	if livePrice <= 0 {
		livePrice = position.CurrentPrice
	}
	if livePrice <= 0 {
		return nil
	}

	short := position.Side == domain.SideShort

	if stop := position.StopLossPrice; stop != nil && *stop > 0 {
		if !short && livePrice <= *stop {
			return &ExitDecision{ExitStopLoss,
				fmt.Sprintf("Stop-loss breached: price %.2f <= stop %.2f", livePrice, *stop)}
		}
		if short && livePrice >= *stop {
			return &ExitDecision{ExitStopLoss,
				fmt.Sprintf("Stop-loss breached: price %.2f >= stop %.2f", livePrice, *stop)}
		}
	}

	if target := position.TargetPrice; target != nil && *target > 0 {
		if !short && livePrice >= *target {
			return &ExitDecision{ExitTakeProfit,
				fmt.Sprintf("Take-profit reached: price %.2f >= target %.2f", livePrice, *target)}
		}
		if short && livePrice <= *target {
			return &ExitDecision{ExitTakeProfit,
				fmt.Sprintf("Take-profit reached: price %.2f <= target %.2f", livePrice, *target)}
		}
	}

	if limit := position.MaxHoldingDays; limit != nil && *limit > 0 {
		heldDays := int(now.Sub(position.EntryDate).Hours() / 24)
		if heldDays >= *limit {
			return &ExitDecision{ExitMaxAge,
				fmt.Sprintf("Max holding period reached: held %d days >= limit %d", heldDays, *limit)}
		}
	}

	return nil
}

// applyExitOverrides forces a full-strength sell for every position whose
// exit conditions trip, replacing whatever the diff decided for that
// ticker. Strategy opinion never outranks a breached stop.
func applyExitOverrides(actions []domain.OrderAction, positions []domain.Position, stocks map[string]domain.Stock, allocatedCapital float64, now time.Time) []domain.OrderAction {
	for _, position := range positions {
		livePrice := position.CurrentPrice
		if stock, ok := stocks[position.Ticker]; ok && stock.Price > 0 {
			livePrice = stock.Price
		}

		decision := EvaluateExit(position, livePrice, now)
		if decision == nil {
			continue
		}

		override := domain.OrderAction{
			Ticker:         position.Ticker,
			Action:         domain.ActionSell,
			TargetWeight:   0,
			CurrentWeight:  position.Weight(allocatedCapital),
			SignalStrength: 100,
			Reason:         decision.Reason,
		}

		replaced := false
		for i := range actions {
			if actions[i].Ticker == position.Ticker {
				actions[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			actions = append(actions, override)
		}
	}
	return actions
}
