package engine

import (
	"fmt"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
)

// holdThreshold is the weight delta under which a held position is left
// alone. Diffing the same targets against the resulting portfolio yields
// only holds.
const holdThreshold = 0.01

// diffTargets compares the target portfolio against held positions and
// emits one action per ticker, ordered deterministically by ticker.
func diffTargets(targets []domain.TargetPosition, positions []domain.Position, allocatedCapital float64) []domain.OrderAction {
	held := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		held[p.Ticker] = p
	}

	actions := make([]domain.OrderAction, 0, len(targets)+len(positions))
	targeted := make(map[string]bool, len(targets))

	for _, target := range targets {
		targeted[target.Ticker] = true

		position, isHeld := held[target.Ticker]
		currentWeight := 0.0
		if isHeld {
			currentWeight = position.Weight(allocatedCapital)
		}

		action := domain.OrderAction{
			Ticker:         target.Ticker,
			TargetWeight:   target.Weight,
			CurrentWeight:  currentWeight,
			SignalStrength: target.SignalStrength,
			Reason:         target.Rationale,
		}

		delta := target.Weight - currentWeight
		switch {
		case !isHeld && target.Weight > 0:
			action.Action = domain.ActionBuy
		case !isHeld:
			continue
		case target.Weight <= 0:
			action.Action = domain.ActionSell
			action.Reason = "Target weight dropped to zero"
		case delta > holdThreshold:
			action.Action = domain.ActionIncrease
		case delta < -holdThreshold:
			action.Action = domain.ActionDecrease
		default:
			action.Action = domain.ActionHold
		}

		actions = append(actions, action)
	}

	// Held positions the strategy no longer wants are full exits.
	for ticker, position := range held {
		if targeted[ticker] {
			continue
		}
		actions = append(actions, domain.OrderAction{
			Ticker:         ticker,
			Action:         domain.ActionSell,
			TargetWeight:   0,
			CurrentWeight:  position.Weight(allocatedCapital),
			SignalStrength: 0,
			Reason:         fmt.Sprintf("%s no longer in target portfolio", ticker),
		})
	}

	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Ticker < actions[j].Ticker
	})
	return actions
}
