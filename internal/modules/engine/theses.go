package engine

import (
	"fmt"
	"strings"

	"github.com/aristath/helmsman/internal/domain"
)

// enrichTheses rewrites the reason on every entry action into a full
// investment thesis: strategy, signal context, sizing and exit plan.
// Exit actions keep whatever reason put them there, since an override
// that fired late in the sequence is the real story for those.
func enrichTheses(actions []domain.OrderAction, targets []domain.TargetPosition, strategyName string, scores map[string]domain.IntegratedScore, regime string) []domain.OrderAction {
	byTicker := make(map[string]domain.TargetPosition, len(targets))
	for _, t := range targets {
		byTicker[t.Ticker] = t
	}

	for i, action := range actions {
		if action.Action != domain.ActionBuy && action.Action != domain.ActionIncrease {
			continue
		}
		target, ok := byTicker[action.Ticker]
		if !ok {
			continue
		}
		actions[i].Reason = buildThesis(action, target, strategyName, scores, regime)
	}
	return actions
}

func buildThesis(action domain.OrderAction, target domain.TargetPosition, strategyName string, scores map[string]domain.IntegratedScore, regime string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s entry: signal %.1f", strategyName, action.SignalStrength)
	if score, ok := scores[action.Ticker]; ok {
		fmt.Fprintf(&b, ", integrated %.1f", score.Composite)
	}
	if regime != "" {
		fmt.Fprintf(&b, ", regime %s", regime)
	}
	fmt.Fprintf(&b, "; weight %.1f%%, entry %.2f", target.Weight*100, target.EntryPrice)
	if target.StopLoss != nil && *target.StopLoss > 0 {
		fmt.Fprintf(&b, ", stop %.2f", *target.StopLoss)
	}
	if target.TakeProfit != nil && *target.TakeProfit > 0 {
		fmt.Fprintf(&b, ", target %.2f", *target.TakeProfit)
	}
	if target.MaxHoldingDays != nil && *target.MaxHoldingDays > 0 {
		fmt.Fprintf(&b, ", horizon %dd", *target.MaxHoldingDays)
	}
	return b.String()
}
