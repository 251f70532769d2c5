package strategy

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// SentimentMode controls how a strategy folds sentiment into its
// technical score.
type SentimentMode string

const (
	// SentimentDisabled ignores sentiment entirely.
	SentimentDisabled SentimentMode = "disabled"
	// SentimentFilter vetoes entries when sentiment is in crisis.
	SentimentFilter SentimentMode = "filter"
	// SentimentAlpha blends sentiment into the score as its own source.
	SentimentAlpha SentimentMode = "alpha"
	// SentimentRiskAdjustment scales score magnitude by agreement.
	SentimentRiskAdjustment SentimentMode = "risk_adjustment"
	// SentimentConfirmation zeroes scores that strong sentiment opposes.
	SentimentConfirmation SentimentMode = "confirmation"
)

const (
	// crisisThreshold is the combined-sentiment floor under SentimentFilter.
	crisisThreshold = -50.0
	// confirmationVeto is the opposing magnitude that kills a score.
	confirmationVeto = 40.0
	alphaShare       = 0.30
	riskAdjustRange  = 0.30
)

// SignalCombiner folds per-ticker sentiment into technical scores
// according to the strategy's sentiment mode.
type SignalCombiner struct {
	Mode SentimentMode
}

// Combine applies the mode to one ticker's technical score. A missing
// sentiment reading leaves the technical score untouched in every mode.
func (c SignalCombiner) Combine(technical float64, sentiment *domain.SentimentInput) float64 {
	if sentiment == nil || c.Mode == SentimentDisabled || c.Mode == "" {
		return technical
	}

	combined := formulas.Clamp(sentiment.Combined, -100, 100)

	switch c.Mode {
	case SentimentFilter:
		if combined < crisisThreshold && technical > 0 {
			return 0
		}
		return technical

	case SentimentAlpha:
		return formulas.Clamp((1-alphaShare)*technical+alphaShare*combined, -100, 100)

	case SentimentRiskAdjustment:
		// Agreement inflates, disagreement deflates, within ±30%.
		agreement := 0.0
		if technical != 0 {
			agreement = combined / 100.0
			if technical < 0 {
				agreement = -agreement
			}
		}
		return formulas.Clamp(technical*(1.0+riskAdjustRange*agreement), -100, 100)

	case SentimentConfirmation:
		if technical > 0 && combined < -confirmationVeto {
			return 0
		}
		if technical < 0 && combined > confirmationVeto {
			return 0
		}
		return technical

	default:
		return technical
	}
}

// CombineAll applies Combine across a score map.
func (c SignalCombiner) CombineAll(scores map[string]float64, sentiment map[string]domain.SentimentInput) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for ticker, score := range scores {
		if s, ok := sentiment[ticker]; ok {
			out[ticker] = c.Combine(score, &s)
		} else {
			out[ticker] = c.Combine(score, nil)
		}
	}
	return out
}
