package strategy

import (
	"github.com/aristath/helmsman/internal/modules/factors"
)

// WeightSentiment keys the sentiment share of a preset's weights,
// alongside the five factor keys.
const WeightSentiment = "sentiment"

// Preset is a named, ready-to-run strategy configuration an agent's
// strategy_type resolves against. Factor-driven presets carry the weight
// vector handed to the factor calculator and the integrator; pure price
// strategies carry none.
type Preset struct {
	Name          string
	StrategyType  string
	FactorWeights map[string]float64
	SentimentMode SentimentMode
	MaxPositions  int
}

// presets is the built-in catalog. Factor weight vectors sum to 1
// including the sentiment share.
var presets = map[string]Preset{
	"momentum": {
		Name:         "momentum",
		StrategyType: TypeCrossSectionalFactor,
		FactorWeights: map[string]float64{
			factors.FactorMomentum:   0.55,
			factors.FactorValue:      0.00,
			factors.FactorQuality:    0.10,
			factors.FactorDividend:   0.00,
			factors.FactorVolatility: 0.10,
			WeightSentiment:          0.25,
		},
		SentimentMode: SentimentFilter,
		MaxPositions:  10,
	},
	"quality_value": {
		Name:         "quality_value",
		StrategyType: TypeCrossSectionalFactor,
		FactorWeights: map[string]float64{
			factors.FactorMomentum:   0.00,
			factors.FactorValue:      0.30,
			factors.FactorQuality:    0.30,
			factors.FactorDividend:   0.05,
			factors.FactorVolatility: 0.10,
			WeightSentiment:          0.25,
		},
		SentimentMode: SentimentConfirmation,
		MaxPositions:  12,
	},
	"quality_momentum": {
		Name:         "quality_momentum",
		StrategyType: TypeCrossSectionalFactor,
		FactorWeights: map[string]float64{
			factors.FactorMomentum:   0.30,
			factors.FactorValue:      0.00,
			factors.FactorQuality:    0.25,
			factors.FactorDividend:   0.00,
			factors.FactorVolatility: 0.10,
			WeightSentiment:          0.35,
		},
		SentimentMode: SentimentAlpha,
		MaxPositions:  10,
	},
	"dividend_growth": {
		Name:         "dividend_growth",
		StrategyType: TypeCrossSectionalFactor,
		FactorWeights: map[string]float64{
			factors.FactorMomentum:   0.00,
			factors.FactorValue:      0.15,
			factors.FactorQuality:    0.25,
			factors.FactorDividend:   0.25,
			factors.FactorVolatility: 0.15,
			WeightSentiment:          0.20,
		},
		SentimentMode: SentimentFilter,
		MaxPositions:  15,
	},
	"trend_following": {
		Name:          "trend_following",
		StrategyType:  TypeTrendFollowing,
		SentimentMode: SentimentRiskAdjustment,
		MaxPositions:  8,
	},
	"short_term_reversal": {
		Name:          "short_term_reversal",
		StrategyType:  TypeShortTermReversal,
		SentimentMode: SentimentConfirmation,
		MaxPositions:  8,
	},
	"statistical_arbitrage": {
		Name:          "statistical_arbitrage",
		StrategyType:  TypeStatisticalArbitrage,
		SentimentMode: SentimentAlpha,
		MaxPositions:  10,
	},
	"volatility_premium": {
		Name:          "volatility_premium",
		StrategyType:  TypeVolatilityPremium,
		SentimentMode: SentimentFilter,
		MaxPositions:  12,
	},
}

// PresetNames lists the catalog in no particular order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// LookupPreset resolves a preset by name.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// UsesIntegratedComposite reports whether the preset ranks on the factor
// composite, meaning sentiment is already folded in through the
// integrator and must not be double-counted by the combiner.
func (p Preset) UsesIntegratedComposite() bool {
	return p.StrategyType == TypeCrossSectionalFactor
}
