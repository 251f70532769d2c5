package strategy

import (
	"fmt"
	"strings"
)

// Registry resolves an agent's strategy_type to a preset and constructs
// the strategy behind it.
type Registry struct{}

// NewRegistry creates a new strategy registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Resolve returns the preset named by an agent's strategy_type.
func (r *Registry) Resolve(strategyType string) (Preset, error) {
	preset, ok := LookupPreset(strategyType)
	if !ok {
		return Preset{}, fmt.Errorf("unknown strategy type %q (known: %s)",
			strategyType, strings.Join(PresetNames(), ", "))
	}
	return preset, nil
}

// Build constructs the strategy for a preset. When sentiment already
// flows through the integrated composite the combiner is disabled so it
// is not counted twice.
func (r *Registry) Build(preset Preset, integratedAvailable bool) (Strategy, error) {
	mode := preset.SentimentMode
	if preset.UsesIntegratedComposite() && integratedAvailable {
		mode = SentimentDisabled
	}
	combiner := SignalCombiner{Mode: mode}

	switch preset.StrategyType {
	case TypeCrossSectionalFactor:
		return &CrossSectionalFactor{Combiner: combiner}, nil
	case TypeTrendFollowing:
		return &TrendFollowing{Combiner: combiner}, nil
	case TypeShortTermReversal:
		return &ShortTermReversalStrategy{Combiner: combiner}, nil
	case TypeStatisticalArbitrage:
		return &StatisticalArbitrage{Combiner: combiner}, nil
	case TypeVolatilityPremium:
		return &VolatilityPremium{Combiner: combiner}, nil
	default:
		return nil, fmt.Errorf("no strategy implementation for type %q", preset.StrategyType)
	}
}
