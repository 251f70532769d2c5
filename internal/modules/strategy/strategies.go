package strategy

import (
	"fmt"
	"math"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// Strategy type identifiers
const (
	TypeCrossSectionalFactor = "cross_sectional_factor"
	TypeTrendFollowing       = "trend_following"
	TypeShortTermReversal    = "short_term_reversal"
	TypeStatisticalArbitrage = "statistical_arbitrage"
	TypeVolatilityPremium    = "volatility_premium"
)

// CrossSectionalFactor ranks the universe on the factor composite. When
// the integrator has run, the integrated composite supersedes the plain
// factor composite so sentiment flows through the seven layers instead of
// the combiner.
type CrossSectionalFactor struct {
	Combiner SignalCombiner
}

// Name returns the strategy type identifier
func (s *CrossSectionalFactor) Name() string { return TypeCrossSectionalFactor }

// Targets implements Strategy
func (s *CrossSectionalFactor) Targets(in Inputs) ([]domain.TargetPosition, error) {
	universe := filterUniverse(in)

	scores := make(map[string]float64, len(universe))
	for ticker, stock := range universe {
		var composite *float64
		if stock.IntegratedComposite != nil {
			composite = stock.IntegratedComposite
		} else if f, ok := in.Factors[ticker]; ok {
			composite = &f.Composite
		}
		if composite == nil {
			continue
		}
		scores[ticker] = (*composite - 50.0) * 2.0
	}

	scores = s.Combiner.CombineAll(scores, in.Sentiment)

	return buildTargets(in, universe, scores, targetOptions{
		minScore:  0,
		rationale: "factor composite rank",
	}), nil
}

// TrendFollowing trades established trends on both sides: long names
// above their 200-day average with positive momentum, short names below
// it with negative momentum. Weights scale inversely with trailing
// volatility so calm trends carry more capital than violent ones.
type TrendFollowing struct {
	Combiner SignalCombiner
}

// Name returns the strategy type identifier
func (s *TrendFollowing) Name() string { return TypeTrendFollowing }

// Targets implements Strategy
func (s *TrendFollowing) Targets(in Inputs) ([]domain.TargetPosition, error) {
	universe := filterUniverse(in)
	momentum := TimeSeriesMomentum(universe, in.Params.MomentumLookbackDay)

	scores := make(map[string]float64, len(universe))
	for ticker, stock := range universe {
		ma200 := stock.MA200
		if ma200 == nil {
			ma200 = formulas.CalculateSMA(stock.PriceHistory, 200)
		}
		if ma200 == nil || *ma200 <= 0 {
			continue
		}

		mom, ok := momentum[ticker]
		if !ok || mom == 0 {
			continue
		}

		// Trend and momentum must agree on direction; disagreement is
		// chop, not trend.
		above := stock.Price > *ma200
		if above != (mom > 0) {
			continue
		}

		stretch := formulas.Clamp((stock.Price / *ma200 - 1.0) * 500.0, -100, 100)
		scores[ticker] = formulas.Clamp(0.7*mom+0.3*stretch, -100, 100)
	}

	scores = s.Combiner.CombineAll(scores, in.Sentiment)

	return volScaledTargets(in, universe, scores,
		"uptrend above 200-day average",
		"downtrend below 200-day average"), nil
}

// ShortTermReversalStrategy buys recent losers against the cross-section,
// holding for days, not months.
type ShortTermReversalStrategy struct {
	Combiner SignalCombiner
}

// Name returns the strategy type identifier
func (s *ShortTermReversalStrategy) Name() string { return TypeShortTermReversal }

// Targets implements Strategy
func (s *ShortTermReversalStrategy) Targets(in Inputs) ([]domain.TargetPosition, error) {
	universe := filterUniverse(in)
	scores := s.Combiner.CombineAll(ShortTermReversal(universe), in.Sentiment)

	return buildTargets(in, universe, scores, targetOptions{
		minScore:       20,
		maxHoldingDays: intPtr(10),
		rationale:      "short-term reversal",
	}), nil
}

// StatisticalArbitrage trades stretched spreads between correlated
// pairs: long the cheap leg, short the rich leg, dollar-neutral. Each
// bet is on the spread reverting, not on the market's direction.
type StatisticalArbitrage struct {
	Combiner SignalCombiner
}

// Name returns the strategy type identifier
func (s *StatisticalArbitrage) Name() string { return TypeStatisticalArbitrage }

// Targets implements Strategy
func (s *StatisticalArbitrage) Targets(in Inputs) ([]domain.TargetPosition, error) {
	universe := filterUniverse(in)
	pairs := spreadPairs(universe)

	maxPositions := in.Params.MaxPositions
	if maxPositions <= 0 {
		maxPositions = defaultMaxPositions
	}
	maxPairs := maxPositions / 2
	if maxPairs < 1 {
		maxPairs = 1
	}

	// Greedy selection, most stretched spread first, each name in at
	// most one pair.
	taken := make(map[string]bool, maxPairs*2)
	selected := make([]pairCandidate, 0, maxPairs)
	for _, pair := range pairs {
		if taken[pair.long] || taken[pair.short] {
			continue
		}
		taken[pair.long], taken[pair.short] = true, true
		selected = append(selected, pair)
		if len(selected) == maxPairs {
			break
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	legScores := make(map[string]float64, len(selected)*2)
	for _, pair := range selected {
		raw := formulas.Clamp(math.Abs(pair.z)*25.0, 0, 100)
		legScores[pair.long] = raw
		legScores[pair.short] = -raw
	}
	legScores = s.Combiner.CombineAll(legScores, in.Sentiment)

	// Equal dollar weight per leg keeps every pair, and the book,
	// market-neutral.
	legWeight := 1.0 / float64(2*len(selected))
	if in.Risk.MaxPositionSizePct > 0 && legWeight > in.Risk.MaxPositionSizePct {
		legWeight = in.Risk.MaxPositionSizePct
	}

	maxHoldingDays := intPtr(15)
	if in.Params.MaxHoldingDays != nil {
		maxHoldingDays = in.Params.MaxHoldingDays
	}
	if in.Risk.MaxHoldingDays != nil {
		maxHoldingDays = in.Risk.MaxHoldingDays
	}

	targets := make([]domain.TargetPosition, 0, len(selected)*2)
	for _, pair := range selected {
		targets = append(targets,
			spreadLeg(universe[pair.long], pair, domain.SideLong, legWeight, legScores[pair.long], maxHoldingDays, in.Risk),
			spreadLeg(universe[pair.short], pair, domain.SideShort, legWeight, legScores[pair.short], maxHoldingDays, in.Risk),
		)
	}
	return targets, nil
}

func spreadLeg(stock domain.Stock, pair pairCandidate, side domain.PositionSide, weight, score float64, maxHoldingDays *int, risk domain.RiskParams) domain.TargetPosition {
	ticker, against := pair.long, pair.short
	if side == domain.SideShort {
		ticker, against = pair.short, pair.long
	}
	target := domain.TargetPosition{
		Ticker:         ticker,
		Side:           side,
		Weight:         weight,
		SignalStrength: formulas.Clamp(math.Abs(score), 0, 100),
		EntryPrice:     stock.Price,
		MaxHoldingDays: maxHoldingDays,
		Rationale:      fmt.Sprintf("spread reversion vs %s: z %.1f", against, pair.z),
	}
	applyExitLevels(&target, risk)
	return target
}

// VolatilityPremium harvests the low-volatility premium: calm names over
// turbulent ones, gated by the sentiment crisis filter so it never adds
// exposure into a panic.
type VolatilityPremium struct {
	Combiner SignalCombiner
}

// Name returns the strategy type identifier
func (s *VolatilityPremium) Name() string { return TypeVolatilityPremium }

// Targets implements Strategy
func (s *VolatilityPremium) Targets(in Inputs) ([]domain.TargetPosition, error) {
	universe := filterUniverse(in)
	scores := s.Combiner.CombineAll(RealizedVolatility(universe), in.Sentiment)

	return buildTargets(in, universe, scores, targetOptions{
		minScore:  0,
		rationale: "low realized volatility",
	}), nil
}
