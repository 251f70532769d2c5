// Package factors computes the five per-stock factor percentiles and the
// weighted composite used by the cross-sectional strategies.
package factors

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// Factor weight keys
const (
	FactorMomentum   = "momentum"
	FactorValue      = "value"
	FactorQuality    = "quality"
	FactorDividend   = "dividend"
	FactorVolatility = "volatility"
)

// Extreme-value filters. Values outside these ranges are treated as data
// errors and dropped from the cross-section.
const (
	maxPERatio      = 200.0
	maxPBRatio      = 50.0
	minROE          = -0.5
	maxROE          = 1.0
	minMargin       = -0.5
	maxMargin       = 1.0
	maxDebtToEquity = 10.0

	// Symbols with fewer daily closes than this contribute no momentum raw.
	minMomentumHistory = 126

	atrPeriod     = 14
	volFallbackN  = 20
	neutralFactor = 50.0
)

// DefaultWeights is the equal-ish weighting used when a strategy does not
// supply its own factor weights.
var DefaultWeights = map[string]float64{
	FactorMomentum:   0.25,
	FactorValue:      0.20,
	FactorQuality:    0.25,
	FactorDividend:   0.10,
	FactorVolatility: 0.20,
}

// Calculator computes factor percentiles across a stock universe
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new factor calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "factor_calculator").Logger(),
	}
}

// Calculate produces factor scores for every stock in the universe.
// Weights may contain any subset of the five factor keys; extras are
// ignored and the remainder is renormalized to sum to 1. A nil weights
// map uses DefaultWeights. When sectorAware is true, value percentiles
// are computed within each sector.
func (c *Calculator) Calculate(stocks map[string]domain.Stock, weights map[string]float64, sectorAware bool) map[string]domain.FactorScores {
	normalized := NormalizeWeights(weights)

	momentum := formulas.PercentileRanks(c.momentumRaw(stocks))
	value := c.valuePercentiles(stocks, sectorAware)
	quality := formulas.PercentileRanks(c.qualityRaw(stocks))
	dividend := c.dividendPercentiles(stocks)
	volatility := invertPercentiles(formulas.PercentileRanks(c.volatilityRaw(stocks)))

	results := make(map[string]domain.FactorScores, len(stocks))
	for ticker := range stocks {
		scores := domain.FactorScores{Ticker: ticker}
		scores.Momentum = lookup(momentum, ticker)
		scores.Value = lookup(value, ticker)
		scores.Quality = lookup(quality, ticker)
		scores.Dividend = lookup(dividend, ticker)
		scores.Volatility = lookup(volatility, ticker)

		// Composite: missing factors default to neutral 50.
		composite := 0.0
		composite += domain.FactorOr(scores.Momentum) * normalized[FactorMomentum]
		composite += domain.FactorOr(scores.Value) * normalized[FactorValue]
		composite += domain.FactorOr(scores.Quality) * normalized[FactorQuality]
		composite += domain.FactorOr(scores.Dividend) * normalized[FactorDividend]
		composite += domain.FactorOr(scores.Volatility) * normalized[FactorVolatility]
		scores.Composite = formulas.Clamp(composite, 0, 100)

		results[ticker] = scores
	}

	c.log.Debug().
		Int("universe", len(stocks)).
		Int("with_momentum", len(momentum)).
		Int("with_value", len(value)).
		Msg("Factor scores calculated")

	return results
}

// NormalizeWeights keeps only the five known factor keys and renormalizes
// them to sum to 1. Nil or degenerate input falls back to DefaultWeights.
func NormalizeWeights(weights map[string]float64) map[string]float64 {
	if weights == nil {
		weights = DefaultWeights
	}

	known := []string{FactorMomentum, FactorValue, FactorQuality, FactorDividend, FactorVolatility}
	out := make(map[string]float64, len(known))
	sum := 0.0
	for _, k := range known {
		w := weights[k]
		if w < 0 || !formulas.IsFinite(w) {
			w = 0
		}
		out[k] = w
		sum += w
	}

	if sum <= 0 {
		return NormalizeWeights(DefaultWeights)
	}
	for k := range out {
		out[k] /= sum
	}
	return out
}

// momentumRaw = 0.4*(6-month return) + 0.3*(12-month skip-1-month return)
// + 0.3*(MA alignment score in [-1, +1]).
func (c *Calculator) momentumRaw(stocks map[string]domain.Stock) map[string]float64 {
	raw := make(map[string]float64)
	for ticker, stock := range stocks {
		closes := stock.PriceHistory
		if len(closes) < minMomentumHistory {
			continue
		}

		sixMonth := formulas.PeriodReturn(closes, 126)
		twelveSkip := formulas.SkipMonthReturn(closes, 252, 21)
		alignment := maAlignment(stock.Price, closes)

		score := 0.0
		parts := 0
		if sixMonth != nil {
			score += 0.4 * *sixMonth
			parts++
		}
		if twelveSkip != nil {
			score += 0.3 * *twelveSkip
			parts++
		}
		if alignment != nil {
			score += 0.3 * *alignment
			parts++
		}
		if parts == 0 {
			continue
		}
		raw[ticker] = score
	}
	return raw
}

// maAlignment counts four ordered price/MA30/MA100/MA200 relations,
// +0.25 when ascending and -0.25 otherwise, giving a score in [-1, +1].
func maAlignment(price float64, closes []float64) *float64 {
	ma30 := formulas.CalculateSMA(closes, 30)
	ma100 := formulas.CalculateSMA(closes, 100)
	ma200 := formulas.CalculateSMA(closes, 200)
	if ma30 == nil || ma100 == nil || ma200 == nil || price <= 0 {
		return nil
	}

	score := 0.0
	relations := [][2]float64{
		{price, *ma30},
		{*ma30, *ma100},
		{*ma100, *ma200},
		{price, *ma200},
	}
	for _, rel := range relations {
		if rel[0] > rel[1] {
			score += 0.25
		} else {
			score -= 0.25
		}
	}
	return &score
}

// valuePercentiles = 0.5*(inverted P/E percentile) + 0.5*(inverted P/B
// percentile). When sectorAware, percentiles are computed inside each
// sector so capital-structure norms do not pollute the cross-section.
func (c *Calculator) valuePercentiles(stocks map[string]domain.Stock, sectorAware bool) map[string]float64 {
	groups := map[string]map[string]domain.Stock{}
	if sectorAware {
		for ticker, stock := range stocks {
			sector := stock.Sector
			if groups[sector] == nil {
				groups[sector] = map[string]domain.Stock{}
			}
			groups[sector][ticker] = stock
		}
	} else {
		groups[""] = stocks
	}

	result := make(map[string]float64)
	for _, group := range groups {
		peRaw := make(map[string]float64)
		pbRaw := make(map[string]float64)
		for ticker, stock := range group {
			f := stock.Fundamentals
			if f.PERatio != nil && *f.PERatio > 0 && *f.PERatio < maxPERatio {
				peRaw[ticker] = *f.PERatio
			}
			if f.PBRatio != nil && *f.PBRatio > 0 && *f.PBRatio < maxPBRatio {
				pbRaw[ticker] = *f.PBRatio
			}
		}

		// Lower multiples are better: invert the rank.
		pePct := invertPercentiles(formulas.PercentileRanks(peRaw))
		pbPct := invertPercentiles(formulas.PercentileRanks(pbRaw))

		for ticker := range group {
			pe, hasPE := pePct[ticker]
			pb, hasPB := pbPct[ticker]
			switch {
			case hasPE && hasPB:
				result[ticker] = 0.5*pe + 0.5*pb
			case hasPE:
				result[ticker] = pe
			case hasPB:
				result[ticker] = pb
			}
		}
	}
	return result
}

// qualityRaw = 0.4*ROE percentile + 0.3*margin percentile + 0.3*(inverted
// debt/equity percentile), computed on the filtered cross-section.
func (c *Calculator) qualityRaw(stocks map[string]domain.Stock) map[string]float64 {
	roeRaw := make(map[string]float64)
	marginRaw := make(map[string]float64)
	deRaw := make(map[string]float64)
	for ticker, stock := range stocks {
		f := stock.Fundamentals
		if f.ROE != nil && *f.ROE > minROE && *f.ROE < maxROE {
			roeRaw[ticker] = *f.ROE
		}
		if f.ProfitMargin != nil && *f.ProfitMargin > minMargin && *f.ProfitMargin < maxMargin {
			marginRaw[ticker] = *f.ProfitMargin
		}
		if f.DebtToEquity != nil && *f.DebtToEquity >= 0 && *f.DebtToEquity < maxDebtToEquity {
			deRaw[ticker] = *f.DebtToEquity
		}
	}

	roePct := formulas.PercentileRanks(roeRaw)
	marginPct := formulas.PercentileRanks(marginRaw)
	dePct := invertPercentiles(formulas.PercentileRanks(deRaw))

	raw := make(map[string]float64)
	for ticker := range stocks {
		score := 0.0
		weight := 0.0
		if v, ok := roePct[ticker]; ok {
			score += 0.4 * v
			weight += 0.4
		}
		if v, ok := marginPct[ticker]; ok {
			score += 0.3 * v
			weight += 0.3
		}
		if v, ok := dePct[ticker]; ok {
			score += 0.3 * v
			weight += 0.3
		}
		if weight > 0 {
			raw[ticker] = score / weight
		}
	}
	return raw
}

// dividendPercentiles = 0.6*yield percentile + 0.4*5-year-growth
// percentile. Non-payers score 0, not neutral.
func (c *Calculator) dividendPercentiles(stocks map[string]domain.Stock) map[string]float64 {
	yieldRaw := make(map[string]float64)
	growthRaw := make(map[string]float64)
	for ticker, stock := range stocks {
		f := stock.Fundamentals
		if f.DividendYield != nil && *f.DividendYield > 0 {
			yieldRaw[ticker] = *f.DividendYield
		}
		if f.DivGrowth5Y != nil {
			growthRaw[ticker] = *f.DivGrowth5Y
		}
	}

	yieldPct := formulas.PercentileRanks(yieldRaw)
	growthPct := formulas.PercentileRanks(growthRaw)

	result := make(map[string]float64)
	for ticker, stock := range stocks {
		f := stock.Fundamentals
		if f.DividendYield == nil || *f.DividendYield <= 0 {
			result[ticker] = 0
			continue
		}
		score := 0.6 * yieldPct[ticker]
		if g, ok := growthPct[ticker]; ok {
			score += 0.4 * g
		}
		result[ticker] = score
	}
	return result
}

// volatilityRaw = ATR/price*100, falling back to the 20-day annualized
// stdev of daily returns when ATR inputs are absent. Lower is better;
// the caller inverts the percentile.
func (c *Calculator) volatilityRaw(stocks map[string]domain.Stock) map[string]float64 {
	raw := make(map[string]float64)
	for ticker, stock := range stocks {
		if stock.Price <= 0 {
			continue
		}

		if atr := formulas.CalculateATR(stock.HighHistory, stock.LowHistory, stock.PriceHistory, atrPeriod); atr != nil {
			raw[ticker] = *atr / stock.Price * 100
			continue
		}

		closes := stock.PriceHistory
		if len(closes) <= volFallbackN {
			continue
		}
		returns := formulas.CalculateReturns(closes[len(closes)-volFallbackN-1:])
		vol := formulas.AnnualizedVolatility(returns)
		if vol > 0 && !math.IsInf(vol, 0) {
			raw[ticker] = vol
		}
	}
	return raw
}

func invertPercentiles(pct map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(pct))
	for k, v := range pct {
		out[k] = 100 - v
	}
	return out
}

func lookup(pct map[string]float64, ticker string) *float64 {
	v, ok := pct[ticker]
	if !ok {
		return nil
	}
	return &v
}
