package factors

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/helmsman/internal/domain"
)

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func floatPtr(v float64) *float64 { return &v }

// trending builds a price history of n days with a constant daily drift.
func trending(start, dailyDrift float64, n int) []float64 {
	out := make([]float64, n)
	price := start
	for i := range out {
		out[i] = price
		price *= 1 + dailyDrift
	}
	return out
}

func testUniverse() map[string]domain.Stock {
	up := trending(50, 0.002, 300)
	flat := trending(50, 0.0, 300)
	down := trending(50, -0.002, 300)

	return map[string]domain.Stock{
		"UP": {
			Ticker:       "UP",
			Sector:       "tech",
			Price:        up[len(up)-1],
			PriceHistory: up,
			Fundamentals: domain.Fundamentals{
				PERatio:       floatPtr(15),
				PBRatio:       floatPtr(2),
				ROE:           floatPtr(0.25),
				ProfitMargin:  floatPtr(0.20),
				DebtToEquity:  floatPtr(0.5),
				DividendYield: floatPtr(0.02),
				DivGrowth5Y:   floatPtr(0.08),
			},
		},
		"FLAT": {
			Ticker:       "FLAT",
			Sector:       "tech",
			Price:        flat[len(flat)-1],
			PriceHistory: flat,
			Fundamentals: domain.Fundamentals{
				PERatio:      floatPtr(30),
				PBRatio:      floatPtr(5),
				ROE:          floatPtr(0.10),
				ProfitMargin: floatPtr(0.05),
				DebtToEquity: floatPtr(2.0),
			},
		},
		"DOWN": {
			Ticker:       "DOWN",
			Sector:       "energy",
			Price:        down[len(down)-1],
			PriceHistory: down,
			Fundamentals: domain.Fundamentals{
				PERatio:       floatPtr(60),
				PBRatio:       floatPtr(8),
				ROE:           floatPtr(0.02),
				ProfitMargin:  floatPtr(-0.05),
				DebtToEquity:  floatPtr(5.0),
				DividendYield: floatPtr(0.05),
			},
		},
	}
}

func TestCalculate_ScoresWithinBounds(t *testing.T) {
	calc := NewCalculator(testLog())
	scores := calc.Calculate(testUniverse(), nil, false)

	assert.Len(t, scores, 3)
	for ticker, s := range scores {
		assert.GreaterOrEqual(t, s.Composite, 0.0, ticker)
		assert.LessOrEqual(t, s.Composite, 100.0, ticker)
		for _, f := range []*float64{s.Momentum, s.Value, s.Quality, s.Dividend, s.Volatility} {
			if f != nil {
				assert.GreaterOrEqual(t, *f, 0.0, ticker)
				assert.LessOrEqual(t, *f, 100.0, ticker)
			}
		}
	}
}

func TestCalculate_MomentumOrdering(t *testing.T) {
	calc := NewCalculator(testLog())
	scores := calc.Calculate(testUniverse(), nil, false)

	assert.NotNil(t, scores["UP"].Momentum)
	assert.NotNil(t, scores["DOWN"].Momentum)
	assert.Greater(t, *scores["UP"].Momentum, *scores["DOWN"].Momentum)
}

func TestCalculate_ShortHistoryHasNoMomentum(t *testing.T) {
	universe := testUniverse()
	short := universe["UP"]
	short.PriceHistory = short.PriceHistory[:60]
	universe["UP"] = short

	calc := NewCalculator(testLog())
	scores := calc.Calculate(universe, nil, false)

	assert.Nil(t, scores["UP"].Momentum)
}

func TestCalculate_NonPayersScoreZeroDividend(t *testing.T) {
	calc := NewCalculator(testLog())
	scores := calc.Calculate(testUniverse(), nil, false)

	// FLAT pays no dividend: hard zero, not neutral.
	assert.NotNil(t, scores["FLAT"].Dividend)
	assert.Equal(t, 0.0, *scores["FLAT"].Dividend)
	assert.Greater(t, *scores["UP"].Dividend, 0.0)
}

func TestCalculate_ExtremeValuationsDropped(t *testing.T) {
	universe := testUniverse()
	bad := universe["FLAT"]
	bad.Fundamentals.PERatio = floatPtr(500)
	bad.Fundamentals.PBRatio = floatPtr(80)
	universe["FLAT"] = bad

	calc := NewCalculator(testLog())
	scores := calc.Calculate(universe, nil, false)

	assert.Nil(t, scores["FLAT"].Value)
}

func TestNormalizeWeights(t *testing.T) {
	out := NormalizeWeights(map[string]float64{
		FactorMomentum: 2,
		FactorQuality:  2,
		"unknown":      5,
	})

	assert.Equal(t, 0.5, out[FactorMomentum])
	assert.Equal(t, 0.5, out[FactorQuality])
	assert.Equal(t, 0.0, out[FactorValue])
	assert.NotContains(t, out, "unknown")
}

func TestNormalizeWeights_DegenerateFallsBack(t *testing.T) {
	out := NormalizeWeights(map[string]float64{FactorMomentum: 0})

	sum := 0.0
	for _, w := range out {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, out[FactorMomentum], 0.0)
}

func TestNormalizeWeights_NilUsesDefaults(t *testing.T) {
	out := NormalizeWeights(nil)
	sum := 0.0
	for _, w := range out {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}
