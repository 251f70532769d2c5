package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileRanks_AverageRank(t *testing.T) {
	ranks := PercentileRanks(map[string]float64{
		"A": 10,
		"B": 20,
		"C": 30,
		"D": 40,
	})

	assert.Len(t, ranks, 4)
	assert.Less(t, ranks["A"], ranks["B"])
	assert.Less(t, ranks["B"], ranks["C"])
	assert.Less(t, ranks["C"], ranks["D"])
	for _, v := range ranks {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestPercentileRanks_TiesShareRank(t *testing.T) {
	ranks := PercentileRanks(map[string]float64{
		"A": 10,
		"B": 10,
		"C": 30,
	})

	assert.Equal(t, ranks["A"], ranks["B"])
	assert.Greater(t, ranks["C"], ranks["A"])
}

func TestPercentileRanks_SingleEntryIsNeutral(t *testing.T) {
	ranks := PercentileRanks(map[string]float64{"A": 42})
	assert.Equal(t, 50.0, ranks["A"])
}

func TestPercentileRanks_SkipsNonFinite(t *testing.T) {
	ranks := PercentileRanks(map[string]float64{
		"A":   10,
		"B":   20,
		"NAN": math.NaN(),
	})

	assert.Len(t, ranks, 2)
	assert.NotContains(t, ranks, "NAN")
}

func TestLinearSlope(t *testing.T) {
	assert.InDelta(t, 2.0, LinearSlope([]float64{1, 3, 5, 7}), 1e-9)
	assert.InDelta(t, 0.0, LinearSlope([]float64{4, 4, 4, 4}), 1e-9)
	assert.Equal(t, 0.0, LinearSlope([]float64{5}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(5, 0, 10))
	assert.Equal(t, 0.0, Clamp(-1, 0, 10))
	assert.Equal(t, 10.0, Clamp(11, 0, 10))
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})
	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}
