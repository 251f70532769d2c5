package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// PopStdDev calculates the population standard deviation (divisor N, not N-1)
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := stat.Mean(data, nil)
	sum := 0.0
	for _, v := range data {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(252)
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// LinearSlope calculates the least-squares slope of values against their
// index (0, 1, 2, ...). Returns 0 for fewer than two points.
func LinearSlope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}

	_, slope := stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0
	}
	return slope
}

// PercentileRanks converts a map of raw values to 0-100 percentile scores
// using average rank (ties share their average rank). A single entry maps
// to 50. Non-finite values are skipped entirely.
func PercentileRanks(raw map[string]float64) map[string]float64 {
	type entry struct {
		key   string
		value float64
	}

	entries := make([]entry, 0, len(raw))
	for k, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		entries = append(entries, entry{key: k, value: v})
	}

	result := make(map[string]float64, len(entries))
	n := len(entries)
	if n == 0 {
		return result
	}
	if n == 1 {
		result[entries[0].key] = 50
		return result
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].value < entries[j].value
	})

	// Average rank across ties, scaled to 0-100.
	i := 0
	for i < n {
		j := i
		for j+1 < n && entries[j+1].value == entries[i].value {
			j++
		}
		avgRank := float64(i+j) / 2.0
		score := avgRank / float64(n-1) * 100.0
		for k := i; k <= j; k++ {
			result[entries[k].key] = score
		}
		i = j + 1
	}

	return result
}

// Clamp bounds a value to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round2 rounds a float to 2 decimal places
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Round3 rounds a float to 3 decimal places
func Round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
