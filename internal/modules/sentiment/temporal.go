// Package sentiment enriches raw sentiment readings with temporal
// diagnostics and blends them with factor scores through the seven-layer
// integrator.
package sentiment

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

const (
	// breakoutDelta is the minimum jump between the trailing 3-day mean
	// and the prior mean for a breakout flag.
	breakoutDelta = 30.0
	breakoutTail  = 3
)

// TemporalAnalyzer derives streak, trend, persistence and breakout
// diagnostics from a per-symbol combined-sentiment time series.
type TemporalAnalyzer struct {
	log zerolog.Logger
}

// NewTemporalAnalyzer creates a new temporal analyzer
func NewTemporalAnalyzer(log zerolog.Logger) *TemporalAnalyzer {
	return &TemporalAnalyzer{
		log: log.With().Str("component", "temporal_analyzer").Logger(),
	}
}

// Enrich fills the temporal fields of a sentiment input from its history.
// The series is oldest first. Enrichment is deterministic in its inputs.
func (t *TemporalAnalyzer) Enrich(input domain.SentimentInput, series []float64) domain.SentimentInput {
	input.Streak = streak(series)
	input.TrendSlope = formulas.LinearSlope(series)
	input.Persistence = persistence(series)
	input.Breakout = breakout(series)
	return input
}

// streak is the signed length of the trailing run with consistent sign.
// Zero readings terminate the run.
func streak(series []float64) int {
	if len(series) == 0 {
		return 0
	}

	last := series[len(series)-1]
	if last == 0 {
		return 0
	}

	count := 0
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] == 0 || (series[i] > 0) != (last > 0) {
			break
		}
		count++
	}

	if last < 0 {
		return -count
	}
	return count
}

// persistence = 1 / (1 + (stdev/20)^1.5), in [0, 1]. A flat series is
// perfectly persistent.
func persistence(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	sd := formulas.PopStdDev(series)
	return 1.0 / (1.0 + math.Pow(sd/20.0, 1.5))
}

// breakout is true when the trailing 3-day mean differs from the prior
// mean by at least breakoutDelta AND the move crosses zero.
func breakout(series []float64) bool {
	if len(series) <= breakoutTail {
		return false
	}

	tail := series[len(series)-breakoutTail:]
	prior := series[:len(series)-breakoutTail]

	tailMean := formulas.Mean(tail)
	priorMean := formulas.Mean(prior)

	if math.Abs(tailMean-priorMean) < breakoutDelta {
		return false
	}

	// Must cross zero, not merely accelerate on one side.
	return (tailMean > 0 && priorMean <= 0) || (tailMean < 0 && priorMean >= 0)
}
