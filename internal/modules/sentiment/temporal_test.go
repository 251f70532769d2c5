package sentiment

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/helmsman/internal/domain"
)

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestStreak(t *testing.T) {
	assert.Equal(t, 3, streak([]float64{-10, 5, 8, 12}))
	assert.Equal(t, -2, streak([]float64{10, -5, -8}))
	assert.Equal(t, 0, streak([]float64{10, 5, 0}))
	assert.Equal(t, 0, streak(nil))
	assert.Equal(t, 1, streak([]float64{7}))
}

func TestStreak_ZeroTerminatesRun(t *testing.T) {
	assert.Equal(t, 2, streak([]float64{5, 0, 3, 4}))
}

func TestPersistence(t *testing.T) {
	// A flat series is perfectly persistent.
	assert.Equal(t, 1.0, persistence([]float64{40, 40, 40, 40}))
	// Short series cannot be judged.
	assert.Equal(t, 0.0, persistence([]float64{40}))

	noisy := persistence([]float64{80, -80, 80, -80})
	calm := persistence([]float64{20, 22, 21, 23})
	assert.Less(t, noisy, calm)
	assert.GreaterOrEqual(t, noisy, 0.0)
	assert.LessOrEqual(t, calm, 1.0)
}

func TestBreakout_RequiresJumpAndZeroCross(t *testing.T) {
	// Prior mean below zero, tail well above: breakout.
	assert.True(t, breakout([]float64{-20, -25, -15, 30, 40, 35}))

	// Large jump but no zero cross: not a breakout.
	assert.False(t, breakout([]float64{10, 12, 11, 50, 55, 52}))

	// Zero cross but too small a jump.
	assert.False(t, breakout([]float64{-5, -4, -6, 5, 6, 4}))

	// Too little history.
	assert.False(t, breakout([]float64{10, 50}))
}

func TestEnrich_Deterministic(t *testing.T) {
	analyzer := NewTemporalAnalyzer(testLog())
	series := []float64{-10, 5, 10, 15, 20}
	input := domain.SentimentInput{Ticker: "AAPL", Combined: 20}

	first := analyzer.Enrich(input, series)
	second := analyzer.Enrich(input, series)

	assert.Equal(t, first, second)
	assert.Equal(t, 4, first.Streak)
	assert.Greater(t, first.TrendSlope, 0.0)
	assert.GreaterOrEqual(t, first.Persistence, 0.0)
	assert.LessOrEqual(t, first.Persistence, 1.0)
}
