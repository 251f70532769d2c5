package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/modules/factors"
)

func baseTestWeights() map[string]float64 {
	return map[string]float64{
		factors.FactorMomentum:   0.25,
		factors.FactorValue:      0.15,
		factors.FactorQuality:    0.20,
		factors.FactorDividend:   0.05,
		factors.FactorVolatility: 0.10,
		WeightSentiment:          0.25,
	}
}

func bullishInput() Input {
	return Input{
		Factors: domain.FactorScores{
			Momentum:   floatPtr(80),
			Value:      floatPtr(70),
			Quality:    floatPtr(75),
			Dividend:   floatPtr(60),
			Volatility: floatPtr(65),
		},
		Sentiment: domain.SentimentInput{
			NewsScore:   floatPtr(60),
			SocialScore: floatPtr(50),
			Combined:    55,
			Velocity:    5,
			Streak:      6,
			TrendSlope:  2,
			Persistence: 0.8,
		},
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestIntegrate_CompositeWithinBounds(t *testing.T) {
	integrator := NewIntegrator(testLog())

	inputs := map[string]Input{
		"BULL": bullishInput(),
		"BEAR": {
			Factors: domain.FactorScores{
				Momentum: floatPtr(15),
				Quality:  floatPtr(20),
			},
			Sentiment: domain.SentimentInput{
				NewsScore:   floatPtr(-70),
				SocialScore: floatPtr(-60),
				Combined:    -65,
				Velocity:    -8,
				Streak:      -5,
				Persistence: 0.7,
			},
		},
	}

	scores := integrator.Integrate(inputs, baseTestWeights(), nil)

	assert.Len(t, scores, 2)
	for ticker, s := range scores {
		assert.GreaterOrEqual(t, s.Composite, 0.0, ticker)
		assert.LessOrEqual(t, s.Composite, 100.0, ticker)
	}
	assert.Greater(t, scores["BULL"].Composite, scores["BEAR"].Composite)
}

func TestIntegrate_RegimeDetection(t *testing.T) {
	integrator := NewIntegrator(testLog())

	bullish := map[string]Input{"A": bullishInput(), "B": bullishInput()}
	scores := integrator.Integrate(bullish, baseTestWeights(), nil)
	assert.Equal(t, RegimeRiskOn, scores["A"].SentimentRegime)
	assert.Greater(t, scores["A"].RegimeStrength, 0.0)

	bearish := bullishInput()
	bearish.Sentiment.Combined = -60
	scores = integrator.Integrate(map[string]Input{"A": bearish}, baseTestWeights(), nil)
	assert.Equal(t, RegimeRiskOff, scores["A"].SentimentRegime)
}

func TestIntegrate_EmptyUniverseIsNeutral(t *testing.T) {
	integrator := NewIntegrator(testLog())
	scores := integrator.Integrate(map[string]Input{}, baseTestWeights(), nil)
	assert.Empty(t, scores)
}

func TestTiltedWeights_SumToOne(t *testing.T) {
	for _, strength := range []float64{-1, -0.5, 0, 0.5, 1} {
		weights := tiltedWeights(baseTestWeights(), strength, nil)
		sum := 0.0
		for _, w := range weights {
			assert.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "strength %.1f", strength)
	}
}

func TestTiltedWeights_RiskOnFavorsMomentum(t *testing.T) {
	neutral := tiltedWeights(baseTestWeights(), 0, nil)
	riskOn := tiltedWeights(baseTestWeights(), 1, nil)
	riskOff := tiltedWeights(baseTestWeights(), -1, nil)

	assert.Greater(t, riskOn[factors.FactorMomentum], neutral[factors.FactorMomentum])
	assert.Less(t, riskOff[factors.FactorMomentum], neutral[factors.FactorMomentum])
	assert.Greater(t, riskOff[factors.FactorQuality], neutral[factors.FactorQuality])
}

func TestTiltedWeights_SentimentOverride(t *testing.T) {
	override := 0.5
	weights := tiltedWeights(baseTestWeights(), 0, &override)

	// The override replaces the sentiment share before renormalization,
	// so the ratio against the untouched factor mass shifts up.
	assert.Greater(t, weights[WeightSentiment], baseTestWeights()[WeightSentiment])

	zero := 0.0
	weights = tiltedWeights(baseTestWeights(), 0, &zero)
	assert.Equal(t, 0.0, weights[WeightSentiment])
}

func TestTiltedWeights_DegenerateFallsBackToEqual(t *testing.T) {
	zero := 0.0
	weights := tiltedWeights(map[string]float64{}, 0, &zero)

	assert.Equal(t, 0.2, weights[factors.FactorMomentum])
	assert.Equal(t, 0.0, weights[WeightSentiment])
}

func TestTriangulationConfidence(t *testing.T) {
	// Same sign, identical: full confidence.
	assert.InDelta(t, 1.0, triangulationConfidence(floatPtr(50), floatPtr(50)), 1e-9)
	// One source only.
	assert.Equal(t, 0.75, triangulationConfidence(floatPtr(50), nil))
	// Opposite signs never drop below 0.5.
	assert.GreaterOrEqual(t, triangulationConfidence(floatPtr(100), floatPtr(-100)), 0.5)
}

func TestDispersionRisk(t *testing.T) {
	assert.InDelta(t, 0.0, dispersionRisk(floatPtr(40), floatPtr(40)), 1e-9)
	assert.Equal(t, 0.3, dispersionRisk(floatPtr(40), nil))

	wide := dispersionRisk(floatPtr(90), floatPtr(-90))
	assert.Greater(t, wide, 0.5)
	assert.Less(t, wide, 1.0)
}

func TestTemporalBonus_Clamped(t *testing.T) {
	s := domain.SentimentInput{Streak: 30, TrendSlope: 50, Persistence: 1, Breakout: true, Combined: 80}
	assert.Equal(t, 10.0, temporalBonus(s))

	s = domain.SentimentInput{Streak: -30, TrendSlope: -50, Persistence: 1, Breakout: true, Combined: -80}
	assert.Equal(t, -10.0, temporalBonus(s))
}

func TestConfluenceBonus(t *testing.T) {
	price := 110.0
	ma := 100.0

	// Above MA with a bullish streak: positive bonus.
	assert.Greater(t, confluenceBonus(&price, &ma, 8), 0.0)
	// Above MA with a bearish streak: mild penalty.
	assert.Less(t, confluenceBonus(&price, &ma, -8), 0.0)
	// No streak: nothing.
	assert.Equal(t, 0.0, confluenceBonus(&price, &ma, 0))
	// Missing MA: nothing.
	assert.Equal(t, 0.0, confluenceBonus(&price, nil, 8))
}
