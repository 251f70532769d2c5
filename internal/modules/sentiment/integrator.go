package sentiment

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/modules/factors"
	"github.com/aristath/helmsman/pkg/formulas"
)

// Sentiment regime labels
const (
	RegimeRiskOn  = "risk_on"
	RegimeNeutral = "neutral"
	RegimeRiskOff = "risk_off"
)

// WeightSentiment is the pseudo-factor key for the sentiment share of the
// integrated weighted sum.
const WeightSentiment = "sentiment"

// neutralStrength is the regime-strength magnitude below which the
// universe is treated as sentiment-neutral and no tilt is applied.
const neutralStrength = 0.05

// Tilt vectors applied to the base factor weights, scaled by regime
// strength. Risk-on leans into momentum; risk-off rotates toward
// quality, value and income.
var (
	riskOnTilts = map[string]float64{
		factors.FactorMomentum:   0.10,
		factors.FactorValue:      -0.05,
		factors.FactorQuality:    -0.05,
		factors.FactorDividend:   -0.05,
		factors.FactorVolatility: 0.05,
	}
	riskOffTilts = map[string]float64{
		factors.FactorMomentum:   -0.10,
		factors.FactorValue:      0.05,
		factors.FactorQuality:    0.075,
		factors.FactorDividend:   0.05,
		factors.FactorVolatility: -0.075,
	}
)

// Integrator blends factor scores with temporally-enriched sentiment
// through seven layers into a single 0-100 composite per stock.
type Integrator struct {
	log zerolog.Logger
}

// NewIntegrator creates a new sentiment-factor integrator
func NewIntegrator(log zerolog.Logger) *Integrator {
	return &Integrator{
		log: log.With().Str("component", "sentiment_integrator").Logger(),
	}
}

// Input bundles the per-stock pieces the integrator consumes. Price and
// MA200 are optional; when absent Layer 7 contributes nothing.
type Input struct {
	Factors   domain.FactorScores
	Sentiment domain.SentimentInput
	Price     *float64
	MA200     *float64
}

// Integrate runs the seven layers over the whole universe. baseWeights
// carries the five factor keys plus "sentiment"; sentimentOverride, when
// non-nil, replaces the sentiment share before renormalization.
func (in *Integrator) Integrate(inputs map[string]Input, baseWeights map[string]float64, sentimentOverride *float64) map[string]domain.IntegratedScore {
	// Layer 0: regime detection across the universe.
	strength := in.regimeStrength(inputs)
	regime := RegimeNeutral
	if strength > neutralStrength {
		regime = RegimeRiskOn
	} else if strength < -neutralStrength {
		regime = RegimeRiskOff
	}

	weights := tiltedWeights(baseWeights, strength, sentimentOverride)

	results := make(map[string]domain.IntegratedScore, len(inputs))
	for ticker, input := range inputs {
		score := in.integrateOne(input, weights)
		score.Ticker = ticker
		score.RegimeStrength = strength
		score.SentimentRegime = regime
		results[ticker] = score
	}

	in.log.Debug().
		Float64("regime_strength", strength).
		Str("regime", regime).
		Int("universe", len(inputs)).
		Msg("Sentiment-factor integration complete")

	return results
}

// regimeStrength = clamp(0.6*tanh(agg/25) + 0.4*(2*breadth - 1), -1, +1)
// where agg is the mean combined sentiment and breadth the fraction of
// the universe with positive sentiment.
func (in *Integrator) regimeStrength(inputs map[string]Input) float64 {
	if len(inputs) == 0 {
		return 0
	}

	sum := 0.0
	positive := 0
	for _, input := range inputs {
		sum += input.Sentiment.Combined
		if input.Sentiment.Combined > 0 {
			positive++
		}
	}

	agg := sum / float64(len(inputs))
	breadth := float64(positive) / float64(len(inputs))

	strength := 0.6*math.Tanh(agg/25.0) + 0.4*(2.0*breadth-1.0)
	return formulas.Clamp(strength, -1, 1)
}

// tiltedWeights applies the regime tilt to the five factor weights,
// honors the sentiment override, clamps negatives to zero and
// renormalizes everything to sum to 1.
func tiltedWeights(base map[string]float64, strength float64, sentimentOverride *float64) map[string]float64 {
	tilts := riskOnTilts
	if strength < 0 {
		tilts = riskOffTilts
	}
	magnitude := math.Abs(strength)
	if magnitude < neutralStrength {
		magnitude = 0
	}

	out := make(map[string]float64, 6)
	for _, k := range []string{factors.FactorMomentum, factors.FactorValue, factors.FactorQuality, factors.FactorDividend, factors.FactorVolatility} {
		w := base[k] + tilts[k]*magnitude
		if w < 0 {
			w = 0
		}
		out[k] = w
	}

	sentWeight := base[WeightSentiment]
	if sentimentOverride != nil {
		sentWeight = *sentimentOverride
	}
	if sentWeight < 0 {
		sentWeight = 0
	}
	out[WeightSentiment] = sentWeight

	sum := 0.0
	for _, w := range out {
		sum += w
	}
	if sum <= 0 {
		// Degenerate config: fall back to pure neutral factor weighting.
		return map[string]float64{
			factors.FactorMomentum: 0.2, factors.FactorValue: 0.2,
			factors.FactorQuality: 0.2, factors.FactorDividend: 0.2,
			factors.FactorVolatility: 0.2, WeightSentiment: 0,
		}
	}
	for k := range out {
		out[k] /= sum
	}
	return out
}

func (in *Integrator) integrateOne(input Input, weights map[string]float64) domain.IntegratedScore {
	f := input.Factors
	s := input.Sentiment

	momentum := domain.FactorOr(f.Momentum)
	avgFactor := (momentum +
		domain.FactorOr(f.Value) +
		domain.FactorOr(f.Quality) +
		domain.FactorOr(f.Dividend) +
		domain.FactorOr(f.Volatility)) / 5.0

	// Layer 1: convergence amplification, in [-15, +15].
	convergence := 15.0 * (avgFactor - 50.0) / 50.0 * s.Combined / 100.0

	// Layer 2: velocity-momentum resonance, in [0.8, 1.2], applied
	// multiplicatively to the momentum factor before the weighted sum.
	resonance := 1.0 + 0.2*sign(momentum-50.0)*formulas.Clamp(s.Velocity/10.0, -1, 1)
	boostedMomentum := formulas.Clamp(momentum*resonance, 0, 100)

	// Layer 3: cross-source triangulation confidence, in [0.5, 1.0].
	triangulation := triangulationConfidence(s.NewsScore, s.SocialScore)

	// Layer 4: dispersion risk, in [0, 1).
	dispersion := dispersionRisk(s.NewsScore, s.SocialScore)

	// Layer 6: temporal persistence bonus, in [-10, +10].
	temporal := temporalBonus(s)

	// Layer 7: MA-sentiment confluence bonus.
	confluence := confluenceBonus(input.Price, input.MA200, s.Streak)

	// Sentiment as a pseudo-factor on the 0-100 scale.
	sentimentScore := formulas.Clamp((s.Combined+100.0)/2.0, 0, 100)

	// Weighted sum with the regime-tilted weights (Layer 5 is the tilt
	// itself, already folded into the weights).
	weighted := boostedMomentum*weights[factors.FactorMomentum] +
		domain.FactorOr(f.Value)*weights[factors.FactorValue] +
		domain.FactorOr(f.Quality)*weights[factors.FactorQuality] +
		domain.FactorOr(f.Dividend)*weights[factors.FactorDividend] +
		domain.FactorOr(f.Volatility)*weights[factors.FactorVolatility] +
		sentimentScore*weights[WeightSentiment]

	composite := weighted + convergence + temporal + confluence
	composite = 50.0 + (composite-50.0)*triangulation*(1.0-0.3*dispersion)
	composite = formulas.Clamp(composite, 0, 100)

	return domain.IntegratedScore{
		Factors:       f,
		Sentiment:     s.Combined,
		Convergence:   convergence,
		Resonance:     resonance,
		Triangulation: triangulation,
		Dispersion:    dispersion,
		Temporal:      temporal,
		Confluence:    confluence,
		WeightsUsed:   weights,
		Composite:     composite,
	}
}

// triangulationConfidence scores agreement between news and social
// sources. Same sign: 1 - 0.3*|n-s|/200. Opposite signs:
// max(0.5, 0.7 - 0.4*|n-s|/200). Exactly one source: 0.75.
func triangulationConfidence(news, social *float64) float64 {
	if news == nil || social == nil {
		return 0.75
	}

	gap := math.Abs(*news - *social)
	if (*news >= 0) == (*social >= 0) {
		return 1.0 - 0.3*gap/200.0
	}
	return math.Max(0.5, 0.7-0.4*gap/200.0)
}

// dispersionRisk = 1 - 1/(1 + (|n-s|/60)^1.5). Exactly one source: 0.3.
func dispersionRisk(news, social *float64) float64 {
	if news == nil || social == nil {
		return 0.3
	}

	gap := math.Abs(*news - *social)
	return 1.0 - 1.0/(1.0+math.Pow(gap/60.0, 1.5))
}

// temporalBonus combines streak, trend slope and breakout into a bonus
// clamped to [-10, +10].
func temporalBonus(s domain.SentimentInput) float64 {
	streakTerm := sign(float64(s.Streak)) *
		math.Log(1.0+math.Abs(float64(s.Streak))) * 2.0 *
		(0.4 + 0.9*s.Persistence)

	slopeTerm := formulas.Clamp(s.TrendSlope*0.5, -2, 2)

	breakoutTerm := 0.0
	if s.Breakout {
		breakoutTerm = 2.0 * sign(s.Combined)
	}

	return formulas.Clamp(streakTerm+slopeTerm+breakoutTerm, -10, 10)
}

// confluenceBonus rewards agreement between the price/MA200 trend and the
// sentiment streak, and penalizes disagreement.
func confluenceBonus(price, ma200 *float64, streak int) float64 {
	if price == nil || ma200 == nil || *ma200 == 0 {
		return 0
	}

	deviation := (*price - *ma200) / *ma200
	streakScale := math.Min(1.0, math.Abs(float64(streak))/10.0)
	devScale := math.Min(1.0, math.Abs(deviation)/0.10)

	aboveMA := deviation > 0
	switch {
	case aboveMA && streak > 0:
		return 12.0 * streakScale * devScale
	case !aboveMA && streak < 0:
		return -12.0 * streakScale * devScale
	case streak == 0:
		return 0
	default:
		return -3.0 * streakScale
	}
}

func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
