package macro

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// Regime labels derived from the composite
const (
	RegimeHighRisk       = "high_risk"
	RegimeElevatedRisk   = "elevated_risk"
	RegimeNormal         = "normal"
	RegimeLowRisk        = "low_risk"
	RegimeInsufficient   = "insufficient_data"
	RegimeCircuitBreaker = "circuit_breaker"
)

// weightCap bounds any single signal's share of the composite; excess is
// redistributed across the remaining signals.
const (
	weightCap          = 0.50
	redistributeRounds = 5
	defaultMinSignals  = 2
	defaultMinScale    = 0.25
	defaultMaxScale    = 1.25
	compositeHighRisk  = -40.0
	compositeElevated  = -15.0
	compositeLowRisk   = 30.0
)

// baseWeights is the a-priori importance of each signal before
// renormalization over the available set.
var baseWeights = map[string]float64{
	SignalCreditSpread: 0.30,
	SignalVolatility:   0.30,
	SignalYieldCurve:   0.20,
	SignalSeasonality:  0.10,
	SignalInsider:      0.10,
}

// Config tunes the overlay. Zero values fall back to defaults.
type Config struct {
	Enabled    bool
	MinSignals int
	MinScale   float64
	MaxScale   float64
}

// DefaultConfig returns the stock overlay tuning
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		MinSignals: defaultMinSignals,
		MinScale:   defaultMinScale,
		MaxScale:   defaultMaxScale,
	}
}

func (c Config) normalized() Config {
	if c.MinSignals <= 0 {
		c.MinSignals = defaultMinSignals
	}
	if c.MinScale <= 0 || c.MinScale >= 1 {
		c.MinScale = defaultMinScale
	}
	if c.MaxScale < 1 {
		c.MaxScale = defaultMaxScale
	}
	return c
}

// Overlay blends the macro snapshot into a single scale factor applied to
// every agent's target weights.
type Overlay struct {
	cfg Config
	log zerolog.Logger
}

// NewOverlay creates a new macro risk overlay
func NewOverlay(cfg Config, log zerolog.Logger) *Overlay {
	return &Overlay{
		cfg: cfg.normalized(),
		log: log.With().Str("component", "macro_overlay").Logger(),
	}
}

// Compute derives the composite and scale factor from a snapshot. A
// disabled overlay or too few available signals yields scale 1.0.
func (o *Overlay) Compute(snapshot domain.MacroSnapshot, now time.Time) domain.OverlayResult {
	result := domain.OverlayResult{
		ComputedAt:    now,
		ScaleFactor:   1.0,
		Regime:        RegimeNormal,
		Contributions: map[string]float64{},
	}

	if !o.cfg.Enabled {
		return result
	}

	available := []domain.MacroSignal{}
	for _, sig := range snapshot.Signals() {
		if sig.Available && formulas.IsFinite(sig.Value) {
			available = append(available, sig)
		}
	}

	if len(available) < o.cfg.MinSignals {
		result.Regime = RegimeInsufficient
		result.Warnings = append(result.Warnings, "insufficient macro signals, overlay neutral")
		o.log.Warn().
			Int("available", len(available)).
			Int("required", o.cfg.MinSignals).
			Msg("Macro overlay has too few signals")
		return result
	}

	weights := cappedWeights(available)

	composite := 0.0
	for _, sig := range available {
		contribution := sig.Value * weights[sig.Name]
		result.Contributions[sig.Name] = contribution
		composite += contribution
	}

	if !formulas.IsFinite(composite) {
		result.Warnings = append(result.Warnings, "non-finite composite, overlay neutral")
		o.log.Error().Msg("Macro composite is non-finite")
		return result
	}

	result.Composite = formulas.Clamp(composite, -100, 100)
	result.ScaleFactor = o.scaleFor(result.Composite)
	result.Regime = regimeFor(result.Composite)
	result.Warnings = append(result.Warnings, signalWarnings(snapshot, result.Composite)...)

	o.log.Info().
		Float64("composite", result.Composite).
		Float64("scale_factor", result.ScaleFactor).
		Str("regime", result.Regime).
		Int("signals", len(available)).
		Msg("Macro overlay computed")

	return result
}

// cappedWeights renormalizes the base weights over the available signals
// and iteratively caps any share above weightCap, redistributing the
// excess pro-rata across the uncapped signals.
func cappedWeights(available []domain.MacroSignal) map[string]float64 {
	weights := make(map[string]float64, len(available))
	sum := 0.0
	for _, sig := range available {
		weights[sig.Name] = baseWeights[sig.Name]
		sum += baseWeights[sig.Name]
	}
	if sum <= 0 {
		equal := 1.0 / float64(len(available))
		for name := range weights {
			weights[name] = equal
		}
		return weights
	}
	for name := range weights {
		weights[name] /= sum
	}

	for round := 0; round < redistributeRounds; round++ {
		excess := 0.0
		uncapped := 0.0
		for name, w := range weights {
			if w > weightCap {
				excess += w - weightCap
				weights[name] = weightCap
			} else {
				uncapped += w
			}
		}
		if excess == 0 || uncapped == 0 {
			break
		}
		for name, w := range weights {
			if w < weightCap {
				weights[name] = w + excess*w/uncapped
			}
		}
	}

	return weights
}

// scaleFor maps the composite onto the asymmetric scale range: negative
// composites compress toward MinScale, positive ones expand toward
// MaxScale, composite 0 is exactly 1.0.
func (o *Overlay) scaleFor(composite float64) float64 {
	if composite <= 0 {
		return 1.0 + composite/100.0*(1.0-o.cfg.MinScale)
	}
	return 1.0 + composite/100.0*(o.cfg.MaxScale-1.0)
}

func regimeFor(composite float64) string {
	switch {
	case composite < compositeHighRisk:
		return RegimeHighRisk
	case composite < compositeElevated:
		return RegimeElevatedRisk
	case composite > compositeLowRisk:
		return RegimeLowRisk
	default:
		return RegimeNormal
	}
}

// signalWarnings flags stressed individual signals and composite extremes.
func signalWarnings(snapshot domain.MacroSnapshot, composite float64) []string {
	var warnings []string

	if snapshot.CreditSpread.Available && snapshot.CreditSpread.Value < -50 {
		warnings = append(warnings, "credit spreads widening sharply")
	}
	if snapshot.Volatility.Available && snapshot.Volatility.Value < -50 {
		warnings = append(warnings, "volatility stress elevated")
	}
	if snapshot.YieldCurve.Available && snapshot.YieldCurve.Value < -30 {
		warnings = append(warnings, "yield curve inverted or flattening fast")
	}

	switch {
	case composite < -60:
		warnings = append(warnings, "macro backdrop severely risk-off")
	case composite < -30:
		warnings = append(warnings, "macro backdrop risk-off")
	case composite > 40:
		warnings = append(warnings, "macro backdrop strongly supportive")
	}

	return warnings
}
