// Package macro computes the cross-agent macro risk overlay: five
// uncorrelated signals blended into a single position-size scale factor.
package macro

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/store"
	"github.com/aristath/helmsman/pkg/formulas"
)

// Indicator names consumed from the macro_indicators table
const (
	IndicatorHYOAS       = "hy_oas"
	IndicatorVIX         = "vix"
	IndicatorVIX3M       = "vix_3m"
	IndicatorYieldSpread = "yield_spread_10y2y"
)

// Signal names
const (
	SignalCreditSpread = "credit_spread"
	SignalVolatility   = "volatility"
	SignalYieldCurve   = "yield_curve"
	SignalSeasonality  = "seasonality"
	SignalInsider      = "insider"
)

// Long-run HY OAS anchor used for the z-score when no richer history is
// available (percent, roughly the post-2000 mean and spread).
const (
	hyOASMean  = 4.0
	hyOASStdev = 1.5
)

// VIX amplification thresholds
const (
	vixPanicLevel     = 35.0
	vixComplacency    = 12.0
	vixPanicFloor     = -80.0
	vixComplacencyCap = 60.0
)

// monthlyBias is the deterministic calendar bias, one entry per month.
var monthlyBias = [13]float64{0,
	10,  // January
	0,   // February
	5,   // March
	15,  // April
	-5,  // May
	-5,  // June
	10,  // July
	-10, // August
	-25, // September
	-5,  // October
	20,  // November
	15,  // December
}

// SignalBuilder derives the five overlay signals from stored rows.
type SignalBuilder struct {
	log zerolog.Logger
}

// NewSignalBuilder creates a new macro signal builder
func NewSignalBuilder(log zerolog.Logger) *SignalBuilder {
	return &SignalBuilder{
		log: log.With().Str("component", "macro_signals").Logger(),
	}
}

// Build assembles a macro snapshot from the indicator rows and insider
// aggregates. Missing rows mark the corresponding signal unavailable.
func (b *SignalBuilder) Build(indicators map[string]store.MacroIndicator, insiders []store.InsiderSignal, now time.Time) domain.MacroSnapshot {
	snapshot := domain.MacroSnapshot{AsOf: now}
	snapshot.CreditSpread = b.creditSpreadSignal(indicators)
	snapshot.Volatility = b.volatilitySignal(indicators)
	snapshot.YieldCurve = b.yieldCurveSignal(indicators)
	snapshot.Seasonality = b.seasonalitySignal(now)
	snapshot.Insider = b.insiderSignal(insiders)
	return snapshot
}

// creditSpreadSignal maps the HY OAS z-score and rate of change to
// [-100, +100]. Widening spreads are risk-off (negative).
func (b *SignalBuilder) creditSpreadSignal(indicators map[string]store.MacroIndicator) domain.MacroSignal {
	sig := domain.MacroSignal{Name: SignalCreditSpread}

	ind, ok := indicators[IndicatorHYOAS]
	if !ok || !formulas.IsFinite(ind.Value) || ind.Value <= 0 {
		return sig
	}

	z := (ind.Value - hyOASMean) / hyOASStdev

	roc := 0.0
	if ind.PreviousValue != nil && *ind.PreviousValue > 0 {
		roc = (ind.Value - *ind.PreviousValue) / *ind.PreviousValue
	}

	// 70% level, 30% momentum of the spread.
	value := -(0.7*z*50.0 + 0.3*roc*500.0)
	sig.Value = formulas.Clamp(value, -100, 100)
	sig.Available = true
	return sig
}

// volatilitySignal maps the VIX level and term structure to [-100, +100],
// amplified at panic (> 35) and complacency (< 12) extremes.
func (b *SignalBuilder) volatilitySignal(indicators map[string]store.MacroIndicator) domain.MacroSignal {
	sig := domain.MacroSignal{Name: SignalVolatility}

	vix, ok := indicators[IndicatorVIX]
	if !ok || !formulas.IsFinite(vix.Value) || vix.Value <= 0 {
		return sig
	}

	// Level: 18 is treated as the neutral pivot.
	value := (18.0 - vix.Value) * 5.0

	// Term structure: contango (3M above spot) is benign, backwardation
	// is stress.
	if vix3m, ok := indicators[IndicatorVIX3M]; ok && vix3m.Value > 0 {
		ratio := vix3m.Value/vix.Value - 1.0
		value += formulas.Clamp(ratio*100.0, -20, 20)
	}

	value = formulas.Clamp(value, -100, 100)

	if vix.Value > vixPanicLevel && value > vixPanicFloor {
		value = vixPanicFloor
	}
	if vix.Value < vixComplacency && value < vixComplacencyCap {
		value = vixComplacencyCap
	}

	sig.Value = value
	sig.Available = true
	return sig
}

// yieldCurveSignal maps the 10Y-2Y slope and its rate of change to
// [-100, +100]. Inversion is risk-off.
func (b *SignalBuilder) yieldCurveSignal(indicators map[string]store.MacroIndicator) domain.MacroSignal {
	sig := domain.MacroSignal{Name: SignalYieldCurve}

	ind, ok := indicators[IndicatorYieldSpread]
	if !ok || !formulas.IsFinite(ind.Value) {
		return sig
	}

	roc := 0.0
	if ind.PreviousValue != nil {
		roc = ind.Value - *ind.PreviousValue
	}

	value := ind.Value*60.0 + roc*400.0
	sig.Value = formulas.Clamp(value, -100, 100)
	sig.Available = true
	return sig
}

// seasonalitySignal is fully deterministic from the calendar: a monthly
// bias plus end-of-month and end-of-quarter boosts.
func (b *SignalBuilder) seasonalitySignal(now time.Time) domain.MacroSignal {
	month := now.Month()
	value := monthlyBias[int(month)]

	// End-of-month boost: last four calendar days.
	daysInMonth := time.Date(now.Year(), month+1, 0, 0, 0, 0, 0, now.Location()).Day()
	if daysInMonth-now.Day() < 4 {
		value += 10
		if month == time.March || month == time.June ||
			month == time.September || month == time.December {
			value += 5
		}
	}

	return domain.MacroSignal{
		Name:      SignalSeasonality,
		Value:     formulas.Clamp(value, -100, 100),
		Available: true,
	}
}

// WarnInsiderDegenerate is the warning attached when the insider feed is
// unusable because transaction codes are not parsed yet.
const WarnInsiderDegenerate = "insider signal degenerate (awaiting XML parsing)"

// insiderSignal is the cross-sectional mean of per-stock net sentiment.
// The known-degenerate feed (every row buy_ratio 1.0, net sentiment +100,
// because Form-4 transaction codes are not parsed) is surfaced as
// unavailable rather than treated as uniformly bullish.
func (b *SignalBuilder) insiderSignal(insiders []store.InsiderSignal) domain.MacroSignal {
	sig := domain.MacroSignal{Name: SignalInsider}
	if len(insiders) == 0 {
		return sig
	}

	degenerate := true
	sum := 0.0
	for _, row := range insiders {
		sum += row.NetSentiment
		if row.BuyRatio != 1.0 || row.NetSentiment != 100.0 {
			degenerate = false
		}
	}

	if degenerate {
		b.log.Warn().
			Int("tickers", len(insiders)).
			Msg(WarnInsiderDegenerate)
		return sig
	}

	sig.Value = formulas.Clamp(sum/float64(len(insiders)), -100, 100)
	sig.Available = true
	return sig
}
