package macro

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/helmsman/internal/domain"
)

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func signal(name string, value float64) domain.MacroSignal {
	return domain.MacroSignal{Name: name, Value: value, Available: true}
}

func TestCompute_CapAndRedistribute(t *testing.T) {
	// Only seasonality (80) and credit spread (-40) available. Base
	// weights 0.10 and 0.30 renormalize to 0.25/0.75; credit is capped
	// at 0.50 and the excess flows to seasonality, landing at 0.50/0.50.
	snapshot := domain.MacroSnapshot{
		Seasonality:  signal(SignalSeasonality, 80),
		CreditSpread: signal(SignalCreditSpread, -40),
	}

	overlay := NewOverlay(DefaultConfig(), testLog())
	result := overlay.Compute(snapshot, time.Now())

	assert.InDelta(t, 20.0, result.Composite, 1e-9)
	assert.InDelta(t, 1.05, result.ScaleFactor, 1e-9)
	assert.Equal(t, RegimeNormal, result.Regime)
	assert.InDelta(t, 40.0, result.Contributions[SignalSeasonality], 1e-9)
	assert.InDelta(t, -20.0, result.Contributions[SignalCreditSpread], 1e-9)
}

func TestCompute_InsufficientSignals(t *testing.T) {
	snapshot := domain.MacroSnapshot{
		Seasonality: signal(SignalSeasonality, 80),
	}

	overlay := NewOverlay(DefaultConfig(), testLog())
	result := overlay.Compute(snapshot, time.Now())

	assert.Equal(t, 1.0, result.ScaleFactor)
	assert.Equal(t, RegimeInsufficient, result.Regime)
	assert.NotEmpty(t, result.Warnings)
}

func TestCompute_SingleSignalAllowedWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSignals = 1

	snapshot := domain.MacroSnapshot{
		Volatility: signal(SignalVolatility, -100),
	}

	overlay := NewOverlay(cfg, testLog())
	result := overlay.Compute(snapshot, time.Now())

	// The 0.50 weight cap binds even for a lone signal: the composite
	// never exceeds half the signal's magnitude.
	assert.InDelta(t, -50.0, result.Composite, 1e-9)
	assert.InDelta(t, 0.625, result.ScaleFactor, 1e-9)
	assert.Equal(t, RegimeHighRisk, result.Regime)
}

func TestCappedWeights_SingleSignalCapped(t *testing.T) {
	weights := cappedWeights([]domain.MacroSignal{signal(SignalVolatility, -80)})

	assert.Len(t, weights, 1)
	assert.InDelta(t, weightCap, weights[SignalVolatility], 1e-9)
}

func TestCompute_ScaleMapIsAsymmetric(t *testing.T) {
	overlay := NewOverlay(DefaultConfig(), testLog())

	assert.InDelta(t, 1.0, overlay.scaleFor(0), 1e-9)
	assert.InDelta(t, 0.25, overlay.scaleFor(-100), 1e-9)
	assert.InDelta(t, 1.25, overlay.scaleFor(100), 1e-9)
	// -50 compresses much harder than +50 expands.
	assert.InDelta(t, 0.625, overlay.scaleFor(-50), 1e-9)
	assert.InDelta(t, 1.125, overlay.scaleFor(50), 1e-9)
}

func TestCompute_DisabledIsNeutral(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	snapshot := domain.MacroSnapshot{
		Seasonality:  signal(SignalSeasonality, 80),
		CreditSpread: signal(SignalCreditSpread, -40),
	}

	overlay := NewOverlay(cfg, testLog())
	result := overlay.Compute(snapshot, time.Now())

	assert.Equal(t, 1.0, result.ScaleFactor)
	assert.Equal(t, RegimeNormal, result.Regime)
}

func TestRegimeFor(t *testing.T) {
	assert.Equal(t, RegimeHighRisk, regimeFor(-41))
	assert.Equal(t, RegimeElevatedRisk, regimeFor(-20))
	assert.Equal(t, RegimeNormal, regimeFor(0))
	assert.Equal(t, RegimeLowRisk, regimeFor(31))
}

func TestSignalWarnings(t *testing.T) {
	snapshot := domain.MacroSnapshot{
		CreditSpread: signal(SignalCreditSpread, -60),
		Volatility:   signal(SignalVolatility, -70),
		YieldCurve:   signal(SignalYieldCurve, -40),
	}

	warnings := signalWarnings(snapshot, -65)
	assert.Len(t, warnings, 4)
}

func TestCappedWeights_FullSetRenormalizes(t *testing.T) {
	available := []domain.MacroSignal{
		signal(SignalCreditSpread, 0),
		signal(SignalVolatility, 0),
		signal(SignalYieldCurve, 0),
		signal(SignalSeasonality, 0),
		signal(SignalInsider, 0),
	}

	weights := cappedWeights(available)

	sum := 0.0
	for _, w := range weights {
		assert.LessOrEqual(t, w, weightCap+1e-9)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.30, weights[SignalCreditSpread], 1e-9)
}
