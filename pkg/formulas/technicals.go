package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateSMA calculates the simple moving average over the trailing
// `length` closes. Returns nil if there is insufficient data.
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) < length || length <= 0 {
		return nil
	}

	sma := talib.Sma(closes, length)
	last := sma[len(sma)-1]
	if !IsFinite(last) {
		return nil
	}
	return &last
}

// CalculateATR calculates the Average True Range from high/low/close series.
// Returns nil if there is insufficient data for the period.
func CalculateATR(highs, lows, closes []float64, period int) *float64 {
	if period <= 0 || len(closes) <= period ||
		len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}

	atr := talib.Atr(highs, lows, closes, period)
	last := atr[len(atr)-1]
	if !IsFinite(last) || last <= 0 {
		return nil
	}
	return &last
}

// PeriodReturn calculates the total return over the trailing `days` closes.
// Returns nil when the series is too short or the base price is zero.
func PeriodReturn(closes []float64, days int) *float64 {
	if days <= 0 || len(closes) <= days {
		return nil
	}

	base := closes[len(closes)-1-days]
	if base == 0 {
		return nil
	}
	r := (closes[len(closes)-1] - base) / base
	if !IsFinite(r) {
		return nil
	}
	return &r
}

// SkipMonthReturn calculates the 12-month return skipping the most recent
// month (classic momentum construction: t-252 → t-21).
func SkipMonthReturn(closes []float64, lookback, skip int) *float64 {
	if lookback <= skip || len(closes) <= lookback {
		return nil
	}

	base := closes[len(closes)-1-lookback]
	end := closes[len(closes)-1-skip]
	if base == 0 {
		return nil
	}
	r := (end - base) / base
	if !IsFinite(r) {
		return nil
	}
	return &r
}
