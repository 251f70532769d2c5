// Package strategy hosts the per-agent strategy framework: raw signal
// generators, the sentiment combiner, the concrete strategies and the
// preset registry the engine resolves agents against.
package strategy

import (
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// Signal generators emit per-ticker scores in [-100, +100]. Positive is
// bullish. Tickers without enough data are omitted, not zeroed.

const (
	tsMomentumLookback  = 126
	reversalLookback    = 5
	meanReversionWindow = 20
	realizedVolWindow   = 20
)

// TimeSeriesMomentum scores each stock on its own trailing return,
// independent of the cross-section.
func TimeSeriesMomentum(stocks map[string]domain.Stock, lookbackDays int) map[string]float64 {
	if lookbackDays <= 0 {
		lookbackDays = tsMomentumLookback
	}

	out := make(map[string]float64)
	for ticker, stock := range stocks {
		ret := formulas.PeriodReturn(stock.PriceHistory, lookbackDays)
		if ret == nil {
			continue
		}
		out[ticker] = formulas.Clamp(*ret*200.0, -100, 100)
	}
	return out
}

// CrossSectionalMomentum scores each stock's trailing return relative to
// the universe, as a z-score mapped onto [-100, +100].
func CrossSectionalMomentum(stocks map[string]domain.Stock, lookbackDays int) map[string]float64 {
	if lookbackDays <= 0 {
		lookbackDays = tsMomentumLookback
	}

	returns := make(map[string]float64)
	for ticker, stock := range stocks {
		if ret := formulas.PeriodReturn(stock.PriceHistory, lookbackDays); ret != nil {
			returns[ticker] = *ret
		}
	}
	return zScores(returns)
}

// FactorSignal rescales a 0-100 factor percentile onto [-100, +100].
func FactorSignal(factors map[string]domain.FactorScores, pick func(domain.FactorScores) *float64) map[string]float64 {
	out := make(map[string]float64)
	for ticker, f := range factors {
		if v := pick(f); v != nil {
			out[ticker] = (*v - 50.0) * 2.0
		}
	}
	return out
}

// NewsSentiment returns the raw news score per ticker.
func NewsSentiment(sentiment map[string]domain.SentimentInput) map[string]float64 {
	out := make(map[string]float64)
	for ticker, s := range sentiment {
		if s.NewsScore != nil {
			out[ticker] = formulas.Clamp(*s.NewsScore, -100, 100)
		}
	}
	return out
}

// SocialSentiment returns the raw social score per ticker.
func SocialSentiment(sentiment map[string]domain.SentimentInput) map[string]float64 {
	out := make(map[string]float64)
	for ticker, s := range sentiment {
		if s.SocialScore != nil {
			out[ticker] = formulas.Clamp(*s.SocialScore, -100, 100)
		}
	}
	return out
}

// SentimentVelocity scores the day-over-day change in combined sentiment.
func SentimentVelocity(sentiment map[string]domain.SentimentInput) map[string]float64 {
	out := make(map[string]float64)
	for ticker, s := range sentiment {
		out[ticker] = formulas.Clamp(s.Velocity*10.0, -100, 100)
	}
	return out
}

// RealizedVolatility scores stocks by inverted volatility z-score: calm
// names positive, turbulent names negative.
func RealizedVolatility(stocks map[string]domain.Stock) map[string]float64 {
	vols := make(map[string]float64)
	for ticker, stock := range stocks {
		closes := stock.PriceHistory
		if len(closes) <= realizedVolWindow {
			continue
		}
		returns := formulas.CalculateReturns(closes[len(closes)-realizedVolWindow-1:])
		vol := formulas.AnnualizedVolatility(returns)
		if vol > 0 && formulas.IsFinite(vol) {
			vols[ticker] = vol
		}
	}

	scores := zScores(vols)
	for ticker, z := range scores {
		scores[ticker] = -z
	}
	return scores
}

// ShortTermReversal scores the inverted trailing short-window return:
// recent losers positive, recent winners negative.
func ShortTermReversal(stocks map[string]domain.Stock) map[string]float64 {
	returns := make(map[string]float64)
	for ticker, stock := range stocks {
		if ret := formulas.PeriodReturn(stock.PriceHistory, reversalLookback); ret != nil {
			returns[ticker] = *ret
		}
	}

	scores := zScores(returns)
	for ticker, z := range scores {
		scores[ticker] = -z
	}
	return scores
}

// MeanReversionGap scores each stock's deviation from its own 20-day mean,
// inverted: stretched-below names positive, stretched-above negative.
func MeanReversionGap(stocks map[string]domain.Stock) map[string]float64 {
	gaps := make(map[string]float64)
	for ticker, stock := range stocks {
		closes := stock.PriceHistory
		if len(closes) < meanReversionWindow || stock.Price <= 0 {
			continue
		}
		mean := formulas.Mean(closes[len(closes)-meanReversionWindow:])
		if mean <= 0 {
			continue
		}
		gaps[ticker] = (stock.Price - mean) / mean
	}

	scores := zScores(gaps)
	for ticker, z := range scores {
		scores[ticker] = -z
	}
	return scores
}

// zScores standardizes the values across the map and maps z onto
// [-100, +100] at 40 points per standard deviation. A degenerate
// cross-section (fewer than two values, or zero spread) scores 0.
func zScores(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	if len(values) < 2 {
		for ticker := range values {
			out[ticker] = 0
		}
		return out
	}

	flat := make([]float64, 0, len(values))
	for _, v := range values {
		flat = append(flat, v)
	}
	mean := formulas.Mean(flat)
	sd := formulas.PopStdDev(flat)
	if sd == 0 {
		for ticker := range values {
			out[ticker] = 0
		}
		return out
	}

	for ticker, v := range values {
		out[ticker] = formulas.Clamp((v-mean)/sd*40.0, -100, 100)
	}
	return out
}
