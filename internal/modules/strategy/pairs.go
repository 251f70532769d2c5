package strategy

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

const (
	pairWindow         = 60
	pairMinCorrelation = 0.70
	pairEntryZ         = 2.0
)

// pairCandidate is one tradable spread between two correlated names.
// The legs are already oriented: long the cheap one, short the rich one.
type pairCandidate struct {
	long  string
	short string
	z     float64
}

// spreadPairs scans every ticker pair for a correlated, stretched
// spread. Correlation runs on aligned daily returns over pairWindow
// days; the spread is the log price ratio, and its z-score against the
// same window decides entry. Candidates come back most stretched first.
func spreadPairs(universe map[string]domain.Stock) []pairCandidate {
	tickers := make([]string, 0, len(universe))
	for ticker, stock := range universe {
		if len(stock.PriceHistory) > pairWindow {
			tickers = append(tickers, ticker)
		}
	}
	sort.Strings(tickers)

	var out []pairCandidate
	for i := 0; i < len(tickers); i++ {
		for j := i + 1; j < len(tickers); j++ {
			a, b := universe[tickers[i]], universe[tickers[j]]
			corr, ok := pairCorrelation(a.PriceHistory, b.PriceHistory)
			if !ok || corr < pairMinCorrelation {
				continue
			}
			z, ok := spreadZ(a.PriceHistory, b.PriceHistory)
			if !ok || math.Abs(z) < pairEntryZ {
				continue
			}
			cand := pairCandidate{long: tickers[i], short: tickers[j], z: z}
			if z > 0 {
				// First leg rich against the second: short it instead.
				cand.long, cand.short = tickers[j], tickers[i]
			}
			out = append(out, cand)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		zi, zj := math.Abs(out[i].z), math.Abs(out[j].z)
		if zi != zj {
			return zi > zj
		}
		if out[i].long != out[j].long {
			return out[i].long < out[j].long
		}
		return out[i].short < out[j].short
	})
	return out
}

func pairCorrelation(a, b []float64) (float64, bool) {
	ra := lastReturns(a, pairWindow)
	rb := lastReturns(b, pairWindow)
	if ra == nil || rb == nil {
		return 0, false
	}
	corr := stat.Correlation(ra, rb, nil)
	if !formulas.IsFinite(corr) {
		return 0, false
	}
	return corr, true
}

func lastReturns(closes []float64, n int) []float64 {
	if len(closes) <= n {
		return nil
	}
	return formulas.CalculateReturns(closes[len(closes)-n-1:])
}

// spreadZ standardizes today's log price ratio against its own trailing
// window. Positive means the first leg is rich relative to the second.
func spreadZ(a, b []float64) (float64, bool) {
	n := pairWindow + 1
	if len(a) < n || len(b) < n {
		return 0, false
	}

	spread := make([]float64, n)
	for k := 0; k < n; k++ {
		pa, pb := a[len(a)-n+k], b[len(b)-n+k]
		if pa <= 0 || pb <= 0 {
			return 0, false
		}
		spread[k] = math.Log(pa / pb)
	}

	sd := formulas.PopStdDev(spread)
	if sd == 0 {
		return 0, false
	}
	return (spread[n-1] - formulas.Mean(spread)) / sd, true
}
