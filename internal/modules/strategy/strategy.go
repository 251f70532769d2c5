package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/pkg/formulas"
)

// Inputs is the read-only data bundle a strategy consumes for one agent.
type Inputs struct {
	Stocks    map[string]domain.Stock
	Sentiment map[string]domain.SentimentInput
	Factors   map[string]domain.FactorScores
	Params    domain.StrategyParams
	Risk      domain.RiskParams
}

// Strategy turns the data bundle into a target portfolio. Implementations
// are stateless and safe for concurrent use across agents.
type Strategy interface {
	Name() string
	Targets(in Inputs) ([]domain.TargetPosition, error)
}

const defaultMaxPositions = 10

// targetOptions tunes how ranked scores become target positions.
type targetOptions struct {
	minScore       float64
	maxHoldingDays *int
	rationale      string
}

// filterUniverse applies the agent's exclusions, sector allowlist and
// market-cap floor to the universe.
func filterUniverse(in Inputs) map[string]domain.Stock {
	excluded := make(map[string]bool, len(in.Params.ExcludeTickers))
	for _, t := range in.Params.ExcludeTickers {
		excluded[t] = true
	}
	sectors := make(map[string]bool, len(in.Params.Sectors))
	for _, s := range in.Params.Sectors {
		sectors[s] = true
	}

	out := make(map[string]domain.Stock, len(in.Stocks))
	for ticker, stock := range in.Stocks {
		if stock.Price <= 0 || excluded[ticker] {
			continue
		}
		if len(sectors) > 0 && !sectors[stock.Sector] {
			continue
		}
		if in.Params.MinMarketCap > 0 {
			if stock.Fundamentals.MarketCap == nil || *stock.Fundamentals.MarketCap < in.Params.MinMarketCap {
				continue
			}
		}
		out[ticker] = stock
	}
	return out
}

// buildTargets turns a score map into an equal-weighted long target
// portfolio: scores above minScore ranked descending, top max_positions
// taken, each at weight 1/N capped by max_position_size_pct. Ordering is
// deterministic: score descending, ticker ascending on ties.
func buildTargets(in Inputs, universe map[string]domain.Stock, scores map[string]float64, opts targetOptions) []domain.TargetPosition {
	type ranked struct {
		ticker string
		score  float64
	}

	candidates := make([]ranked, 0, len(scores))
	for ticker, score := range scores {
		if _, ok := universe[ticker]; !ok {
			continue
		}
		if score <= opts.minScore {
			continue
		}
		candidates = append(candidates, ranked{ticker, score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ticker < candidates[j].ticker
	})

	maxPositions := in.Params.MaxPositions
	if maxPositions <= 0 {
		maxPositions = defaultMaxPositions
	}
	if len(candidates) > maxPositions {
		candidates = candidates[:maxPositions]
	}
	if len(candidates) == 0 {
		return nil
	}

	weight := 1.0 / float64(len(candidates))
	if in.Risk.MaxPositionSizePct > 0 && weight > in.Risk.MaxPositionSizePct {
		weight = in.Risk.MaxPositionSizePct
	}

	maxHoldingDays := opts.maxHoldingDays
	if in.Params.MaxHoldingDays != nil {
		maxHoldingDays = in.Params.MaxHoldingDays
	}
	if in.Risk.MaxHoldingDays != nil {
		maxHoldingDays = in.Risk.MaxHoldingDays
	}

	targets := make([]domain.TargetPosition, 0, len(candidates))
	for _, c := range candidates {
		stock := universe[c.ticker]
		target := domain.TargetPosition{
			Ticker:         c.ticker,
			Side:           domain.SideLong,
			Weight:         weight,
			SignalStrength: formulas.Clamp(c.score, -100, 100),
			EntryPrice:     stock.Price,
			MaxHoldingDays: maxHoldingDays,
			Rationale:      fmt.Sprintf("%s: signal %.1f", opts.rationale, c.score),
		}
		applyExitLevels(&target, in.Risk)
		targets = append(targets, target)
	}
	return targets
}

// volScaledTargets builds a long/short portfolio from signed scores:
// positive scores go long, negative go short, and each name's weight is
// proportional to inverse trailing volatility, normalized so gross
// exposure sums to 1. Selection order is score magnitude descending,
// ticker ascending on ties.
func volScaledTargets(in Inputs, universe map[string]domain.Stock, scores map[string]float64, rationaleLong, rationaleShort string) []domain.TargetPosition {
	type ranked struct {
		ticker string
		score  float64
		vol    float64
	}

	candidates := make([]ranked, 0, len(scores))
	for ticker, score := range scores {
		stock, ok := universe[ticker]
		if !ok || score == 0 {
			continue
		}
		vol := trailingVolatility(stock)
		if vol <= 0 {
			continue
		}
		candidates = append(candidates, ranked{ticker, score, vol})
	}

	sort.Slice(candidates, func(i, j int) bool {
		ai, aj := math.Abs(candidates[i].score), math.Abs(candidates[j].score)
		if ai != aj {
			return ai > aj
		}
		return candidates[i].ticker < candidates[j].ticker
	})

	maxPositions := in.Params.MaxPositions
	if maxPositions <= 0 {
		maxPositions = defaultMaxPositions
	}
	if len(candidates) > maxPositions {
		candidates = candidates[:maxPositions]
	}
	if len(candidates) == 0 {
		return nil
	}

	gross := 0.0
	for _, c := range candidates {
		gross += 1.0 / c.vol
	}

	var maxHoldingDays *int
	if in.Params.MaxHoldingDays != nil {
		maxHoldingDays = in.Params.MaxHoldingDays
	}
	if in.Risk.MaxHoldingDays != nil {
		maxHoldingDays = in.Risk.MaxHoldingDays
	}

	targets := make([]domain.TargetPosition, 0, len(candidates))
	for _, c := range candidates {
		stock := universe[c.ticker]
		weight := (1.0 / c.vol) / gross
		if in.Risk.MaxPositionSizePct > 0 && weight > in.Risk.MaxPositionSizePct {
			weight = in.Risk.MaxPositionSizePct
		}

		side := domain.SideLong
		rationale := rationaleLong
		if c.score < 0 {
			side = domain.SideShort
			rationale = rationaleShort
		}

		target := domain.TargetPosition{
			Ticker:         c.ticker,
			Side:           side,
			Weight:         weight,
			SignalStrength: formulas.Clamp(math.Abs(c.score), 0, 100),
			EntryPrice:     stock.Price,
			MaxHoldingDays: maxHoldingDays,
			Rationale:      fmt.Sprintf("%s: signal %.1f", rationale, c.score),
		}
		applyExitLevels(&target, in.Risk)
		targets = append(targets, target)
	}
	return targets
}

// trailingVolatility is the annualized volatility of the last
// realizedVolWindow daily returns, zero when history is too short.
func trailingVolatility(stock domain.Stock) float64 {
	closes := stock.PriceHistory
	if len(closes) <= realizedVolWindow {
		return 0
	}
	vol := formulas.AnnualizedVolatility(formulas.CalculateReturns(closes[len(closes)-realizedVolWindow-1:]))
	if !formulas.IsFinite(vol) {
		return 0
	}
	return vol
}

// applyExitLevels derives stop-loss and take-profit prices from the risk
// params. The take-profit distance is the stop distance times the
// configured minimum risk/reward.
func applyExitLevels(target *domain.TargetPosition, risk domain.RiskParams) {
	if risk.StopLossPct == nil || *risk.StopLossPct <= 0 || target.EntryPrice <= 0 {
		return
	}

	stopDistance := target.EntryPrice * *risk.StopLossPct
	var stop, take float64
	if target.Side == domain.SideShort {
		stop = target.EntryPrice + stopDistance
	} else {
		stop = target.EntryPrice - stopDistance
	}
	target.StopLoss = &stop

	rr := risk.MinRiskReward
	if rr <= 0 {
		return
	}
	if target.Side == domain.SideShort {
		take = target.EntryPrice - stopDistance*rr
	} else {
		take = target.EntryPrice + stopDistance*rr
	}
	if take > 0 {
		target.TakeProfit = &take
	}
}

func intPtr(v int) *int { return &v }
