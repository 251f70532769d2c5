// Package engine runs one agent through the decision pipeline: circuit
// breaker, rebalance gate, data assembly, strategy, sizing, overlay, diff
// and exit overrides. The engine decides; it never touches the broker.
package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/modules/sentiment"
	"github.com/aristath/helmsman/internal/modules/strategy"
)

// PositionReader lists an agent's open positions
type PositionReader interface {
	ListOpenByAgent(agentID int64) ([]domain.Position, error)
}

// ActivityReader reads an agent's audit trail
type ActivityReader interface {
	LatestByType(agentID int64, activityType domain.ActivityType) (*domain.Activity, error)
}

// Data is the shared market bundle the pipeline assembles once per run
// and hands to every agent.
type Data struct {
	Stocks    map[string]domain.Stock
	Sentiment map[string]domain.SentimentInput
	Factors   map[string]domain.FactorScores
}

// Engine executes the per-agent decision sequence
type Engine struct {
	registry   *strategy.Registry
	integrator *sentiment.Integrator
	positions  PositionReader
	activities ActivityReader
	log        zerolog.Logger
}

// New creates a new strategy engine
func New(registry *strategy.Registry, integrator *sentiment.Integrator, positions PositionReader, activities ActivityReader, log zerolog.Logger) *Engine {
	return &Engine{
		registry:   registry,
		integrator: integrator,
		positions:  positions,
		activities: activities,
		log:        log.With().Str("component", "strategy_engine").Logger(),
	}
}

// Run produces the agent's execution result for this cycle. Errors that
// make a decision impossible are recorded on the result, never panicked.
func (e *Engine) Run(agent domain.Agent, data Data, overlay *domain.OverlayResult, now time.Time) domain.ExecutionResult {
	result := domain.ExecutionResult{
		AgentID:      agent.ID,
		StrategyName: agent.StrategyType,
		Overlay:      overlay,
	}
	log := e.log.With().Int64("agent_id", agent.ID).Str("strategy", agent.StrategyType).Logger()

	positions, err := e.positions.ListOpenByAgent(agent.ID)
	if err != nil {
		result.Error = fmt.Sprintf("failed to load positions: %v", err)
		return result
	}

	// Circuit breaker runs before everything else, including the
	// rebalance gate: a breached drawdown liquidates regardless of
	// frequency.
	if actions, tripped := e.circuitBreaker(agent, positions); tripped {
		result.Actions = actions
		result.Regime = RegimeCircuitBreaker
		log.Warn().Int("liquidations", len(actions)).Msg("Circuit breaker tripped")
		return result
	}

	if msg := e.rebalanceGate(agent, now); msg != "" {
		result.Skipped = true
		result.Error = msg
		log.Debug().Msg(msg)
		return result
	}

	preset, err := e.registry.Resolve(agent.StrategyType)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.StrategyName = preset.Name

	stocks, scores, regime := e.assembleData(agent, preset, data)
	result.Scores = scores
	result.Regime = regime

	strat, err := e.registry.Build(preset, len(scores) > 0)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	targets, err := strat.Targets(strategy.Inputs{
		Stocks:    stocks,
		Sentiment: data.Sentiment,
		Factors:   data.Factors,
		Params:    agent.StrategyParams,
		Risk:      agent.RiskParams,
	})
	if err != nil {
		result.Error = fmt.Sprintf("strategy failed: %v", err)
		return result
	}

	targets = sizeNewPositions(targets, positions, agent)
	targets = applyOverlay(targets, overlay)
	result.Targets = targets

	actions := diffTargets(targets, positions, agent.AllocatedCapital)
	actions = applyExitOverrides(actions, positions, stocks, agent.AllocatedCapital, now)
	actions = enrichTheses(actions, targets, preset.Name, scores, regime)
	result.Actions = actions

	log.Info().
		Int("targets", len(targets)).
		Int("actions", len(actions)).
		Str("regime", regime).
		Msg("Agent decision cycle complete")

	return result
}

// RegimeCircuitBreaker marks a result produced by forced liquidation.
const RegimeCircuitBreaker = "circuit_breaker"

// circuitBreaker compares the agent's unrealized drawdown against its
// limit and, if breached, emits a full-strength sell for every open
// position. Only open positions count: an agent holding nothing carries
// no unrealized loss and can never trip, whatever its cash history.
func (e *Engine) circuitBreaker(agent domain.Agent, positions []domain.Position) ([]domain.OrderAction, bool) {
	if agent.AllocatedCapital <= 0 || len(positions) == 0 {
		return nil, false
	}

	unrealized := 0.0
	for _, p := range positions {
		if p.Side == domain.SideShort {
			unrealized += (p.EntryPrice - p.CurrentPrice) * p.Shares
		} else {
			unrealized += (p.CurrentPrice - p.EntryPrice) * p.Shares
		}
	}

	drawdown := -unrealized / agent.AllocatedCapital
	limit := agent.RiskParams.DrawdownLimit()
	if drawdown < limit {
		return nil, false
	}

	reason := fmt.Sprintf("Circuit breaker: drawdown %.1f%% exceeds %.1f%%", drawdown*100, limit*100)
	actions := make([]domain.OrderAction, 0, len(positions))
	for _, p := range positions {
		actions = append(actions, domain.OrderAction{
			Ticker:         p.Ticker,
			Action:         domain.ActionSell,
			TargetWeight:   0,
			CurrentWeight:  p.Weight(agent.AllocatedCapital),
			SignalStrength: 100,
			Reason:         reason,
		})
	}
	return actions, true
}

// rebalanceGate returns a skip message when the agent rebalanced too
// recently. An agent with no rebalance on record is never gated.
func (e *Engine) rebalanceGate(agent domain.Agent, now time.Time) string {
	last, err := e.activities.LatestByType(agent.ID, domain.ActivityRebalance)
	if err != nil || last == nil {
		return ""
	}

	minHours := agent.StrategyParams.RebalanceFrequency.MinHours(agent.StrategyParams.MinIntervalHours)
	elapsed := now.Sub(last.CreatedAt).Hours()
	if elapsed >= minHours {
		return ""
	}

	return fmt.Sprintf("Rebalance frequency is %s (min %.0fh) but only %.1fh since last rebalance",
		agent.StrategyParams.RebalanceFrequency, minHours, elapsed)
}

// assembleData builds the agent's private view of the universe. For
// factor presets the integrator runs with the preset's weight vector and
// the agent's sentiment override, and the integrated composite is
// injected into per-agent stock copies.
func (e *Engine) assembleData(agent domain.Agent, preset strategy.Preset, data Data) (map[string]domain.Stock, map[string]domain.IntegratedScore, string) {
	stocks := make(map[string]domain.Stock, len(data.Stocks))
	for ticker, stock := range data.Stocks {
		stocks[ticker] = stock.ShallowCopy()
	}

	if !preset.UsesIntegratedComposite() || len(preset.FactorWeights) == 0 {
		return stocks, nil, ""
	}

	inputs := make(map[string]sentiment.Input, len(stocks))
	for ticker, stock := range stocks {
		input := sentiment.Input{MA200: stock.MA200}
		if stock.Price > 0 {
			price := stock.Price
			input.Price = &price
		}
		if f, ok := data.Factors[ticker]; ok {
			input.Factors = f
		}
		if s, ok := data.Sentiment[ticker]; ok {
			input.Sentiment = s
		}
		inputs[ticker] = input
	}

	scores := e.integrator.Integrate(inputs, preset.FactorWeights, agent.StrategyParams.SentimentWeight)

	regime := ""
	for ticker, score := range scores {
		regime = score.SentimentRegime
		stock := stocks[ticker]
		composite := score.Composite
		stock.IntegratedComposite = &composite
		stocks[ticker] = stock
	}

	return stocks, scores, regime
}

// sizeNewPositions scales the weights of not-yet-held targets down so
// their combined demand fits the agent's available cash fraction. Held
// positions keep their target weights.
func sizeNewPositions(targets []domain.TargetPosition, positions []domain.Position, agent domain.Agent) []domain.TargetPosition {
	if agent.AllocatedCapital <= 0 {
		return targets
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Ticker] = true
	}

	newDemand := 0.0
	for _, t := range targets {
		if !held[t.Ticker] {
			newDemand += t.Weight
		}
	}

	cashFraction := agent.CashBalance / agent.AllocatedCapital
	if newDemand <= cashFraction || newDemand <= 0 {
		return targets
	}

	scale := cashFraction / newDemand
	for i := range targets {
		if !held[targets[i].Ticker] {
			targets[i].Weight *= scale
		}
	}
	return targets
}

// applyOverlay multiplies every target weight by the macro scale factor.
func applyOverlay(targets []domain.TargetPosition, overlay *domain.OverlayResult) []domain.TargetPosition {
	if overlay == nil || overlay.ScaleFactor == 1.0 {
		return targets
	}
	for i := range targets {
		targets[i].Weight *= overlay.ScaleFactor
	}
	return targets
}
