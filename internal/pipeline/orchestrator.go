package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/modules/engine"
	"github.com/aristath/helmsman/internal/modules/execution"
	"github.com/aristath/helmsman/internal/modules/factors"
	"github.com/aristath/helmsman/internal/modules/macro"
	"github.com/aristath/helmsman/internal/modules/sentiment"
	"github.com/aristath/helmsman/internal/store"
	"github.com/aristath/helmsman/pkg/formulas"
)

const (
	historyDays           = 400
	sentimentLookbackDays = 30
	agentConcurrency      = 4
)

// StockStore is the market-data surface the pipeline needs
type StockStore interface {
	Snapshot() (map[string]domain.Stock, error)
	PriceHistory(ticker string, limit int) (closes, highs, lows []float64, err error)
	SentimentSeries(ticker string, lookbackDays int) ([]float64, *domain.SentimentInput, error)
	UpdateFactorScores(ticker string, scores domain.FactorScores) error
}

// MacroStore is the macro surface the pipeline needs
type MacroStore interface {
	ListIndicators() (map[string]store.MacroIndicator, error)
	ListInsiderSignals() ([]store.InsiderSignal, error)
	SaveOverlayState(result domain.OverlayResult, snapshot domain.MacroSnapshot) error
}

// AgentStore lists the agents to run
type AgentStore interface {
	ListActive() ([]domain.Agent, error)
}

// UserStore resolves broker credentials per user
type UserStore interface {
	GetBrokerCredentials(userID int64) (domain.BrokerCredentials, error)
}

// Orchestrator wires the five nightly stages together
type Orchestrator struct {
	stocks     StockStore
	macroStore MacroStore
	agents     AgentStore
	users      UserStore

	calculator *factors.Calculator
	temporal   *sentiment.TemporalAnalyzer
	signals    *macro.SignalBuilder
	overlay    *macro.Overlay
	engine     *engine.Engine
	executor   *execution.Executor

	log zerolog.Logger
}

// New creates a new pipeline orchestrator
func New(stocks StockStore, macroStore MacroStore, agents AgentStore, users UserStore,
	calculator *factors.Calculator, temporal *sentiment.TemporalAnalyzer,
	signals *macro.SignalBuilder, overlay *macro.Overlay,
	eng *engine.Engine, executor *execution.Executor, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		stocks:     stocks,
		macroStore: macroStore,
		agents:     agents,
		users:      users,
		calculator: calculator,
		temporal:   temporal,
		signals:    signals,
		overlay:    overlay,
		engine:     eng,
		executor:   executor,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the five stages in order. Stages are sequential because
// each consumes the previous stage's output; the agent stage fans out
// internally. A failing stage degrades the run, it never panics it.
func (o *Orchestrator) Run(ctx context.Context) RunReport {
	started := time.Now()
	report := RunReport{StartedAt: started}

	stocks, factorScores, summary := o.factorStage()
	report.Stages = append(report.Stages, summary)

	sentimentInputs, summary := o.sentimentStage(stocks)
	report.Stages = append(report.Stages, summary)

	snapshot, overlayResult, summary := o.macroStage(started)
	report.Stages = append(report.Stages, summary)

	data := engine.Data{
		Stocks:    stocks,
		Sentiment: sentimentInputs,
		Factors:   factorScores,
	}
	report.Stages = append(report.Stages, o.agentStage(ctx, data, overlayResult))

	report.Stages = append(report.Stages, o.reportStage(snapshot, overlayResult))

	report.Duration = time.Since(started)
	o.log.Info().
		Dur("duration", report.Duration).
		Bool("failed", report.Failed()).
		Msg("Pipeline run finished")
	return report
}

// factorStage loads the universe with price history and computes the
// cross-sectional factor percentiles.
func (o *Orchestrator) factorStage() (map[string]domain.Stock, map[string]domain.FactorScores, StageSummary) {
	started := time.Now()
	summary := StageSummary{Name: "factors"}

	stocks, err := o.stocks.Snapshot()
	if err != nil {
		summary.Error = fmt.Sprintf("failed to load universe: %v", err)
		summary.Status = StatusError
		summary.Duration = time.Since(started)
		return nil, nil, summary
	}

	for ticker, stock := range stocks {
		closes, highs, lows, err := o.stocks.PriceHistory(ticker, historyDays)
		if err != nil {
			summary.Failed++
			if summary.Error == "" {
				summary.Error = fmt.Sprintf("history for %s: %v", ticker, err)
			}
			continue
		}
		stock.PriceHistory = closes
		stock.HighHistory = highs
		stock.LowHistory = lows
		stock.MA200 = formulas.CalculateSMA(closes, 200)
		stocks[ticker] = stock
		summary.Processed++
	}

	scores := o.calculator.Calculate(stocks, nil, true)
	for ticker, s := range scores {
		if err := o.stocks.UpdateFactorScores(ticker, s); err != nil {
			summary.Failed++
			if summary.Error == "" {
				summary.Error = fmt.Sprintf("persist scores for %s: %v", ticker, err)
			}
		}
	}

	summary.Status = statusFor(summary.Processed, summary.Failed, summary.Error)
	summary.Duration = time.Since(started)
	return stocks, scores, summary
}

// sentimentStage loads each ticker's sentiment series and enriches the
// latest reading with temporal diagnostics.
func (o *Orchestrator) sentimentStage(stocks map[string]domain.Stock) (map[string]domain.SentimentInput, StageSummary) {
	started := time.Now()
	summary := StageSummary{Name: "sentiment"}

	inputs := make(map[string]domain.SentimentInput, len(stocks))
	for ticker := range stocks {
		series, latest, err := o.stocks.SentimentSeries(ticker, sentimentLookbackDays)
		if err != nil {
			summary.Failed++
			if summary.Error == "" {
				summary.Error = fmt.Sprintf("sentiment for %s: %v", ticker, err)
			}
			continue
		}
		if latest == nil {
			continue
		}
		inputs[ticker] = o.temporal.Enrich(*latest, series)
		summary.Processed++
	}

	summary.Status = statusFor(summary.Processed, summary.Failed, summary.Error)
	summary.Duration = time.Since(started)
	return inputs, summary
}

// macroStage computes the overlay exactly once per run; every agent sees
// the same scale factor.
func (o *Orchestrator) macroStage(now time.Time) (domain.MacroSnapshot, *domain.OverlayResult, StageSummary) {
	started := time.Now()
	summary := StageSummary{Name: "macro"}

	indicators, err := o.macroStore.ListIndicators()
	if err != nil {
		summary.Error = fmt.Sprintf("failed to load indicators: %v", err)
		summary.Status = StatusError
		summary.Duration = time.Since(started)
		return domain.MacroSnapshot{}, nil, summary
	}

	insiders, err := o.macroStore.ListInsiderSignals()
	if err != nil {
		// Insider data is one of five signals; its absence degrades, not fails.
		o.log.Warn().Err(err).Msg("Failed to load insider signals")
		if summary.Error == "" {
			summary.Error = fmt.Sprintf("insider signals: %v", err)
		}
	}

	snapshot := o.signals.Build(indicators, insiders, now)
	result := o.overlay.Compute(snapshot, now)

	for _, sig := range snapshot.Signals() {
		if sig.Available {
			summary.Processed++
		}
	}
	summary.Status = statusFor(summary.Processed, summary.Failed, summary.Error)
	summary.Duration = time.Since(started)
	return snapshot, &result, summary
}

// agentStage fans the engine and executor out across active agents. One
// agent's failure never touches another's run.
func (o *Orchestrator) agentStage(ctx context.Context, data engine.Data, overlay *domain.OverlayResult) StageSummary {
	started := time.Now()
	summary := StageSummary{Name: "agents"}

	agents, err := o.agents.ListActive()
	if err != nil {
		summary.Error = fmt.Sprintf("failed to list agents: %v", err)
		summary.Status = StatusError
		summary.Duration = time.Since(started)
		return summary
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(agentConcurrency)

	for _, agent := range agents {
		agent := agent
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			now := time.Now()
			result := o.engine.Run(agent, data, overlay, now)

			var execErr error
			if !result.Skipped && result.Error == "" {
				creds, err := o.users.GetBrokerCredentials(agent.UserID)
				if err != nil {
					execErr = fmt.Errorf("credentials for user %d: %w", agent.UserID, err)
				} else {
					execErr = o.executor.Execute(agent, creds, result, data.Stocks, now)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case execErr != nil:
				summary.Failed++
				if summary.Error == "" {
					summary.Error = execErr.Error()
				}
				o.log.Error().Err(execErr).Int64("agent_id", agent.ID).Msg("Agent execution failed")
			case result.Error != "" && !result.Skipped:
				summary.Failed++
				if summary.Error == "" {
					summary.Error = result.Error
				}
			default:
				summary.Processed++
			}
			return nil
		})
	}

	// Workers swallow their own errors; Wait only surfaces cancellation.
	if err := g.Wait(); err != nil && summary.Error == "" {
		summary.Error = err.Error()
	}

	summary.Status = statusFor(summary.Processed, summary.Failed, summary.Error)
	summary.Duration = time.Since(started)
	return summary
}

// reportStage persists the overlay state so dashboards and the next run
// can read what was applied.
func (o *Orchestrator) reportStage(snapshot domain.MacroSnapshot, overlay *domain.OverlayResult) StageSummary {
	started := time.Now()
	summary := StageSummary{Name: "report"}

	if overlay != nil {
		if err := o.macroStore.SaveOverlayState(*overlay, snapshot); err != nil {
			summary.Error = fmt.Sprintf("failed to save overlay state: %v", err)
		} else {
			summary.Processed++
		}
	}

	summary.Status = statusFor(summary.Processed, summary.Failed, summary.Error)
	summary.Duration = time.Since(started)
	return summary
}
