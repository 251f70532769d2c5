// Command helmsman runs the trading agent execution core: the nightly
// pipeline, the intraday monitor and the cron scheduler that drives both.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/helmsman/internal/clients/alpaca"
	"github.com/aristath/helmsman/internal/config"
	"github.com/aristath/helmsman/internal/database"
	"github.com/aristath/helmsman/internal/modules/engine"
	"github.com/aristath/helmsman/internal/modules/execution"
	"github.com/aristath/helmsman/internal/modules/factors"
	"github.com/aristath/helmsman/internal/modules/macro"
	"github.com/aristath/helmsman/internal/modules/monitor"
	"github.com/aristath/helmsman/internal/modules/sentiment"
	"github.com/aristath/helmsman/internal/modules/strategy"
	"github.com/aristath/helmsman/internal/pipeline"
	"github.com/aristath/helmsman/internal/store"
	"github.com/aristath/helmsman/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:          "helmsman",
		Short:        "Autonomous trading agent execution core",
		SilenceUsage: true,
	}

	root.AddCommand(newPipelineCmd(), newMonitorCmd(), newScheduleCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	db  *database.DB

	agents     *store.AgentRepository
	positions  *store.PositionRepository
	activities *store.ActivityRepository
	stocks     *store.StockRepository
	macroRepo  *store.MacroRepository
	users      *store.UserRepository

	broker       *alpaca.Client
	orchestrator *pipeline.Orchestrator
	monitor      *monitor.Monitor
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileLedger,
		Name:    "core",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db}

	conn := db.Conn()
	a.agents = store.NewAgentRepository(conn, log)
	a.positions = store.NewPositionRepository(conn, log)
	a.activities = store.NewActivityRepository(conn, log)
	a.stocks = store.NewStockRepository(conn, log)
	a.macroRepo = store.NewMacroRepository(conn, log)
	a.users = store.NewUserRepository(conn, log)

	a.broker = alpaca.NewClient(cfg.AlpacaBaseURL, cfg.AlpacaDataBaseURL, log)

	// Each agent run and each sweep works on a credential-bound copy of
	// the shared client, so concurrent users never cross API keys.
	execBroker := func(apiKey, apiSecret string) execution.Broker {
		return a.broker.WithCredentials(apiKey, apiSecret)
	}
	monitorBroker := func(apiKey, apiSecret string) monitor.Broker {
		return a.broker.WithCredentials(apiKey, apiSecret)
	}

	registry := strategy.NewRegistry()
	integrator := sentiment.NewIntegrator(log)
	eng := engine.New(registry, integrator, a.positions, a.activities, log)
	executor := execution.NewExecutor(execBroker, a.positions, a.agents, a.activities, log)

	a.orchestrator = pipeline.New(
		a.stocks, a.macroRepo, a.agents, a.users,
		factors.NewCalculator(log),
		sentiment.NewTemporalAnalyzer(log),
		macro.NewSignalBuilder(log),
		macro.NewOverlay(cfg.Overlay, log),
		eng, executor, log,
	)

	a.monitor = monitor.New(monitorBroker, a.agents, a.users, a.positions, a.activities, log)

	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close database")
	}
}
