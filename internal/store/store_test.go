package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/helmsman/internal/database"
	"github.com/aristath/helmsman/internal/domain"
)

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func ptr(v float64) *float64 { return &v }
func iptr(v int) *int        { return &v }

// setupTestDB opens a fresh in-memory database with the full schema. The
// shared cache keeps all pooled connections on the same memory store.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "test",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return db.Conn()
}

func seedUser(t *testing.T, db *sql.DB) int64 {
	t.Helper()

	res, err := db.Exec(
		`INSERT INTO users (email, alpaca_api_key, alpaca_api_secret, total_capital, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.Name()+"@example.com", "key", "secret", 50000.0, time.Now().Format(time.RFC3339),
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func seedAgent(t *testing.T, db *sql.DB, userID int64) int64 {
	t.Helper()

	repo := NewAgentRepository(db, testLog())
	id, err := repo.Create(domain.Agent{
		UserID:           userID,
		Name:             "test agent",
		Status:           domain.AgentStatusActive,
		StrategyType:     "momentum",
		AllocatedCapital: 10000,
		CashBalance:      10000,
		StrategyParams: domain.StrategyParams{
			MaxPositions:       8,
			RebalanceFrequency: domain.RebalanceDaily,
		},
	})
	require.NoError(t, err)
	return id
}

func TestAgentRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	userID := seedUser(t, db)
	repo := NewAgentRepository(db, testLog())

	id := seedAgent(t, db, userID)

	agent, err := repo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, agent)

	assert.Equal(t, userID, agent.UserID)
	assert.Equal(t, "test agent", agent.Name)
	assert.Equal(t, domain.AgentStatusActive, agent.Status)
	assert.Equal(t, "momentum", agent.StrategyType)
	assert.Equal(t, 10000.0, agent.AllocatedCapital)
	assert.Equal(t, 8, agent.StrategyParams.MaxPositions)
	assert.Equal(t, domain.RebalanceDaily, agent.StrategyParams.RebalanceFrequency)
	assert.False(t, agent.CreatedAt.IsZero())

	missing, err := repo.GetByID(99999)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAgentRepository_CreateRejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	userID := seedUser(t, db)
	repo := NewAgentRepository(db, testLog())

	_, err := repo.Create(domain.Agent{
		UserID:           userID,
		Name:             "broke",
		Status:           domain.AgentStatusActive,
		StrategyType:     "momentum",
		AllocatedCapital: 1000,
		CashBalance:      2000, // cash above allocation
	})
	assert.Error(t, err)
}

func TestAgentRepository_StatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	userID := seedUser(t, db)
	repo := NewAgentRepository(db, testLog())

	first := seedAgent(t, db, userID)
	second := seedAgent(t, db, userID)

	require.NoError(t, repo.UpdateStatus(second, domain.AgentStatusPaused))

	active, err := repo.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first, active[0].ID)

	assert.Error(t, repo.UpdateStatus(first, "exploded"))
}

func TestAgentRepository_UpdateCashBalanceClamps(t *testing.T) {
	db := setupTestDB(t)
	userID := seedUser(t, db)
	repo := NewAgentRepository(db, testLog())
	id := seedAgent(t, db, userID)

	require.NoError(t, repo.UpdateCashBalance(id, -50))

	agent, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 0.0, agent.CashBalance)
}

func TestPositionRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	userID := seedUser(t, db)
	agentID := seedAgent(t, db, userID)
	repo := NewPositionRepository(db, testLog())

	id, err := repo.Create(domain.Position{
		AgentID:        agentID,
		Ticker:         " aapl ",
		Side:           domain.SideLong,
		Status:         domain.PositionOpen,
		Shares:         20,
		EntryPrice:     100,
		EntryDate:      time.Now(),
		EntryRationale: "top ranked",
		CurrentPrice:   100,
		StopLossPrice:  ptr(90),
		TargetPrice:    ptr(120),
		MaxHoldingDays: iptr(30),
		EntryOrderID:   "order-1",
		StopOrderID:    "stop-1",
		TargetOrderID:  "target-1",
	})
	require.NoError(t, err)

	pos, err := repo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Equal(t, "AAPL", pos.Ticker)
	assert.Equal(t, domain.SideLong, pos.Side)
	assert.Equal(t, domain.PositionOpen, pos.Status)
	assert.Equal(t, 20.0, pos.Shares)
	require.NotNil(t, pos.StopLossPrice)
	assert.Equal(t, 90.0, *pos.StopLossPrice)
	require.NotNil(t, pos.MaxHoldingDays)
	assert.Equal(t, 30, *pos.MaxHoldingDays)
	assert.Equal(t, "stop-1", pos.StopOrderID)

	byTicker, err := repo.ListOpenByAgentTicker(agentID, "aapl")
	require.NoError(t, err)
	assert.Len(t, byTicker, 1)
}

func TestPositionRepository_UpdateAndClose(t *testing.T) {
	db := setupTestDB(t)
	userID := seedUser(t, db)
	agentID := seedAgent(t, db, userID)
	repo := NewPositionRepository(db, testLog())

	id, err := repo.Create(domain.Position{
		AgentID:      agentID,
		Ticker:       "MSFT",
		Side:         domain.SideLong,
		Status:       domain.PositionOpen,
		Shares:       10,
		EntryPrice:   200,
		EntryDate:    time.Now(),
		CurrentPrice: 200,
	})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateShares(id, 6, "stop-2", "target-2"))
	require.NoError(t, repo.UpdateCurrentPrice(id, 210, 60, 0.05))

	pos, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 6.0, pos.Shares)
	assert.Equal(t, 210.0, pos.CurrentPrice)
	assert.Equal(t, "stop-2", pos.StopOrderID)

	require.NoError(t, repo.Close(id, 220, time.Now(), "take profit", 120, 0.10, "exit-1"))

	pos, err = repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, pos.Status)
	require.NotNil(t, pos.ExitPrice)
	assert.Equal(t, 220.0, *pos.ExitPrice)
	assert.Equal(t, "take profit", pos.ExitRationale)
	// Brackets are cleared on close.
	assert.Empty(t, pos.StopOrderID)
	assert.Empty(t, pos.TargetOrderID)

	open, err := repo.ListOpenByAgent(agentID)
	require.NoError(t, err)
	assert.Empty(t, open)

	// Closing twice is an error: the row is no longer open.
	assert.Error(t, repo.Close(id, 220, time.Now(), "again", 0, 0, ""))
}

func TestActivityRepository_RecordAndQuery(t *testing.T) {
	db := setupTestDB(t)
	userID := seedUser(t, db)
	agentID := seedAgent(t, db, userID)
	repo := NewActivityRepository(db, testLog())

	none, err := repo.LatestByType(agentID, domain.ActivityRebalance)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, repo.Record(agentID, domain.ActivityRebalance, "Rebalanced: 2 buys, 0 sells, 0 failed, cash 6600.00", map[string]int{"buys": 2}))
	require.NoError(t, repo.Record(agentID, domain.ActivityBuy, "Bought 20 AAPL @ limit 100.50: top ranked", nil))

	latest, err := repo.LatestByType(agentID, domain.ActivityRebalance)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, domain.ActivityRebalance, latest.Type)
	assert.Contains(t, latest.Summary, "Rebalanced")
	assert.NotEmpty(t, latest.Details)
	assert.False(t, latest.CreatedAt.IsZero())

	recent, err := repo.ListRecent(agentID, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	one, err := repo.ListRecent(agentID, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestMacroRepository_IndicatorRollover(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMacroRepository(db, testLog())

	missing, err := repo.GetIndicator("hy_oas")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.UpsertIndicator("hy_oas", 4.2, time.Now()))

	ind, err := repo.GetIndicator("hy_oas")
	require.NoError(t, err)
	require.NotNil(t, ind)
	assert.Equal(t, 4.2, ind.Value)
	assert.Nil(t, ind.PreviousValue)

	// A second upsert rolls the prior value into previous_value.
	require.NoError(t, repo.UpsertIndicator("hy_oas", 4.8, time.Now()))

	ind, err = repo.GetIndicator("hy_oas")
	require.NoError(t, err)
	assert.Equal(t, 4.8, ind.Value)
	require.NotNil(t, ind.PreviousValue)
	assert.Equal(t, 4.2, *ind.PreviousValue)

	require.NoError(t, repo.UpsertIndicator("vix", 18.5, time.Now()))

	indicators, err := repo.ListIndicators()
	require.NoError(t, err)
	assert.Len(t, indicators, 2)
	assert.Equal(t, 18.5, indicators["vix"].Value)
}

func TestMacroRepository_InsiderSignals(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMacroRepository(db, testLog())

	require.NoError(t, repo.UpsertInsiderSignal(InsiderSignal{
		Ticker: "aapl", FilingCount: 5, BuyCount: 4, BuyRatio: 0.8, NetSentiment: 60,
	}))
	require.NoError(t, repo.UpsertInsiderSignal(InsiderSignal{
		Ticker: "AAPL", FilingCount: 6, BuyCount: 4, BuyRatio: 0.67, NetSentiment: 34,
	}))

	signals, err := repo.ListInsiderSignals()
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "AAPL", signals[0].Ticker)
	assert.Equal(t, 6, signals[0].FilingCount)
	assert.Equal(t, 34.0, signals[0].NetSentiment)
}

func TestMacroRepository_OverlayState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMacroRepository(db, testLog())

	none, err := repo.LatestOverlayState()
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, repo.SaveOverlayState(domain.OverlayResult{
		ComputedAt:  time.Now(),
		ScaleFactor: 0.85,
		Composite:   -22.5,
		Regime:      "elevated_risk",
		Warnings:    []string{"credit spreads widening rapidly"},
	}, domain.MacroSnapshot{}))

	latest, err := repo.LatestOverlayState()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 0.85, latest.ScaleFactor)
	assert.Equal(t, -22.5, latest.Composite)
	assert.Equal(t, "elevated_risk", latest.Regime)
	assert.Equal(t, []string{"credit spreads widening rapidly"}, latest.Warnings)
}

func TestStockRepository_UpsertAndSnapshot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStockRepository(db, testLog())

	require.NoError(t, repo.Upsert(domain.Stock{
		Ticker: "aapl",
		Sector: "tech",
		Price:  100,
		Fundamentals: domain.Fundamentals{
			PERatio:       ptr(28),
			ROE:           ptr(0.45),
			DividendYield: ptr(0.006),
		},
	}))

	assert.Error(t, repo.Upsert(domain.Stock{Sector: "tech", Price: 100}))
	assert.Error(t, repo.Upsert(domain.Stock{Ticker: "NEG", Price: -1}))

	stock, err := repo.GetByTicker("AAPL")
	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Equal(t, "AAPL", stock.Ticker)
	assert.Equal(t, 100.0, stock.Price)
	require.NotNil(t, stock.Fundamentals.PERatio)
	assert.Equal(t, 28.0, *stock.Fundamentals.PERatio)
	assert.Nil(t, stock.Fundamentals.PBRatio)

	// Upserting again replaces, not duplicates.
	require.NoError(t, repo.Upsert(domain.Stock{Ticker: "AAPL", Sector: "tech", Price: 105}))

	snapshot, err := repo.Snapshot()
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, 105.0, snapshot["AAPL"].Price)

	require.NoError(t, repo.UpdateFactorScores("AAPL", domain.FactorScores{
		Momentum: ptr(80), Composite: 72,
	}))
}

func TestStockRepository_PriceHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStockRepository(db, testLog())

	require.NoError(t, repo.AddPriceBar("AAPL", "2026-08-20", 99, 101, 98, 100, 1e6))
	require.NoError(t, repo.AddPriceBar("AAPL", "2026-08-21", 100, 103, 100, 102, 1.1e6))
	require.NoError(t, repo.AddPriceBar("AAPL", "2026-08-24", 102, 105, 101, 104, 0.9e6))

	closes, highs, lows, err := repo.PriceHistory("aapl", 400)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 102, 104}, closes)
	assert.Equal(t, []float64{101, 103, 105}, highs)
	assert.Equal(t, []float64{98, 100, 101}, lows)

	// The limit keeps the most recent bars, still oldest first.
	closes, _, _, err = repo.PriceHistory("AAPL", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{102, 104}, closes)

	// Re-adding a bar for the same date overwrites it.
	require.NoError(t, repo.AddPriceBar("AAPL", "2026-08-24", 102, 105, 101, 103, 1e6))
	closes, _, _, err = repo.PriceHistory("AAPL", 400)
	require.NoError(t, err)
	assert.Equal(t, 103.0, closes[len(closes)-1])
}

func TestStockRepository_SentimentSeries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStockRepository(db, testLog())

	require.NoError(t, repo.AddSentimentReading("AAPL", "2026-08-21", ptr(20), ptr(10), 16, 0))
	require.NoError(t, repo.AddSentimentReading("AAPL", "2026-08-24", ptr(40), nil, 40, 24))

	series, latest, err := repo.SentimentSeries("AAPL", 30)
	require.NoError(t, err)
	assert.Equal(t, []float64{16, 40}, series)
	require.NotNil(t, latest)
	assert.Equal(t, 40.0, latest.Combined)
	assert.Equal(t, 24.0, latest.Velocity)
	require.NotNil(t, latest.NewsScore)
	assert.Equal(t, 40.0, *latest.NewsScore)
	assert.Nil(t, latest.SocialScore)

	empty, none, err := repo.SentimentSeries("MSFT", 30)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Nil(t, none)
}

func TestUserRepository_Credentials(t *testing.T) {
	db := setupTestDB(t)
	userID := seedUser(t, db)
	repo := NewUserRepository(db, testLog())

	creds, err := repo.GetBrokerCredentials(userID)
	require.NoError(t, err)
	assert.True(t, creds.HasCredentials())
	assert.Equal(t, "key", creds.APIKey)

	// A missing user is not an error, just no credentials.
	creds, err = repo.GetBrokerCredentials(99999)
	require.NoError(t, err)
	assert.False(t, creds.HasCredentials())

	total, err := repo.TotalCapital(userID)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, total)

	total, err = repo.TotalCapital(99999)
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
}
