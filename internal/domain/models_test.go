package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeStrategyParams_RejectsUnknownKeys(t *testing.T) {
	_, err := DecodeStrategyParams([]byte(`{"max_positions": 5, "max_drawdown": 0.2}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid strategy_params")
}

func TestDecodeStrategyParams_SentimentWeightBounds(t *testing.T) {
	_, err := DecodeStrategyParams([]byte(`{"sentiment_weight": 0.7}`))
	assert.Error(t, err)

	p, err := DecodeStrategyParams([]byte(`{"sentiment_weight": 0.4}`))
	assert.NoError(t, err)
	assert.Equal(t, 0.4, *p.SentimentWeight)
}

func TestDecodeStrategyParams_EmptyIsValid(t *testing.T) {
	p, err := DecodeStrategyParams(nil)
	assert.NoError(t, err)
	assert.Zero(t, p.MaxPositions)
}

func TestDecodeRiskParams_RejectsUnknownKeys(t *testing.T) {
	_, err := DecodeRiskParams([]byte(`{"stop_loss_pct": 0.1, "bogus": true}`))
	assert.Error(t, err)
}

func TestRebalanceFrequency_MinHours(t *testing.T) {
	assert.Equal(t, 4.0, RebalanceIntraday.MinHours(4))
	assert.Equal(t, 24.0, RebalanceDaily.MinHours(0))
	assert.Equal(t, 168.0, RebalanceWeekly.MinHours(0))
	assert.Equal(t, 672.0, RebalanceMonthly.MinHours(0))
}

func TestRiskParams_DrawdownLimitDefault(t *testing.T) {
	assert.Equal(t, DefaultMaxDrawdownLimit, RiskParams{}.DrawdownLimit())
	assert.Equal(t, 0.10, RiskParams{MaxDrawdownLimit: 0.10}.DrawdownLimit())
}

func TestAgentValidate(t *testing.T) {
	agent := Agent{
		Status:           AgentStatusActive,
		AllocatedCapital: 10000,
		CashBalance:      5000,
	}
	assert.NoError(t, agent.Validate())

	agent.CashBalance = 15000
	assert.Error(t, agent.Validate())

	agent.CashBalance = 5000
	agent.Status = "running"
	assert.Error(t, agent.Validate())
}

func TestPositionValidate(t *testing.T) {
	pos := Position{
		Ticker:     "AAPL",
		Side:       SideLong,
		Status:     PositionOpen,
		Shares:     10,
		EntryPrice: 100,
		EntryDate:  time.Now(),
	}
	assert.NoError(t, pos.Validate())

	pos.Shares = 0
	assert.Error(t, pos.Validate())

	exit := 90.0
	pos.Shares = 10
	pos.ExitPrice = &exit
	assert.Error(t, pos.Validate())

	pos.Status = PositionClosed
	assert.NoError(t, pos.Validate())
}

func TestPositionWeight(t *testing.T) {
	pos := Position{Shares: 20, CurrentPrice: 100}
	assert.Equal(t, 0.20, pos.Weight(10000))
	assert.Equal(t, 0.0, pos.Weight(0))
}

func TestFactorOr(t *testing.T) {
	assert.Equal(t, 50.0, FactorOr(nil))
	v := 72.0
	assert.Equal(t, 72.0, FactorOr(&v))
}
