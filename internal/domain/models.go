// Package domain holds the core typed records shared across modules.
// The domain layer is pure: no infrastructure dependencies.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// AgentStatus is the lifecycle state of an agent
type AgentStatus string

const (
	AgentStatusActive    AgentStatus = "active"
	AgentStatusPaused    AgentStatus = "paused"
	AgentStatusStopped   AgentStatus = "stopped"
	AgentStatusCompleted AgentStatus = "completed"
)

// RebalanceFrequency controls how often an agent may rebalance
type RebalanceFrequency string

const (
	RebalanceIntraday RebalanceFrequency = "intraday"
	RebalanceDaily    RebalanceFrequency = "daily"
	RebalanceWeekly   RebalanceFrequency = "weekly"
	RebalanceMonthly  RebalanceFrequency = "monthly"
)

// MinHours returns the minimum hours that must elapse between rebalances.
// Intraday agents use their own configured minimum interval.
func (f RebalanceFrequency) MinHours(minIntervalHours float64) float64 {
	switch f {
	case RebalanceIntraday:
		return minIntervalHours
	case RebalanceDaily:
		return 24
	case RebalanceWeekly:
		return 168
	case RebalanceMonthly:
		return 672
	default:
		return 24
	}
}

// StrategyParams holds the recognized strategy options for an agent.
// Unknown keys in the stored JSON are rejected, not ignored.
type StrategyParams struct {
	MaxPositions        int                `json:"max_positions"`
	ExcludeTickers      []string           `json:"exclude_tickers,omitempty"`
	Sectors             []string           `json:"sectors,omitempty"`
	MinMarketCap        float64            `json:"min_market_cap,omitempty"`
	MomentumLookbackDay int                `json:"momentum_lookback_days,omitempty"`
	SentimentWeight     *float64           `json:"sentiment_weight,omitempty"`
	RebalanceFrequency  RebalanceFrequency `json:"rebalance_frequency"`
	MinIntervalHours    float64            `json:"min_interval_hours,omitempty"`
	MaxHoldingDays      *int               `json:"max_holding_days,omitempty"`
}

// RiskParams holds the recognized risk options for an agent.
type RiskParams struct {
	MaxDrawdownLimit       float64  `json:"max_drawdown_limit,omitempty"`
	MaxPositionSizePct     float64  `json:"max_position_size_pct,omitempty"`
	MinRiskReward          float64  `json:"min_risk_reward,omitempty"`
	MaxSectorConcentration float64  `json:"max_sector_concentration,omitempty"`
	StopLossPct            *float64 `json:"stop_loss_pct,omitempty"`
	MaxHoldingDays         *int     `json:"max_holding_days,omitempty"`
}

// DefaultMaxDrawdownLimit is the circuit-breaker threshold applied when an
// agent does not configure one.
const DefaultMaxDrawdownLimit = 0.20

// DrawdownLimit returns the configured circuit-breaker threshold or the default.
func (r RiskParams) DrawdownLimit() float64 {
	if r.MaxDrawdownLimit > 0 {
		return r.MaxDrawdownLimit
	}
	return DefaultMaxDrawdownLimit
}

// DecodeStrategyParams parses stored strategy params JSON, rejecting unknown keys.
func DecodeStrategyParams(raw []byte) (StrategyParams, error) {
	var p StrategyParams
	if len(raw) == 0 {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("invalid strategy_params: %w", err)
	}
	if p.SentimentWeight != nil && (*p.SentimentWeight < 0 || *p.SentimentWeight > 0.6) {
		return p, fmt.Errorf("invalid strategy_params: sentiment_weight %.2f outside [0, 0.6]", *p.SentimentWeight)
	}
	return p, nil
}

// DecodeRiskParams parses stored risk params JSON, rejecting unknown keys.
func DecodeRiskParams(raw []byte) (RiskParams, error) {
	var p RiskParams
	if len(raw) == 0 {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("invalid risk_params: %w", err)
	}
	return p, nil
}

// Agent is a long-lived autonomous trading agent owned by a user.
type Agent struct {
	CreatedAt        time.Time      `json:"created_at"`
	EndDate          *time.Time     `json:"end_date,omitempty"`
	ID               int64          `json:"id"`
	UserID           int64          `json:"user_id"`
	Name             string         `json:"name"`
	Persona          string         `json:"persona"`
	Status           AgentStatus    `json:"status"`
	StrategyType     string         `json:"strategy_type"`
	StrategyParams   StrategyParams `json:"strategy_params"`
	RiskParams       RiskParams     `json:"risk_params"`
	AllocatedCapital float64        `json:"allocated_capital"`
	CashBalance      float64        `json:"cash_balance"`
	TimeHorizonDays  int            `json:"time_horizon_days"`
}

// Validate checks agent invariants before persistence.
func (a Agent) Validate() error {
	if a.AllocatedCapital < 0 {
		return fmt.Errorf("allocated_capital must be >= 0, got %.2f", a.AllocatedCapital)
	}
	if a.CashBalance < 0 || a.CashBalance > a.AllocatedCapital {
		return fmt.Errorf("cash_balance %.2f outside [0, allocated_capital %.2f]", a.CashBalance, a.AllocatedCapital)
	}
	switch a.Status {
	case AgentStatusActive, AgentStatusPaused, AgentStatusStopped, AgentStatusCompleted:
	default:
		return fmt.Errorf("invalid agent status %q", a.Status)
	}
	return nil
}

// PositionSide distinguishes long and short positions
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// PositionStatus is the lifecycle state of a position
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is a holding owned by exactly one agent.
type Position struct {
	EntryDate      time.Time      `json:"entry_date"`
	ExitDate       *time.Time     `json:"exit_date,omitempty"`
	ID             int64          `json:"id"`
	AgentID        int64          `json:"agent_id"`
	Ticker         string         `json:"ticker"`
	Side           PositionSide   `json:"side"`
	Status         PositionStatus `json:"status"`
	Shares         float64        `json:"shares"`
	EntryPrice     float64        `json:"entry_price"`
	EntryRationale string         `json:"entry_rationale"`
	CurrentPrice   float64        `json:"current_price"`
	UnrealizedPL   float64        `json:"unrealized_pl"`
	UnrealizedPct  float64        `json:"unrealized_pl_pct"`
	StopLossPrice  *float64       `json:"stop_loss_price,omitempty"`
	TargetPrice    *float64       `json:"target_price,omitempty"`
	MaxHoldingDays *int           `json:"max_holding_days,omitempty"`
	ExitPrice      *float64       `json:"exit_price,omitempty"`
	ExitRationale  string         `json:"exit_rationale,omitempty"`
	RealizedPL     *float64       `json:"realized_pl,omitempty"`
	RealizedPct    *float64       `json:"realized_pl_pct,omitempty"`
	EntryOrderID   string         `json:"entry_order_id,omitempty"`
	ExitOrderID    string         `json:"exit_order_id,omitempty"`
	StopOrderID    string         `json:"stop_order_id,omitempty"`
	TargetOrderID  string         `json:"target_order_id,omitempty"`
}

// MarketValue returns shares * current price.
func (p Position) MarketValue() float64 {
	return p.Shares * p.CurrentPrice
}

// Weight returns the position's fraction of allocated capital.
func (p Position) Weight(allocatedCapital float64) float64 {
	if allocatedCapital <= 0 {
		return 0
	}
	return p.MarketValue() / allocatedCapital
}

// Validate checks position invariants before persistence.
func (p Position) Validate() error {
	if p.Ticker == "" {
		return fmt.Errorf("position ticker is required")
	}
	if p.Status == PositionOpen && p.Shares <= 0 {
		return fmt.Errorf("open position must have shares > 0, got %.4f", p.Shares)
	}
	if p.Status == PositionOpen && p.ExitPrice != nil {
		return fmt.Errorf("open position cannot carry an exit price")
	}
	if p.Status == PositionClosed && p.ExitPrice == nil {
		return fmt.Errorf("closed position must carry an exit price")
	}
	return nil
}

// Fundamentals holds the valuation and quality inputs for a stock.
// Nil pointers mean the datum is unavailable.
type Fundamentals struct {
	PERatio        *float64 `json:"pe_ratio,omitempty"`
	PBRatio        *float64 `json:"pb_ratio,omitempty"`
	ROE            *float64 `json:"roe,omitempty"`
	ProfitMargin   *float64 `json:"profit_margin,omitempty"`
	DebtToEquity   *float64 `json:"debt_to_equity,omitempty"`
	DividendYield  *float64 `json:"dividend_yield,omitempty"`
	DivGrowth5Y    *float64 `json:"dividend_growth_5y,omitempty"`
	MarketCap      *float64 `json:"market_cap,omitempty"`
	AvgDailyVolume *float64 `json:"avg_daily_volume,omitempty"`
}

// Stock is the per-ticker market data record used during execution.
// PriceHistory is time-ordered oldest first, up to ~400 trading days.
type Stock struct {
	LastUpdated         time.Time    `json:"last_updated"`
	Ticker              string       `json:"ticker"`
	Sector              string       `json:"sector"`
	Price               float64      `json:"price"`
	PriceHistory        []float64    `json:"price_history,omitempty"`
	HighHistory         []float64    `json:"high_history,omitempty"`
	LowHistory          []float64    `json:"low_history,omitempty"`
	Fundamentals        Fundamentals `json:"fundamentals"`
	MA200               *float64     `json:"ma_200,omitempty"`
	IntegratedComposite *float64     `json:"integrated_composite,omitempty"`
}

// ShallowCopy returns a copy of the stock suitable for per-agent mutation
// of scalar fields. The history slices are shared read-only; only the
// pointer fields that agents write (IntegratedComposite) are detached.
func (s Stock) ShallowCopy() Stock {
	c := s
	c.IntegratedComposite = nil
	return c
}

// FactorScores is the per-stock output of the factor calculator.
// All factor fields are 0-100 percentiles; nil means not computable.
type FactorScores struct {
	Ticker     string   `json:"ticker"`
	Momentum   *float64 `json:"momentum,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	Quality    *float64 `json:"quality,omitempty"`
	Dividend   *float64 `json:"dividend,omitempty"`
	Volatility *float64 `json:"volatility,omitempty"`
	Composite  float64  `json:"composite"`
}

// FactorOr returns the factor value or the neutral default 50.
func FactorOr(v *float64) float64 {
	if v == nil {
		return 50
	}
	return *v
}

// SentimentInput is the per-stock sentiment reading, enriched with
// temporal diagnostics by the temporal analyzer.
type SentimentInput struct {
	Ticker      string   `json:"ticker"`
	NewsScore   *float64 `json:"news_score,omitempty"`
	SocialScore *float64 `json:"social_score,omitempty"`
	Combined    float64  `json:"combined"`
	Velocity    float64  `json:"velocity"`
	Streak      int      `json:"streak"`
	TrendSlope  float64  `json:"trend_slope"`
	Persistence float64  `json:"persistence"`
	Breakout    bool     `json:"breakout"`
}

// IntegratedScore is the per-stock output of the sentiment-factor integrator.
type IntegratedScore struct {
	Ticker          string             `json:"ticker"`
	Factors         FactorScores       `json:"factors"`
	Sentiment       float64            `json:"sentiment"`
	Convergence     float64            `json:"convergence_bonus"`
	Resonance       float64            `json:"resonance_multiplier"`
	Triangulation   float64            `json:"triangulation_confidence"`
	Dispersion      float64            `json:"dispersion_risk"`
	Temporal        float64            `json:"temporal_bonus"`
	Confluence      float64            `json:"confluence_bonus"`
	WeightsUsed     map[string]float64 `json:"weights_used"`
	Composite       float64            `json:"composite"`
	RegimeStrength  float64            `json:"regime_strength"`
	SentimentRegime string             `json:"sentiment_regime"`
}

// ActionType is the order-action verb emitted by the diff pass
type ActionType string

const (
	ActionBuy      ActionType = "buy"
	ActionSell     ActionType = "sell"
	ActionHold     ActionType = "hold"
	ActionIncrease ActionType = "increase"
	ActionDecrease ActionType = "decrease"
)

// OrderAction is an ephemeral record produced by diffing a target
// portfolio against held positions.
type OrderAction struct {
	Ticker         string     `json:"ticker"`
	Action         ActionType `json:"action"`
	TargetWeight   float64    `json:"target_weight"`
	CurrentWeight  float64    `json:"current_weight"`
	SignalStrength float64    `json:"signal_strength"`
	Reason         string     `json:"reason"`
}

// TargetPosition is a strategy's recommended holding with exit metadata.
type TargetPosition struct {
	Ticker         string       `json:"ticker"`
	Side           PositionSide `json:"side"`
	Weight         float64      `json:"weight"`
	SignalStrength float64      `json:"signal_strength"`
	EntryPrice     float64      `json:"entry_price"`
	StopLoss       *float64     `json:"stop_loss,omitempty"`
	TakeProfit     *float64     `json:"take_profit,omitempty"`
	MaxHoldingDays *int         `json:"max_holding_days,omitempty"`
	Rationale      string       `json:"rationale"`
}

// ExecutionResult is the per-agent artifact of one strategy-engine run.
type ExecutionResult struct {
	AgentID      int64                      `json:"agent_id"`
	StrategyName string                     `json:"strategy_name"`
	Targets      []TargetPosition           `json:"targets"`
	Scores       map[string]IntegratedScore `json:"scores,omitempty"`
	Actions      []OrderAction              `json:"actions"`
	Regime       string                     `json:"regime"`
	Overlay      *OverlayResult             `json:"overlay,omitempty"`
	Error        string                     `json:"error,omitempty"`
	Skipped      bool                       `json:"skipped"`
}

// MacroSignal is one of the five overlay inputs, in [-100, +100].
type MacroSignal struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
}

// MacroSnapshot carries the five macro signals of one pipeline run.
type MacroSnapshot struct {
	AsOf         time.Time   `json:"as_of"`
	CreditSpread MacroSignal `json:"credit_spread"`
	Volatility   MacroSignal `json:"volatility"`
	YieldCurve   MacroSignal `json:"yield_curve"`
	Seasonality  MacroSignal `json:"seasonality"`
	Insider      MacroSignal `json:"insider"`
}

// Signals returns the snapshot's signals in canonical order.
func (m MacroSnapshot) Signals() []MacroSignal {
	return []MacroSignal{m.CreditSpread, m.Volatility, m.YieldCurve, m.Seasonality, m.Insider}
}

// OverlayResult is the macro overlay output applied to every agent in a run.
type OverlayResult struct {
	ComputedAt    time.Time          `json:"computed_at"`
	ScaleFactor   float64            `json:"scale_factor"`
	Composite     float64            `json:"composite"`
	Regime        string             `json:"regime"`
	Contributions map[string]float64 `json:"contributions"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// ActivityType classifies agent audit records
type ActivityType string

const (
	ActivityRebalance ActivityType = "rebalance"
	ActivityBuy       ActivityType = "buy"
	ActivitySell      ActivityType = "sell"
	ActivitySignal    ActivityType = "signal"
	ActivityStopHit   ActivityType = "stop_hit"
	ActivityTargetHit ActivityType = "target_hit"
	ActivityPaused    ActivityType = "paused"
	ActivityResumed   ActivityType = "resumed"
)

// Activity is an audit record attached to an agent.
type Activity struct {
	CreatedAt time.Time       `json:"created_at"`
	ID        int64           `json:"id"`
	AgentID   int64           `json:"agent_id"`
	Type      ActivityType    `json:"type"`
	Summary   string          `json:"summary"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// BrokerCredentials holds a user's broker API credentials.
type BrokerCredentials struct {
	UserID    int64
	APIKey    string
	APISecret string
}

// HasCredentials reports whether both key and secret are present.
func (c BrokerCredentials) HasCredentials() bool {
	return c.APIKey != "" && c.APISecret != ""
}
