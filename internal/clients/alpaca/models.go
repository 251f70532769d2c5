package alpaca

import "time"

// Account is the broker account snapshot
type Account struct {
	Equity         float64 `json:"equity,string"`
	BuyingPower    float64 `json:"buying_power,string"`
	Cash           float64 `json:"cash,string"`
	PortfolioValue float64 `json:"portfolio_value,string"`
	Status         string  `json:"status"`
	DaytradeCount  int     `json:"daytrade_count"`
}

// Clock is the broker market-hours snapshot
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
	IsOpen    bool      `json:"is_open"`
}

// Order side constants
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Time-in-force constants
const (
	TIFDay = "day"
	TIFGTC = "gtc"
)

// Order type constants
const (
	TypeMarket       = "market"
	TypeLimit        = "limit"
	TypeStop         = "stop"
	TypeStopLimit    = "stop_limit"
	TypeTrailingStop = "trailing_stop"
)

// OrderRequest is the payload for order placement
type OrderRequest struct {
	Symbol        string   `json:"symbol"`
	Qty           float64  `json:"qty,string"`
	Side          string   `json:"side"`
	Type          string   `json:"type"`
	TimeInForce   string   `json:"time_in_force"`
	LimitPrice    *float64 `json:"limit_price,string,omitempty"`
	StopPrice     *float64 `json:"stop_price,string,omitempty"`
	TrailPercent  *float64 `json:"trail_percent,string,omitempty"`
	ClientOrderID string   `json:"client_order_id,omitempty"`
}

// Order is a broker order with fill fields
type Order struct {
	SubmittedAt    time.Time `json:"submitted_at"`
	ID             string    `json:"id"`
	ClientOrderID  string    `json:"client_order_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Type           string    `json:"type"`
	TimeInForce    string    `json:"time_in_force"`
	Status         string    `json:"status"`
	Qty            float64   `json:"qty,string"`
	FilledQty      float64   `json:"filled_qty,string"`
	FilledAvgPrice *float64  `json:"filled_avg_price,string,omitempty"`
	LimitPrice     *float64  `json:"limit_price,string,omitempty"`
	StopPrice      *float64  `json:"stop_price,string,omitempty"`
}

// FillPrice returns the filled average price when present, otherwise the
// limit price, otherwise zero.
func (o Order) FillPrice() float64 {
	if o.FilledAvgPrice != nil {
		return *o.FilledAvgPrice
	}
	if o.LimitPrice != nil {
		return *o.LimitPrice
	}
	return 0
}

// Position is a broker-held position
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Qty           float64 `json:"qty,string"`
	AvgEntryPrice float64 `json:"avg_entry_price,string"`
	MarketValue   float64 `json:"market_value,string"`
	CurrentPrice  float64 `json:"current_price,string"`
	UnrealizedPL  float64 `json:"unrealized_pl,string"`
}

// Quote is the latest bid/ask for a symbol
type Quote struct {
	Timestamp time.Time `json:"t"`
	BidPrice  float64   `json:"bp"`
	AskPrice  float64   `json:"ap"`
}

// Mid returns the quote midpoint, falling back to whichever side is set.
func (q Quote) Mid() float64 {
	if q.BidPrice > 0 && q.AskPrice > 0 {
		return (q.BidPrice + q.AskPrice) / 2
	}
	if q.AskPrice > 0 {
		return q.AskPrice
	}
	return q.BidPrice
}

// Bar is one OHLCV bar
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}
