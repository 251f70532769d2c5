// Package alpaca is the HTTP client for the Alpaca-compatible brokerage
// API. Every call goes through a circuit breaker so a failing broker
// degrades to logged skips instead of hammering the API mid-run.
package alpaca

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Client for the brokerage API
type Client struct {
	baseURL     string
	dataBaseURL string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker
	log         zerolog.Logger
	apiKey      string
	apiSecret   string
}

// NewClient creates a new brokerage client. Credentials are per-user;
// callers derive a credential-bound client with WithCredentials before
// any authenticated call.
func NewClient(baseURL, dataBaseURL string, log zerolog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alpaca",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		dataBaseURL: strings.TrimRight(dataBaseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: breaker,
		log:     log.With().Str("client", "alpaca").Logger(),
	}
}

// WithCredentials returns a copy of the client bound to one user's API
// keys. The copy shares the HTTP client and circuit breaker with its
// parent; the credential fields are never mutated after this, so derived
// clients are safe to use concurrently across users.
func (c *Client) WithCredentials(apiKey, apiSecret string) *Client {
	derived := *c
	derived.apiKey = apiKey
	derived.apiSecret = apiSecret
	return &derived
}

func (c *Client) do(method, fullURL string, payload interface{}, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			b, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request: %w", err)
			}
			body = bytes.NewBuffer(b)
		}

		req, err := http.NewRequest(method, fullURL, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("APCA-API-KEY-ID", c.apiKey)
		req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("broker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}

		return nil, nil
	})
	return err
}

// GetAccount returns the account snapshot
func (c *Client) GetAccount() (*Account, error) {
	var account Account
	if err := c.do(http.MethodGet, c.baseURL+"/v2/account", nil, &account); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetClock returns the market-hours clock
func (c *Client) GetClock() (*Clock, error) {
	var clock Clock
	if err := c.do(http.MethodGet, c.baseURL+"/v2/clock", nil, &clock); err != nil {
		return nil, fmt.Errorf("failed to get clock: %w", err)
	}
	return &clock, nil
}

// IsMarketOpen reports whether the market is currently open
func (c *Client) IsMarketOpen() (bool, error) {
	clock, err := c.GetClock()
	if err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}

// PlaceOrder submits an order and returns the broker order record
func (c *Client) PlaceOrder(req OrderRequest) (*Order, error) {
	var order Order
	if err := c.do(http.MethodPost, c.baseURL+"/v2/orders", req, &order); err != nil {
		return nil, fmt.Errorf("failed to place %s %s order for %s: %w", req.Side, req.Type, req.Symbol, err)
	}

	c.log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", order.Side).
		Str("type", order.Type).
		Float64("qty", order.Qty).
		Msg("Order placed")

	return &order, nil
}

// PlaceMarketOrder submits a market order
func (c *Client) PlaceMarketOrder(symbol string, qty float64, side, tif, clientOrderID string) (*Order, error) {
	return c.PlaceOrder(OrderRequest{
		Symbol: symbol, Qty: qty, Side: side,
		Type: TypeMarket, TimeInForce: tif, ClientOrderID: clientOrderID,
	})
}

// PlaceLimitOrder submits a limit order
func (c *Client) PlaceLimitOrder(symbol string, qty, limitPrice float64, side, tif, clientOrderID string) (*Order, error) {
	return c.PlaceOrder(OrderRequest{
		Symbol: symbol, Qty: qty, Side: side,
		Type: TypeLimit, TimeInForce: tif, LimitPrice: &limitPrice, ClientOrderID: clientOrderID,
	})
}

// PlaceStopOrder submits a stop order
func (c *Client) PlaceStopOrder(symbol string, qty, stopPrice float64, side, tif, clientOrderID string) (*Order, error) {
	return c.PlaceOrder(OrderRequest{
		Symbol: symbol, Qty: qty, Side: side,
		Type: TypeStop, TimeInForce: tif, StopPrice: &stopPrice, ClientOrderID: clientOrderID,
	})
}

// PlaceStopLimitOrder submits a stop-limit order
func (c *Client) PlaceStopLimitOrder(symbol string, qty, stopPrice, limitPrice float64, side, tif, clientOrderID string) (*Order, error) {
	return c.PlaceOrder(OrderRequest{
		Symbol: symbol, Qty: qty, Side: side,
		Type: TypeStopLimit, TimeInForce: tif,
		StopPrice: &stopPrice, LimitPrice: &limitPrice, ClientOrderID: clientOrderID,
	})
}

// PlaceTrailingStopOrder submits a trailing-stop order
func (c *Client) PlaceTrailingStopOrder(symbol string, qty, trailPercent float64, side, tif, clientOrderID string) (*Order, error) {
	return c.PlaceOrder(OrderRequest{
		Symbol: symbol, Qty: qty, Side: side,
		Type: TypeTrailingStop, TimeInForce: tif,
		TrailPercent: &trailPercent, ClientOrderID: clientOrderID,
	})
}

// GetOrder retrieves one order by id
func (c *Client) GetOrder(orderID string) (*Order, error) {
	var order Order
	if err := c.do(http.MethodGet, c.baseURL+"/v2/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return &order, nil
}

// GetOrders lists orders filtered by status, limit and symbols
func (c *Client) GetOrders(status string, limit int, symbols []string) ([]Order, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if len(symbols) > 0 {
		params.Set("symbols", strings.Join(symbols, ","))
	}

	var orders []Order
	endpoint := c.baseURL + "/v2/orders"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	if err := c.do(http.MethodGet, endpoint, nil, &orders); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// CancelOrder cancels one order by id
func (c *Client) CancelOrder(orderID string) error {
	if err := c.do(http.MethodDelete, c.baseURL+"/v2/orders/"+url.PathEscape(orderID), nil, nil); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// CancelAllOrders cancels every open order
func (c *Client) CancelAllOrders() error {
	if err := c.do(http.MethodDelete, c.baseURL+"/v2/orders", nil, nil); err != nil {
		return fmt.Errorf("failed to cancel all orders: %w", err)
	}
	return nil
}

// GetPositions lists all broker-held positions
func (c *Client) GetPositions() ([]Position, error) {
	var positions []Position
	if err := c.do(http.MethodGet, c.baseURL+"/v2/positions", nil, &positions); err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

// GetPosition returns the broker position for one symbol
func (c *Client) GetPosition(symbol string) (*Position, error) {
	var position Position
	if err := c.do(http.MethodGet, c.baseURL+"/v2/positions/"+url.PathEscape(symbol), nil, &position); err != nil {
		return nil, fmt.Errorf("failed to get position %s: %w", symbol, err)
	}
	return &position, nil
}

// ClosePosition market-exits a position. A nil qty closes the full
// position; a non-nil qty closes partially.
func (c *Client) ClosePosition(symbol string, qty *float64) (*Order, error) {
	endpoint := c.baseURL + "/v2/positions/" + url.PathEscape(symbol)
	if qty != nil {
		endpoint += "?qty=" + strconv.FormatFloat(*qty, 'f', -1, 64)
	}

	var order Order
	if err := c.do(http.MethodDelete, endpoint, nil, &order); err != nil {
		return nil, fmt.Errorf("failed to close position %s: %w", symbol, err)
	}

	c.log.Info().
		Str("symbol", symbol).
		Str("order_id", order.ID).
		Msg("Position closed at broker")

	return &order, nil
}

// CloseAllPositions market-exits every broker-held position
func (c *Client) CloseAllPositions() error {
	if err := c.do(http.MethodDelete, c.baseURL+"/v2/positions", nil, nil); err != nil {
		return fmt.Errorf("failed to close all positions: %w", err)
	}
	return nil
}

// GetLatestQuote returns the latest bid/ask for a symbol
func (c *Client) GetLatestQuote(symbol string) (*Quote, error) {
	var resp struct {
		Quote Quote `json:"quote"`
	}
	endpoint := c.dataBaseURL + "/v2/stocks/" + url.PathEscape(symbol) + "/quotes/latest"
	if err := c.do(http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get latest quote for %s: %w", symbol, err)
	}
	return &resp.Quote, nil
}

// GetBars returns OHLCV bars for a symbol
func (c *Client) GetBars(symbol, timeframe string, start, end time.Time, limit int) ([]Bar, error) {
	params := url.Values{}
	params.Set("timeframe", timeframe)
	if !start.IsZero() {
		params.Set("start", start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("end", end.Format(time.RFC3339))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Bars []Bar `json:"bars"`
	}
	endpoint := c.dataBaseURL + "/v2/stocks/" + url.PathEscape(symbol) + "/bars?" + params.Encode()
	if err := c.do(http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
	}
	return resp.Bars, nil
}
