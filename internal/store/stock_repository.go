package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
)

const stockColumns = `ticker, sector, price, pe_ratio, pb_ratio, roe, profit_margin, debt_to_equity, dividend_yield, dividend_growth_5y, market_cap, avg_daily_volume, last_updated`

// StockRepository handles stock, price-history and sentiment-history operations
type StockRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *sql.DB, log zerolog.Logger) *StockRepository {
	return &StockRepository{
		db:  db,
		log: log.With().Str("repo", "stock").Logger(),
	}
}

// Upsert inserts or replaces a stock row keyed on ticker.
func (r *StockRepository) Upsert(stock domain.Stock) error {
	if stock.Ticker == "" {
		return fmt.Errorf("failed to upsert stock: ticker is required")
	}
	if stock.Price < 0 {
		return fmt.Errorf("failed to upsert stock %s: price must be >= 0", stock.Ticker)
	}

	query := `
		INSERT INTO stocks
		(ticker, sector, price, pe_ratio, pb_ratio, roe, profit_margin, debt_to_equity,
		 dividend_yield, dividend_growth_5y, market_cap, avg_daily_volume, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			sector = excluded.sector,
			price = excluded.price,
			pe_ratio = excluded.pe_ratio,
			pb_ratio = excluded.pb_ratio,
			roe = excluded.roe,
			profit_margin = excluded.profit_margin,
			debt_to_equity = excluded.debt_to_equity,
			dividend_yield = excluded.dividend_yield,
			dividend_growth_5y = excluded.dividend_growth_5y,
			market_cap = excluded.market_cap,
			avg_daily_volume = excluded.avg_daily_volume,
			last_updated = excluded.last_updated
	`

	f := stock.Fundamentals
	_, err := r.db.Exec(query,
		strings.ToUpper(strings.TrimSpace(stock.Ticker)),
		stock.Sector,
		stock.Price,
		nullFloat64Ptr(f.PERatio),
		nullFloat64Ptr(f.PBRatio),
		nullFloat64Ptr(f.ROE),
		nullFloat64Ptr(f.ProfitMargin),
		nullFloat64Ptr(f.DebtToEquity),
		nullFloat64Ptr(f.DividendYield),
		nullFloat64Ptr(f.DivGrowth5Y),
		nullFloat64Ptr(f.MarketCap),
		nullFloat64Ptr(f.AvgDailyVolume),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", stock.Ticker, err)
	}

	return nil
}

// GetByTicker retrieves one stock without history. Returns (nil, nil) when
// not found.
func (r *StockRepository) GetByTicker(ticker string) (*domain.Stock, error) {
	query := "SELECT " + stockColumns + " FROM stocks WHERE ticker = ?"

	stock, err := r.scanStock(r.db.QueryRow(query, strings.ToUpper(strings.TrimSpace(ticker))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return stock, nil
}

// Snapshot loads every stock row keyed by ticker, without price history.
func (r *StockRepository) Snapshot() (map[string]domain.Stock, error) {
	query := "SELECT " + stockColumns + " FROM stocks ORDER BY ticker"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load stocks snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]domain.Stock)
	for rows.Next() {
		stock, err := r.scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		snapshot[stock.Ticker] = *stock
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stocks: %w", err)
	}

	return snapshot, nil
}

// UpdateFactorScores persists the factor-scoring stage output for a ticker.
func (r *StockRepository) UpdateFactorScores(ticker string, scores domain.FactorScores) error {
	query := `
		UPDATE stocks
		SET momentum_score = ?, value_score = ?, quality_score = ?,
		    dividend_score = ?, volatility_score = ?, composite_score = ?,
		    last_updated = ?
		WHERE ticker = ?
	`

	_, err := r.db.Exec(query,
		nullFloat64Ptr(scores.Momentum),
		nullFloat64Ptr(scores.Value),
		nullFloat64Ptr(scores.Quality),
		nullFloat64Ptr(scores.Dividend),
		nullFloat64Ptr(scores.Volatility),
		scores.Composite,
		time.Now().Format(time.RFC3339),
		strings.ToUpper(strings.TrimSpace(ticker)),
	)
	if err != nil {
		return fmt.Errorf("failed to update factor scores for %s: %w", ticker, err)
	}

	return nil
}

// AddPriceBar upserts one daily bar for a ticker.
func (r *StockRepository) AddPriceBar(ticker, date string, open, high, low, close, volume float64) error {
	query := `
		INSERT INTO price_history (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume
	`
	_, err := r.db.Exec(query, strings.ToUpper(strings.TrimSpace(ticker)), date, open, high, low, close, volume)
	if err != nil {
		return fmt.Errorf("failed to add price bar for %s: %w", ticker, err)
	}
	return nil
}

// PriceHistory loads up to `limit` trailing daily closes (plus highs and
// lows) for a ticker, ordered oldest first.
func (r *StockRepository) PriceHistory(ticker string, limit int) (closes, highs, lows []float64, err error) {
	if limit <= 0 {
		limit = 400
	}

	query := `
		SELECT close, high, low FROM (
			SELECT date, close, high, low FROM price_history
			WHERE ticker = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC
	`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(ticker)), limit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load price history for %s: %w", ticker, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c float64
		var h, l sql.NullFloat64
		if err := rows.Scan(&c, &h, &l); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		closes = append(closes, c)
		highs = append(highs, h.Float64)
		lows = append(lows, l.Float64)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to iterate price history: %w", err)
	}

	return closes, highs, lows, nil
}

// AddSentimentReading upserts one daily sentiment row for a ticker.
func (r *StockRepository) AddSentimentReading(ticker, date string, news, social *float64, combined, velocity float64) error {
	query := `
		INSERT INTO sentiment_history (ticker, date, news_score, social_score, combined_score, velocity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			news_score = excluded.news_score, social_score = excluded.social_score,
			combined_score = excluded.combined_score, velocity = excluded.velocity
	`
	_, err := r.db.Exec(query,
		strings.ToUpper(strings.TrimSpace(ticker)), date,
		nullFloat64Ptr(news), nullFloat64Ptr(social), combined, velocity,
	)
	if err != nil {
		return fmt.Errorf("failed to add sentiment reading for %s: %w", ticker, err)
	}
	return nil
}

// SentimentSeries loads the trailing combined-sentiment series for a
// ticker, oldest first, plus the latest full reading.
func (r *StockRepository) SentimentSeries(ticker string, lookbackDays int) ([]float64, *domain.SentimentInput, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}

	query := `
		SELECT news_score, social_score, combined_score, velocity FROM (
			SELECT date, news_score, social_score, combined_score, velocity
			FROM sentiment_history
			WHERE ticker = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC
	`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(ticker)), lookbackDays)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sentiment series for %s: %w", ticker, err)
	}
	defer rows.Close()

	var series []float64
	var latest *domain.SentimentInput
	for rows.Next() {
		var news, social sql.NullFloat64
		var combined, velocity float64
		if err := rows.Scan(&news, &social, &combined, &velocity); err != nil {
			return nil, nil, fmt.Errorf("failed to scan sentiment row: %w", err)
		}
		series = append(series, combined)
		latest = &domain.SentimentInput{
			Ticker:      strings.ToUpper(strings.TrimSpace(ticker)),
			NewsScore:   floatPtr(news),
			SocialScore: floatPtr(social),
			Combined:    combined,
			Velocity:    velocity,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate sentiment series: %w", err)
	}

	return series, latest, nil
}

func (r *StockRepository) scanStock(row rowScanner) (*domain.Stock, error) {
	var (
		stock       domain.Stock
		pe          sql.NullFloat64
		pb          sql.NullFloat64
		roe         sql.NullFloat64
		margin      sql.NullFloat64
		de          sql.NullFloat64
		yield       sql.NullFloat64
		growth      sql.NullFloat64
		mcap        sql.NullFloat64
		volume      sql.NullFloat64
		lastUpdated string
	)

	err := row.Scan(
		&stock.Ticker,
		&stock.Sector,
		&stock.Price,
		&pe, &pb, &roe, &margin, &de, &yield, &growth, &mcap, &volume,
		&lastUpdated,
	)
	if err != nil {
		return nil, err
	}

	stock.Fundamentals = domain.Fundamentals{
		PERatio:        floatPtr(pe),
		PBRatio:        floatPtr(pb),
		ROE:            floatPtr(roe),
		ProfitMargin:   floatPtr(margin),
		DebtToEquity:   floatPtr(de),
		DividendYield:  floatPtr(yield),
		DivGrowth5Y:    floatPtr(growth),
		MarketCap:      floatPtr(mcap),
		AvgDailyVolume: floatPtr(volume),
	}
	stock.LastUpdated = parseTime(lastUpdated)

	return &stock, nil
}
