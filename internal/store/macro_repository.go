package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
)

// MacroIndicator is one stored macro-indicator row (HY OAS, VIX, yield
// slope, ...). PreviousValue supports rate-of-change signals.
type MacroIndicator struct {
	AsOf          time.Time
	Name          string
	Value         float64
	PreviousValue *float64
}

// InsiderSignal is one stored per-ticker insider-transaction aggregate.
type InsiderSignal struct {
	Ticker       string
	FilingCount  int
	BuyCount     int
	BuyRatio     float64
	NetSentiment float64
}

// MacroRepository handles macro indicators, insider signals, short
// interest and the persisted overlay state.
type MacroRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMacroRepository creates a new macro repository
func NewMacroRepository(db *sql.DB, log zerolog.Logger) *MacroRepository {
	return &MacroRepository{
		db:  db,
		log: log.With().Str("repo", "macro").Logger(),
	}
}

// UpsertIndicator inserts or updates one indicator keyed on name. The
// prior value rolls into previous_value so rate-of-change is computable.
func (r *MacroRepository) UpsertIndicator(name string, value float64, asOf time.Time) error {
	query := `
		INSERT INTO macro_indicators (indicator_name, value, previous_value, as_of, updated_at)
		VALUES (?, ?, NULL, ?, ?)
		ON CONFLICT(indicator_name) DO UPDATE SET
			previous_value = macro_indicators.value,
			value = excluded.value,
			as_of = excluded.as_of,
			updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query, name, value, asOf.Format(time.RFC3339), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert macro indicator %s: %w", name, err)
	}
	return nil
}

// GetIndicator returns one indicator by name, or (nil, nil) when missing.
func (r *MacroRepository) GetIndicator(name string) (*MacroIndicator, error) {
	query := `SELECT indicator_name, value, previous_value, as_of FROM macro_indicators WHERE indicator_name = ?`

	var (
		ind  MacroIndicator
		prev sql.NullFloat64
		asOf string
	)
	err := r.db.QueryRow(query, name).Scan(&ind.Name, &ind.Value, &prev, &asOf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get macro indicator %s: %w", name, err)
	}

	ind.PreviousValue = floatPtr(prev)
	ind.AsOf = parseTime(asOf)
	return &ind, nil
}

// ListIndicators loads every indicator row keyed by name.
func (r *MacroRepository) ListIndicators() (map[string]MacroIndicator, error) {
	query := `SELECT indicator_name, value, previous_value, as_of FROM macro_indicators`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list macro indicators: %w", err)
	}
	defer rows.Close()

	indicators := make(map[string]MacroIndicator)
	for rows.Next() {
		var (
			ind  MacroIndicator
			prev sql.NullFloat64
			asOf string
		)
		if err := rows.Scan(&ind.Name, &ind.Value, &prev, &asOf); err != nil {
			return nil, fmt.Errorf("failed to scan macro indicator: %w", err)
		}
		ind.PreviousValue = floatPtr(prev)
		ind.AsOf = parseTime(asOf)
		indicators[ind.Name] = ind
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate macro indicators: %w", err)
	}

	return indicators, nil
}

// UpsertInsiderSignal stores one per-ticker insider aggregate.
func (r *MacroRepository) UpsertInsiderSignal(sig InsiderSignal) error {
	query := `
		INSERT INTO insider_signals (ticker, filing_count, buy_count, buy_ratio, net_sentiment, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			filing_count = excluded.filing_count,
			buy_count = excluded.buy_count,
			buy_ratio = excluded.buy_ratio,
			net_sentiment = excluded.net_sentiment,
			updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query,
		strings.ToUpper(strings.TrimSpace(sig.Ticker)),
		sig.FilingCount, sig.BuyCount, sig.BuyRatio, sig.NetSentiment,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert insider signal for %s: %w", sig.Ticker, err)
	}
	return nil
}

// ListInsiderSignals returns every stored insider aggregate.
func (r *MacroRepository) ListInsiderSignals() ([]InsiderSignal, error) {
	query := `SELECT ticker, filing_count, buy_count, buy_ratio, net_sentiment FROM insider_signals`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list insider signals: %w", err)
	}
	defer rows.Close()

	var signals []InsiderSignal
	for rows.Next() {
		var sig InsiderSignal
		if err := rows.Scan(&sig.Ticker, &sig.FilingCount, &sig.BuyCount, &sig.BuyRatio, &sig.NetSentiment); err != nil {
			return nil, fmt.Errorf("failed to scan insider signal: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate insider signals: %w", err)
	}

	return signals, nil
}

// SaveOverlayState persists one overlay computation. One row per run; the
// freshest row is what report generators consult.
func (r *MacroRepository) SaveOverlayState(result domain.OverlayResult, snapshot domain.MacroSnapshot) error {
	signalsJSON, err := encodeJSON(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode overlay signals: %w", err)
	}
	warningsJSON, err := encodeJSON(result.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode overlay warnings: %w", err)
	}

	query := `
		INSERT INTO macro_risk_overlay_state (scale_factor, composite, regime, signals, warnings, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		result.ScaleFactor,
		result.Composite,
		result.Regime,
		signalsJSON,
		warningsJSON,
		result.ComputedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save overlay state: %w", err)
	}

	return nil
}

// LatestOverlayState returns the freshest persisted overlay computation,
// or (nil, nil) when none exists yet.
func (r *MacroRepository) LatestOverlayState() (*domain.OverlayResult, error) {
	query := `
		SELECT scale_factor, composite, regime, warnings, computed_at
		FROM macro_risk_overlay_state
		ORDER BY computed_at DESC LIMIT 1
	`

	var (
		result     domain.OverlayResult
		warnings   string
		computedAt string
	)
	err := r.db.QueryRow(query).Scan(&result.ScaleFactor, &result.Composite, &result.Regime, &warnings, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest overlay state: %w", err)
	}

	if err := json.Unmarshal([]byte(warnings), &result.Warnings); err != nil {
		r.log.Warn().Err(err).Msg("Failed to decode overlay warnings")
	}
	result.ComputedAt = parseTime(computedAt)

	return &result, nil
}
