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

// positionColumns is the list of columns for the positions table.
// Column order must match scanPosition().
const positionColumns = `id, agent_id, ticker, side, status, shares, entry_price, entry_date, entry_rationale, current_price, unrealized_pl, unrealized_pct, stop_loss_price, target_price, max_holding_days, exit_price, exit_date, exit_rationale, realized_pl, realized_pct, entry_order_id, exit_order_id, stop_order_id, target_order_id`

// PositionRepository handles position database operations
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// Create inserts a new position row and returns the assigned id.
func (r *PositionRepository) Create(pos domain.Position) (int64, error) {
	if err := pos.Validate(); err != nil {
		return 0, fmt.Errorf("failed to create position: %w", err)
	}

	query := `
		INSERT INTO positions
		(agent_id, ticker, side, status, shares, entry_price, entry_date, entry_rationale,
		 current_price, unrealized_pl, unrealized_pct, stop_loss_price, target_price,
		 max_holding_days, entry_order_id, stop_order_id, target_order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Exec(query,
		pos.AgentID,
		strings.ToUpper(strings.TrimSpace(pos.Ticker)),
		string(pos.Side),
		string(pos.Status),
		pos.Shares,
		pos.EntryPrice,
		pos.EntryDate.Format(time.RFC3339),
		pos.EntryRationale,
		pos.CurrentPrice,
		pos.UnrealizedPL,
		pos.UnrealizedPct,
		nullFloat64Ptr(pos.StopLossPrice),
		nullFloat64Ptr(pos.TargetPrice),
		nullIntPtr(pos.MaxHoldingDays),
		pos.EntryOrderID,
		pos.StopOrderID,
		pos.TargetOrderID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create position: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get position id: %w", err)
	}

	r.log.Info().
		Int64("position_id", id).
		Int64("agent_id", pos.AgentID).
		Str("ticker", pos.Ticker).
		Float64("shares", pos.Shares).
		Msg("Position created")

	return id, nil
}

// GetByID retrieves a position by id. Returns (nil, nil) when not found.
func (r *PositionRepository) GetByID(id int64) (*domain.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE id = ?"

	pos, err := r.scanPosition(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position by id: %w", err)
	}
	return pos, nil
}

// ListOpenByAgent returns all open positions for an agent, ordered by ticker.
func (r *PositionRepository) ListOpenByAgent(agentID int64) ([]domain.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE agent_id = ? AND status = 'open' ORDER BY ticker"

	rows, err := r.db.Query(query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ListOpenByAgentTicker returns open positions for one agent/ticker pair.
func (r *PositionRepository) ListOpenByAgentTicker(agentID int64, ticker string) ([]domain.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE agent_id = ? AND ticker = ? AND status = 'open'"

	rows, err := r.db.Query(query, agentID, strings.ToUpper(strings.TrimSpace(ticker)))
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions by ticker: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// UpdateShares updates the share count and bracket order ids on an open row.
func (r *PositionRepository) UpdateShares(id int64, shares float64, stopOrderID, targetOrderID string) error {
	query := `
		UPDATE positions
		SET shares = ?, stop_order_id = ?, target_order_id = ?
		WHERE id = ? AND status = 'open'
	`
	if _, err := r.db.Exec(query, shares, stopOrderID, targetOrderID, id); err != nil {
		return fmt.Errorf("failed to update position shares: %w", err)
	}
	return nil
}

// UpdateCurrentPrice refreshes the live price and unrealized P&L fields.
func (r *PositionRepository) UpdateCurrentPrice(id int64, price, unrealizedPL, unrealizedPct float64) error {
	query := `
		UPDATE positions
		SET current_price = ?, unrealized_pl = ?, unrealized_pct = ?
		WHERE id = ? AND status = 'open'
	`
	if _, err := r.db.Exec(query, price, unrealizedPL, unrealizedPct, id); err != nil {
		return fmt.Errorf("failed to update position price: %w", err)
	}
	return nil
}

// Close transitions a position to closed with full exit bookkeeping.
func (r *PositionRepository) Close(id int64, exitPrice float64, exitDate time.Time, exitRationale string, realizedPL, realizedPct float64, exitOrderID string) error {
	query := `
		UPDATE positions
		SET status = 'closed', exit_price = ?, exit_date = ?, exit_rationale = ?,
		    realized_pl = ?, realized_pct = ?, exit_order_id = ?,
		    stop_order_id = '', target_order_id = ''
		WHERE id = ? AND status = 'open'
	`

	res, err := r.db.Exec(query,
		exitPrice,
		exitDate.Format(time.RFC3339),
		exitRationale,
		realizedPL,
		realizedPct,
		exitOrderID,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("failed to close position %d: not open", id)
	}

	r.log.Info().
		Int64("position_id", id).
		Float64("exit_price", exitPrice).
		Float64("realized_pl", realizedPL).
		Str("reason", exitRationale).
		Msg("Position closed")

	return nil
}

func (r *PositionRepository) collect(rows *sql.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		pos, err := r.scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return positions, nil
}

func (r *PositionRepository) scanPosition(row rowScanner) (*domain.Position, error) {
	var (
		pos            domain.Position
		side           string
		status         string
		entryDate      string
		stopLoss       sql.NullFloat64
		target         sql.NullFloat64
		maxHoldingDays sql.NullInt64
		exitPrice      sql.NullFloat64
		exitDate       sql.NullString
		realizedPL     sql.NullFloat64
		realizedPct    sql.NullFloat64
	)

	err := row.Scan(
		&pos.ID,
		&pos.AgentID,
		&pos.Ticker,
		&side,
		&status,
		&pos.Shares,
		&pos.EntryPrice,
		&entryDate,
		&pos.EntryRationale,
		&pos.CurrentPrice,
		&pos.UnrealizedPL,
		&pos.UnrealizedPct,
		&stopLoss,
		&target,
		&maxHoldingDays,
		&exitPrice,
		&exitDate,
		&pos.ExitRationale,
		&realizedPL,
		&realizedPct,
		&pos.EntryOrderID,
		&pos.ExitOrderID,
		&pos.StopOrderID,
		&pos.TargetOrderID,
	)
	if err != nil {
		return nil, err
	}

	pos.Side = domain.PositionSide(side)
	pos.Status = domain.PositionStatus(status)
	pos.EntryDate = parseTime(entryDate)
	pos.StopLossPrice = floatPtr(stopLoss)
	pos.TargetPrice = floatPtr(target)
	pos.MaxHoldingDays = intPtr(maxHoldingDays)
	pos.ExitPrice = floatPtr(exitPrice)
	pos.ExitDate = timePtr(exitDate)
	pos.RealizedPL = floatPtr(realizedPL)
	pos.RealizedPct = floatPtr(realizedPct)

	return &pos, nil
}
