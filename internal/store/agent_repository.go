package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
)

// agentColumns is the list of columns for the agents table.
// Used to avoid SELECT * which can break when schema changes.
// Column order must match scanAgent().
const agentColumns = `id, user_id, name, persona, status, strategy_type, strategy_params, risk_params, allocated_capital, cash_balance, time_horizon_days, created_at, end_date`

// AgentRepository handles agent database operations
type AgentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *sql.DB, log zerolog.Logger) *AgentRepository {
	return &AgentRepository{
		db:  db,
		log: log.With().Str("repo", "agent").Logger(),
	}
}

// Create inserts a new agent row and returns the assigned id.
func (r *AgentRepository) Create(agent domain.Agent) (int64, error) {
	if err := agent.Validate(); err != nil {
		return 0, fmt.Errorf("failed to create agent: %w", err)
	}

	strategyParams, err := encodeJSON(agent.StrategyParams)
	if err != nil {
		return 0, fmt.Errorf("failed to encode strategy_params: %w", err)
	}
	riskParams, err := encodeJSON(agent.RiskParams)
	if err != nil {
		return 0, fmt.Errorf("failed to encode risk_params: %w", err)
	}

	query := `
		INSERT INTO agents
		(user_id, name, persona, status, strategy_type, strategy_params, risk_params,
		 allocated_capital, cash_balance, time_horizon_days, created_at, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Exec(query,
		agent.UserID,
		agent.Name,
		agent.Persona,
		string(agent.Status),
		agent.StrategyType,
		strategyParams,
		riskParams,
		agent.AllocatedCapital,
		agent.CashBalance,
		agent.TimeHorizonDays,
		time.Now().Format(time.RFC3339),
		nullTimePtr(agent.EndDate),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create agent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get agent id: %w", err)
	}

	r.log.Info().
		Int64("agent_id", id).
		Str("name", agent.Name).
		Str("strategy", agent.StrategyType).
		Msg("Agent created")

	return id, nil
}

// GetByID retrieves an agent by id. Returns (nil, nil) when not found.
func (r *AgentRepository) GetByID(id int64) (*domain.Agent, error) {
	query := "SELECT " + agentColumns + " FROM agents WHERE id = ?"

	agent, err := r.scanAgent(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent by id: %w", err)
	}
	return agent, nil
}

// ListActive returns all agents with status 'active', ordered by id.
func (r *AgentRepository) ListActive() ([]domain.Agent, error) {
	return r.listByStatus(domain.AgentStatusActive)
}

func (r *AgentRepository) listByStatus(status domain.AgentStatus) ([]domain.Agent, error) {
	query := "SELECT " + agentColumns + " FROM agents WHERE status = ? ORDER BY id"

	rows, err := r.db.Query(query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := r.scanAgentFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agents: %w", err)
	}

	return agents, nil
}

// UpdateStatus transitions an agent's status and records the transition.
func (r *AgentRepository) UpdateStatus(id int64, status domain.AgentStatus) error {
	switch status {
	case domain.AgentStatusActive, domain.AgentStatusPaused,
		domain.AgentStatusStopped, domain.AgentStatusCompleted:
	default:
		return fmt.Errorf("invalid agent status %q", status)
	}

	_, err := r.db.Exec("UPDATE agents SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}

	r.log.Info().
		Int64("agent_id", id).
		Str("status", string(status)).
		Msg("Agent status updated")

	return nil
}

// UpdateCashBalance persists a new cash balance, clamped to >= 0.
func (r *AgentRepository) UpdateCashBalance(id int64, cashBalance float64) error {
	if cashBalance < 0 {
		cashBalance = 0
	}

	_, err := r.db.Exec("UPDATE agents SET cash_balance = ? WHERE id = ?", cashBalance, id)
	if err != nil {
		return fmt.Errorf("failed to update agent cash balance: %w", err)
	}

	return nil
}

// Delete removes an agent; positions and activity cascade via foreign keys.
func (r *AgentRepository) Delete(id int64) error {
	if _, err := r.db.Exec("DELETE FROM agents WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *AgentRepository) scanAgent(row rowScanner) (*domain.Agent, error) {
	var (
		agent          domain.Agent
		status         string
		strategyParams string
		riskParams     string
		createdAt      string
		endDate        sql.NullString
	)

	err := row.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.Name,
		&agent.Persona,
		&status,
		&agent.StrategyType,
		&strategyParams,
		&riskParams,
		&agent.AllocatedCapital,
		&agent.CashBalance,
		&agent.TimeHorizonDays,
		&createdAt,
		&endDate,
	)
	if err != nil {
		return nil, err
	}

	agent.Status = domain.AgentStatus(status)
	agent.CreatedAt = parseTime(createdAt)
	agent.EndDate = timePtr(endDate)

	agent.StrategyParams, err = domain.DecodeStrategyParams([]byte(strategyParams))
	if err != nil {
		return nil, fmt.Errorf("agent %d: %w", agent.ID, err)
	}
	agent.RiskParams, err = domain.DecodeRiskParams([]byte(riskParams))
	if err != nil {
		return nil, fmt.Errorf("agent %d: %w", agent.ID, err)
	}

	return &agent, nil
}

func (r *AgentRepository) scanAgentFromRows(rows *sql.Rows) (*domain.Agent, error) {
	return r.scanAgent(rows)
}
