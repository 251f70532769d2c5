package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
)

const activityColumns = `id, agent_id, type, summary, details, created_at`

// ActivityRepository handles agent activity (audit trail) operations
type ActivityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *sql.DB, log zerolog.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:  db,
		log: log.With().Str("repo", "activity").Logger(),
	}
}

// Record inserts one activity row. Details may be nil.
func (r *ActivityRepository) Record(agentID int64, activityType domain.ActivityType, summary string, details interface{}) error {
	detailsJSON := "{}"
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
		detailsJSON = string(b)
	}

	query := `
		INSERT INTO agent_activity (agent_id, type, summary, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		agentID,
		string(activityType),
		summary,
		detailsJSON,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}

	return nil
}

// LatestByType returns the most recent activity of the given type for an
// agent, or (nil, nil) when the agent has none.
func (r *ActivityRepository) LatestByType(agentID int64, activityType domain.ActivityType) (*domain.Activity, error) {
	query := "SELECT " + activityColumns + ` FROM agent_activity
		WHERE agent_id = ? AND type = ?
		ORDER BY created_at DESC LIMIT 1`

	activity, err := r.scanActivity(r.db.QueryRow(query, agentID, string(activityType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest activity: %w", err)
	}
	return activity, nil
}

// ListRecent returns the newest activity rows for an agent.
func (r *ActivityRepository) ListRecent(agentID int64, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + activityColumns + ` FROM agent_activity
		WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.Query(query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		activity, err := r.scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity: %w", err)
	}

	return activities, nil
}

func (r *ActivityRepository) scanActivity(row rowScanner) (*domain.Activity, error) {
	var (
		activity     domain.Activity
		activityType string
		details      string
		createdAt    string
	)

	err := row.Scan(
		&activity.ID,
		&activity.AgentID,
		&activityType,
		&activity.Summary,
		&details,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	activity.Type = domain.ActivityType(activityType)
	activity.Details = json.RawMessage(details)
	activity.CreatedAt = parseTime(createdAt)

	return &activity, nil
}
