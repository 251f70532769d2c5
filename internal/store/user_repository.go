package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/domain"
)

// UserRepository reads the credential fields of the users table. User
// management itself lives outside the core.
type UserRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, log zerolog.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: log.With().Str("repo", "user").Logger(),
	}
}

// GetBrokerCredentials returns a user's broker credentials. Both fields
// empty means the user has not connected a broker; that is not an error.
func (r *UserRepository) GetBrokerCredentials(userID int64) (domain.BrokerCredentials, error) {
	creds := domain.BrokerCredentials{UserID: userID}

	query := `SELECT alpaca_api_key, alpaca_api_secret FROM users WHERE id = ?`

	var key, secret sql.NullString
	err := r.db.QueryRow(query, userID).Scan(&key, &secret)
	if errors.Is(err, sql.ErrNoRows) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("failed to get broker credentials: %w", err)
	}

	creds.APIKey = key.String
	creds.APISecret = secret.String
	return creds, nil
}

// TotalCapital returns the user's total capital ceiling.
func (r *UserRepository) TotalCapital(userID int64) (float64, error) {
	var total float64
	err := r.db.QueryRow(`SELECT total_capital FROM users WHERE id = ?`, userID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get total capital: %w", err)
	}
	return total, nil
}
