package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// MovementRepository provides data access methods for the movements table
// (deposits and withdrawals).
type MovementRepository struct {
	db *sql.DB
}

// NewMovementRepository creates a new MovementRepository with the provided database connection.
func NewMovementRepository(db *sql.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// GetMovements retrieves all movements of a user updated within [start, end] (epoch ms, inclusive),
// sorted by update time in descending order.
func (s *MovementRepository) GetMovements(ctx context.Context, userID string, start, end int64) ([]model.Movement, error) {
	query := `
		SELECT id, user_id, currency, mts_updated, amount, exact_usd_value
		FROM movements
		WHERE user_id = ?
		AND COALESCE(mts_updated, 0) >= ?
		AND COALESCE(mts_updated, 0) <= ?
		ORDER BY mts_updated DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements table: %w", err)
	}
	defer rows.Close()

	movements := []model.Movement{}

	for rows.Next() {
		var mtsUpdated sql.NullInt64
		var m model.Movement

		err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.Currency,
			&mtsUpdated,
			&m.Amount,
			&m.ExactUsdValue,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movements table results: %w", err)
		}
		if mtsUpdated.Valid {
			m.MtsUpdated = mtsUpdated.Int64
		}

		movements = append(movements, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating movements table: %w", err)
	}

	return movements, nil
}

// UpdateExactUsdValues caches resolved usd values on the user's movements.
func (s *MovementRepository) UpdateExactUsdValues(ctx context.Context, userID string, updates []model.UsdValueUpdate, batchSize int) error {
	return updateExactUsdValues(ctx, s.db, "movements", userID, updates, batchSize)
}
