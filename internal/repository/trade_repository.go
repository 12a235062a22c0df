package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// TradeRepository provides data access methods for the trades table.
// It retrieves a user's trades within a time window and caches resolved usd values on them.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository creates a new TradeRepository with the provided database connection.
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// GetTrades retrieves all trades of a user created within [start, end] (epoch ms, inclusive).
// Trades are sorted by creation time in descending order.
//
// Trades with a missing timestamp are returned with MtsCreate == 0 only when start is 0,
// leaving the decision to drop them to the caller.
func (s *TradeRepository) GetTrades(ctx context.Context, userID string, start, end int64) ([]model.Trade, error) {
	query := `
		SELECT id, user_id, symbol, mts_create, exec_amount, exec_price, exact_usd_value
		FROM trades
		WHERE user_id = ?
		AND COALESCE(mts_create, 0) >= ?
		AND COALESCE(mts_create, 0) <= ?
		ORDER BY mts_create DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades table: %w", err)
	}
	defer rows.Close()

	trades := []model.Trade{}

	for rows.Next() {
		var mtsCreate sql.NullInt64
		var t model.Trade

		err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Symbol,
			&mtsCreate,
			&t.ExecAmount,
			&t.ExecPrice,
			&t.ExactUsdValue,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trades table results: %w", err)
		}

		// mts_create is nullable
		if mtsCreate.Valid {
			t.MtsCreate = mtsCreate.Int64
		}

		trades = append(trades, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades table: %w", err)
	}

	return trades, nil
}

// UpdateExactUsdValues caches resolved usd values on the user's trades,
// writing at most batchSize rows per SQL transaction.
func (s *TradeRepository) UpdateExactUsdValues(ctx context.Context, userID string, updates []model.UsdValueUpdate, batchSize int) error {
	return updateExactUsdValues(ctx, s.db, "trades", userID, updates, batchSize)
}
