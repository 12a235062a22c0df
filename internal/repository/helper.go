package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// DefaultUpdateBatchSize is the number of rows written per SQL transaction when
// caching usd values.
const DefaultUpdateBatchSize = 20000

// updateExactUsdValues writes usd values into table in batches of batchSize rows,
// one SQL transaction per batch. Rows of other users are never touched.
func updateExactUsdValues(ctx context.Context, db *sql.DB, table, userID string, updates []model.UsdValueUpdate, batchSize int) error {
	if len(updates) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultUpdateBatchSize
	}

	query := `UPDATE ` + table + ` SET exact_usd_value = ? WHERE id = ? AND user_id = ?`

	for start := 0; start < len(updates); start += batchSize {
		end := min(start+batchSize, len(updates))

		if err := updateBatch(ctx, db, query, userID, updates[start:end]); err != nil {
			return fmt.Errorf("failed to update %s batch %d-%d: %w", table, start, end, err)
		}
	}

	return nil
}

func updateBatch(ctx context.Context, db *sql.DB, query, userID string, batch []model.UsdValueUpdate) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, u := range batch {
		if _, err := stmt.ExecContext(ctx, u.ExactUsdValue.String(), u.ID, userID); err != nil {
			return fmt.Errorf("failed to update record %d: %w", u.ID, err)
		}
	}

	return tx.Commit()
}
