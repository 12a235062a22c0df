package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// TradeBuilder provides a fluent interface for creating test trades.
//
// Example usage:
//
//	// Simple creation with defaults (buy 1 BTC at 20000 USD)
//	trade := testutil.NewTrade(userID).Build(t, db)
//
//	// Customized trade
//	trade := testutil.NewTrade(userID).
//	    WithSymbol("tETHBTC").
//	    WithAmount("-2").
//	    WithPrice("0.05").
//	    At(testutil.Mts(2023, time.March, 3)).
//	    Build(t, db)
type TradeBuilder struct {
	UserID        string
	Symbol        string
	MtsCreate     int64
	ExecAmount    decimal.Decimal
	ExecPrice     decimal.Decimal
	ExactUsdValue decimal.NullDecimal
}

// NewTrade creates a TradeBuilder with sensible defaults.
func NewTrade(userID string) *TradeBuilder {
	return &TradeBuilder{
		UserID:     userID,
		Symbol:     "tBTCUSD",
		MtsCreate:  Mts(2023, time.January, 1),
		ExecAmount: decimal.NewFromInt(1),
		ExecPrice:  decimal.NewFromInt(20000),
	}
}

// WithSymbol sets the pair symbol.
func (b *TradeBuilder) WithSymbol(symbol string) *TradeBuilder {
	b.Symbol = symbol
	return b
}

// WithAmount sets the signed executed amount.
func (b *TradeBuilder) WithAmount(amount string) *TradeBuilder {
	b.ExecAmount = decimal.RequireFromString(amount)
	return b
}

// WithPrice sets the executed price.
func (b *TradeBuilder) WithPrice(price string) *TradeBuilder {
	b.ExecPrice = decimal.RequireFromString(price)
	return b
}

// WithCachedUsdValue sets a usd value as written back by a previous report run.
func (b *TradeBuilder) WithCachedUsdValue(value string) *TradeBuilder {
	b.ExactUsdValue = decimal.NewNullDecimal(decimal.RequireFromString(value))
	return b
}

// At sets the creation time in epoch milliseconds.
func (b *TradeBuilder) At(mts int64) *TradeBuilder {
	b.MtsCreate = mts
	return b
}

// Build creates the trade in the database and returns it.
func (b *TradeBuilder) Build(t *testing.T, db *sql.DB) model.Trade {
	t.Helper()

	query := `
		INSERT INTO trades (user_id, symbol, mts_create, exec_amount, exec_price, exact_usd_value)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := db.Exec(query, b.UserID, b.Symbol, b.MtsCreate, b.ExecAmount.String(), b.ExecPrice.String(), nullDecimalArg(b.ExactUsdValue))
	if err != nil {
		t.Fatalf("Failed to create test trade: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read test trade id: %v", err)
	}

	return model.Trade{
		ID:            id,
		UserID:        b.UserID,
		Symbol:        b.Symbol,
		MtsCreate:     b.MtsCreate,
		ExecAmount:    b.ExecAmount,
		ExecPrice:     b.ExecPrice,
		ExactUsdValue: b.ExactUsdValue,
	}
}

// MovementBuilder provides a fluent interface for creating test deposits and withdrawals.
//
// Example usage:
//
//	deposit := testutil.NewMovement(userID).WithCurrency("ETH").WithAmount("3").Build(t, db)
type MovementBuilder struct {
	UserID        string
	Currency      string
	MtsUpdated    int64
	Amount        decimal.Decimal
	ExactUsdValue decimal.NullDecimal
}

// NewMovement creates a MovementBuilder with sensible defaults (a 1 BTC deposit).
func NewMovement(userID string) *MovementBuilder {
	return &MovementBuilder{
		UserID:     userID,
		Currency:   "BTC",
		MtsUpdated: Mts(2023, time.January, 1),
		Amount:     decimal.NewFromInt(1),
	}
}

// WithCurrency sets the moved currency.
func (b *MovementBuilder) WithCurrency(ccy string) *MovementBuilder {
	b.Currency = ccy
	return b
}

// WithAmount sets the signed amount; negative amounts are withdrawals.
func (b *MovementBuilder) WithAmount(amount string) *MovementBuilder {
	b.Amount = decimal.RequireFromString(amount)
	return b
}

// WithCachedUsdValue sets a usd value as written back by a previous report run.
func (b *MovementBuilder) WithCachedUsdValue(value string) *MovementBuilder {
	b.ExactUsdValue = decimal.NewNullDecimal(decimal.RequireFromString(value))
	return b
}

// At sets the update time in epoch milliseconds.
func (b *MovementBuilder) At(mts int64) *MovementBuilder {
	b.MtsUpdated = mts
	return b
}

// Build creates the movement in the database and returns it.
func (b *MovementBuilder) Build(t *testing.T, db *sql.DB) model.Movement {
	t.Helper()

	query := `
		INSERT INTO movements (user_id, currency, mts_updated, amount, exact_usd_value)
		VALUES (?, ?, ?, ?, ?)
	`

	res, err := db.Exec(query, b.UserID, b.Currency, b.MtsUpdated, b.Amount.String(), nullDecimalArg(b.ExactUsdValue))
	if err != nil {
		t.Fatalf("Failed to create test movement: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read test movement id: %v", err)
	}

	return model.Movement{
		ID:            id,
		UserID:        b.UserID,
		Currency:      b.Currency,
		MtsUpdated:    b.MtsUpdated,
		Amount:        b.Amount,
		ExactUsdValue: b.ExactUsdValue,
	}
}

// Convenience functions

// CreateTrade creates a trade of amount at price on symbol at mts.
//
// Example usage:
//
//	testutil.CreateTrade(t, db, userID, "tBTCUSD", mts, "-2", "33000")
func CreateTrade(t *testing.T, db *sql.DB, userID, symbol string, mts int64, amount, price string) model.Trade {
	t.Helper()
	return NewTrade(userID).WithSymbol(symbol).At(mts).WithAmount(amount).WithPrice(price).Build(t, db)
}

// GetCachedUsdValue reads the cached usd value of a trades or movements row.
func GetCachedUsdValue(t *testing.T, db *sql.DB, table string, id int64) decimal.NullDecimal {
	t.Helper()

	var value sql.NullString
	//nolint:gosec // G202: Table names come from test code only
	if err := db.QueryRow("SELECT exact_usd_value FROM "+table+" WHERE id = ?", id).Scan(&value); err != nil {
		t.Fatalf("Failed to read cached usd value of %s %d: %v", table, id, err)
	}
	if !value.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.RequireFromString(value.String))
}

// Mts returns midnight UTC of the given day in epoch milliseconds.
func Mts(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).UnixMilli()
}

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
