package model

import "github.com/shopspring/decimal"

// Trade is a raw exchange trade as stored by the data-sync engine.
// MtsCreate is epoch milliseconds; zero means the timestamp was missing.
// ExactUsdValue is the cached USD value of ExecAmount written back by a previous report run.
type Trade struct {
	ID            int64               `json:"id"`
	UserID        string              `json:"userId"`
	Symbol        string              `json:"symbol"`
	MtsCreate     int64               `json:"mtsCreate"`
	ExecAmount    decimal.Decimal     `json:"execAmount"`
	ExecPrice     decimal.Decimal     `json:"execPrice"`
	ExactUsdValue decimal.NullDecimal `json:"exactUsdValue"`
}

// Movement is a raw deposit (positive amount) or withdrawal (negative amount).
type Movement struct {
	ID            int64               `json:"id"`
	UserID        string              `json:"userId"`
	Currency      string              `json:"currency"`
	MtsUpdated    int64               `json:"mtsUpdated"`
	Amount        decimal.Decimal     `json:"amount"`
	ExactUsdValue decimal.NullDecimal `json:"exactUsdValue"`
}

// UsdValueUpdate caches a resolved USD value on a trade or movement record.
type UsdValueUpdate struct {
	ID            int64
	ExactUsdValue decimal.Decimal
}
