package model

import "github.com/shopspring/decimal"

// TaxLot is the realized gain or loss of one sale leg.
// Proceeds and Cost only cover the filled part of the sale; a sale that found no
// matching acquisition carries zero cost and proceeds and a nil MtsAcquired.
type TaxLot struct {
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	MtsAcquired *int64          `json:"mtsAcquired"`
	MtsSold     int64           `json:"mtsSold"`
	Proceeds    decimal.Decimal `json:"proceeds"`
	Cost        decimal.Decimal `json:"cost"`
	GainOrLoss  decimal.Decimal `json:"gainOrLoss"`
}
