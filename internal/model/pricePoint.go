package model

import "github.com/shopspring/decimal"

// PricePoint is one historical reference price of a pair, Mts in epoch milliseconds.
type PricePoint struct {
	Mts   int64           `json:"mts"`
	Price decimal.Decimal `json:"price"`
}

// CurrencySynonym is an alternate tradable symbol for a currency whose own market
// was delisted. The synonym's USD price times Multiplier gives the currency's price.
type CurrencySynonym struct {
	Currency   string
	Synonym    string
	Multiplier decimal.Decimal
}
