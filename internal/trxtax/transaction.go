package trxtax

import (
	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// TransactionKind tags where a Transaction came from.
type TransactionKind uint8

const (
	KindTrade TransactionKind = iota + 1
	KindMovement
	// KindCarriedBuyLot is the unfilled remainder of a buy leg from the previous
	// period. Its payload is Transaction.Carried.
	KindCarriedBuyLot
)

func (k TransactionKind) String() string {
	switch k {
	case KindTrade:
		return "TRADE"
	case KindMovement:
		return "MOVEMENT"
	case KindCarriedBuyLot:
		return "CARRIED_BUY_LOT"
	default:
		return "UNKNOWN"
	}
}

// Leg identifies one side of a pair.
type Leg uint8

const (
	LegBase Leg = iota + 1
	LegQuote
)

// CarriedLot is the payload of a KindCarriedBuyLot transaction.
type CarriedLot struct {
	// Leg is the side of the source transaction the lot was bought on.
	Leg Leg
	// SourceExecAmount and SourceExecPrice are the source record's values, used to
	// derive the usd value cached back on it.
	SourceExecAmount decimal.Decimal
	SourceExecPrice  decimal.Decimal
	// ProceedsForBuy are the proceeds of sales already matched against the lot.
	ProceedsForBuy decimal.Decimal
}

// Transaction is the uniform representation of a trade, a movement or a carried lot.
//
// ExecPrice is the price of FirstSymb denominated in LastSymb; zero means unknown.
// The usd prices are resolved lazily by the Triangulator.
type Transaction struct {
	SourceID   int64
	Kind       TransactionKind
	SourceKind TransactionKind

	Symbol    string
	FirstSymb string
	LastSymb  string
	MtsCreate int64

	ExecAmount decimal.Decimal
	ExecPrice  decimal.Decimal

	FirstSymbPriceUsd decimal.NullDecimal
	LastSymbPriceUsd  decimal.NullDecimal
	ExactUsdValue     decimal.NullDecimal

	// UsdFromCache is set when the usd value came from a previous run.
	UsdFromCache bool
	// UsdResolved is set when the usd prices were triangulated in this run.
	UsdResolved bool

	Carried *CarriedLot
}

// HasUsdPrices reports whether both usd prices are known.
func (t *Transaction) HasUsdPrices() bool {
	return t.FirstSymbPriceUsd.Valid && t.LastSymbPriceUsd.Valid
}

// Touches reports whether ccy is one of the pair's currencies.
func (t *Transaction) Touches(ccy string) bool {
	return t.FirstSymb == ccy || t.LastSymb == ccy
}

// CacheUpdate returns the usd value to write back on the source record.
// Only values triangulated in this run are written.
func (t *Transaction) CacheUpdate() (model.UsdValueUpdate, bool) {
	if !t.UsdResolved || t.UsdFromCache || !t.FirstSymbPriceUsd.Valid {
		return model.UsdValueUpdate{}, false
	}

	if t.Carried == nil {
		return model.UsdValueUpdate{
			ID:            t.SourceID,
			ExactUsdValue: t.ExecAmount.Mul(t.FirstSymbPriceUsd.Decimal),
		}, true
	}

	// A carried lot is always "<asset>:USD", so its first symbol price is the
	// price of the source leg's asset.
	firstPriceUsd := t.FirstSymbPriceUsd.Decimal
	if t.Carried.Leg == LegQuote {
		firstPriceUsd = firstPriceUsd.Mul(t.Carried.SourceExecPrice)
	}

	return model.UsdValueUpdate{
		ID:            t.SourceID,
		ExactUsdValue: t.Carried.SourceExecAmount.Mul(firstPriceUsd),
	}, true
}

// lotLeg is the sale or buy side of a transaction as seen by the matcher.
type lotLeg struct {
	asset  string
	leg    Leg
	amount decimal.Decimal
	price  decimal.NullDecimal
}

// saleLeg returns the asset disposed of by the transaction, if any.
//
// A negative amount sells the base. A positive amount against a non-forex quote
// sells the quote. Carried lots and forex assets never sell.
func (t *Transaction) saleLeg() (lotLeg, bool) {
	if t.Kind == KindCarriedBuyLot {
		return lotLeg{}, false
	}

	if t.ExecAmount.IsNegative() && !IsForex(t.FirstSymb) {
		return lotLeg{
			asset:  t.FirstSymb,
			leg:    LegBase,
			amount: t.ExecAmount.Abs(),
			price:  t.FirstSymbPriceUsd,
		}, true
	}

	if t.ExecAmount.IsPositive() && !IsForex(t.LastSymb) {
		return lotLeg{
			asset:  t.LastSymb,
			leg:    LegQuote,
			amount: t.ExecAmount.Mul(t.ExecPrice),
			price:  t.LastSymbPriceUsd,
		}, true
	}

	return lotLeg{}, false
}

// buyLeg returns the asset acquired by the transaction, if any.
//
// A positive amount buys the base. A negative amount against a non-forex quote
// acquires the quote. Forex assets never form a lot.
func (t *Transaction) buyLeg() (lotLeg, bool) {
	if t.ExecAmount.IsPositive() && !IsForex(t.FirstSymb) {
		return lotLeg{
			asset:  t.FirstSymb,
			leg:    LegBase,
			amount: t.ExecAmount,
			price:  t.FirstSymbPriceUsd,
		}, true
	}

	if t.Kind != KindCarriedBuyLot && t.ExecAmount.IsNegative() && !IsForex(t.LastSymb) {
		return lotLeg{
			asset:  t.LastSymb,
			leg:    LegQuote,
			amount: t.ExecAmount.Abs().Mul(t.ExecPrice),
			price:  t.LastSymbPriceUsd,
		}, true
	}

	return lotLeg{}, false
}

// MatchState is the lot matching bookkeeping of one transaction. States live in an
// arena parallel to the transaction slice and reference counter-transactions by index.
type MatchState struct {
	SaleFilled     decimal.Decimal
	BuyFilled      decimal.Decimal
	Cost           decimal.Decimal
	Proceeds       decimal.Decimal
	ProceedsForBuy decimal.Decimal
	BuyRefs        []int
	SaleRefs       []int
	MtsAcquired    int64
}
