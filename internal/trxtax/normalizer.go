package trxtax

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

var one = decimal.NewFromInt(1)

// Normalized is the output of Normalize: every usable transaction sorted newest
// first, and the subset still waiting for a usd price.
type Normalized struct {
	All          []*Transaction
	NeedsPricing []*Transaction
}

// Normalize converts raw trades and movements into transactions.
//
// Trades without amount, price or timestamp are dropped, as are forex/forex trades
// and forex movements. An unsplittable pair symbol aborts with
// apperrors.ErrCurrencyPairSeparation.
func Normalize(trades []model.Trade, movements []model.Movement) (*Normalized, error) {
	all := make([]*Transaction, 0, len(trades)+len(movements))

	for _, t := range trades {
		trx, ok, err := NormalizeTrade(t)
		if err != nil {
			return nil, err
		}
		if ok {
			all = append(all, trx)
		}
	}

	for _, m := range movements {
		if trx, ok := NormalizeMovement(m); ok {
			all = append(all, trx)
		}
	}

	n := &Normalized{All: all}
	n.sortAndSplit()

	return n, nil
}

// Merge adds carried lots (or any other transactions) and re-sorts the set.
func (n *Normalized) Merge(trxs []*Transaction) {
	n.All = append(n.All, trxs...)
	n.sortAndSplit()
}

// Without returns a copy of the set excluding every transaction touching one of ccys.
func (n *Normalized) Without(ccys []string) []*Transaction {
	if len(ccys) == 0 {
		return n.All
	}

	excluded := make(map[string]bool, len(ccys))
	for _, c := range ccys {
		excluded[c] = true
	}

	kept := make([]*Transaction, 0, len(n.All))
	for _, trx := range n.All {
		if excluded[trx.FirstSymb] || excluded[trx.LastSymb] {
			continue
		}
		kept = append(kept, trx)
	}
	return kept
}

func (n *Normalized) sortAndSplit() {
	SortByTimeDesc(n.All)

	n.NeedsPricing = n.NeedsPricing[:0]
	for _, trx := range n.All {
		if !trx.HasUsdPrices() {
			n.NeedsPricing = append(n.NeedsPricing, trx)
		}
	}
}

// SortByTimeDesc sorts transactions newest first, keeping the input order of equal timestamps.
func SortByTimeDesc(trxs []*Transaction) {
	sort.SliceStable(trxs, func(i, j int) bool {
		return trxs[i].MtsCreate > trxs[j].MtsCreate
	})
}

// NormalizeTrade converts a trade. The bool is false when the trade must be dropped.
func NormalizeTrade(t model.Trade) (*Transaction, bool, error) {
	if t.ExecAmount.IsZero() || t.ExecPrice.IsZero() || t.MtsCreate == 0 {
		return nil, false, nil
	}

	firstSymb, lastSymb, err := SplitSymbolPair(t.Symbol)
	if err != nil {
		return nil, false, err
	}
	if IsForex(firstSymb) && IsForex(lastSymb) {
		return nil, false, nil
	}

	trx := &Transaction{
		SourceID:   t.ID,
		Kind:       KindTrade,
		SourceKind: KindTrade,
		Symbol:     t.Symbol,
		FirstSymb:  firstSymb,
		LastSymb:   lastSymb,
		MtsCreate:  t.MtsCreate,
		ExecAmount: t.ExecAmount,
		ExecPrice:  t.ExecPrice,
	}

	switch {
	case lastSymb == USD:
		trx.setUsdPrices(t.ExecPrice, one)
		trx.ExactUsdValue = decimal.NewNullDecimal(t.ExecAmount.Mul(t.ExecPrice))
	case t.ExactUsdValue.Valid:
		firstPriceUsd := t.ExactUsdValue.Decimal.Div(t.ExecAmount).Abs()
		trx.setUsdPrices(firstPriceUsd, firstPriceUsd.Div(t.ExecPrice))
		trx.ExactUsdValue = t.ExactUsdValue
		trx.UsdFromCache = true
	}

	return trx, true, nil
}

// NormalizeMovement converts a deposit or withdrawal into a "<currency>:USD"
// transaction with an unknown price. Forex movements are dropped.
func NormalizeMovement(m model.Movement) (*Transaction, bool) {
	if m.Amount.IsZero() || m.MtsUpdated == 0 || m.Currency == "" || IsForex(m.Currency) {
		return nil, false
	}

	trx := &Transaction{
		SourceID:   m.ID,
		Kind:       KindMovement,
		SourceKind: KindMovement,
		Symbol:     PairSymbol(m.Currency, USD),
		FirstSymb:  m.Currency,
		LastSymb:   USD,
		MtsCreate:  m.MtsUpdated,
		ExecAmount: m.Amount,
	}

	if m.ExactUsdValue.Valid {
		priceUsd := m.ExactUsdValue.Decimal.Div(m.Amount).Abs()
		trx.ExecPrice = priceUsd
		trx.setUsdPrices(priceUsd, one)
		trx.ExactUsdValue = m.ExactUsdValue
		trx.UsdFromCache = true
	}

	return trx, true
}

func (t *Transaction) setUsdPrices(firstPriceUsd, lastPriceUsd decimal.Decimal) {
	t.FirstSymbPriceUsd = decimal.NewNullDecimal(firstPriceUsd)
	t.LastSymbPriceUsd = decimal.NewNullDecimal(lastPriceUsd)
}
