package trxtax

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// MatchOptions configure a Match run.
type MatchOptions struct {
	Strategy model.Strategy
	// SuppressGainLoss treats every price as zero. It is used on the previous
	// period, where only the unfilled buy lots are of interest.
	SuppressGainLoss bool
}

// MatchResult is the outcome of a Match run.
type MatchResult struct {
	// RealizedLots holds one lot per sale leg, newest sale first.
	RealizedLots []model.TaxLot
	// UnrealizedBuyLots are the unfilled buy remainders as carried lot transactions.
	UnrealizedBuyLots []*Transaction
	// States is the bookkeeping of every input transaction, by input index.
	States []MatchState
}

// Match pairs sale legs with buy legs of the same asset acquired at or before the
// sale. trxs must be sorted newest first.
//
// LIFO walks sales and candidates newest first, FIFO oldest first. Returns
// apperrors.ErrCurrencyConversion when a leg to be valued has no usd price and
// apperrors.ErrInterrupted when ctx is cancelled.
func Match(ctx context.Context, trxs []*Transaction, opts MatchOptions) (*MatchResult, error) {
	return match(ctx, trxs, opts, newCheckpoint(checkpointInterval))
}

func match(ctx context.Context, trxs []*Transaction, opts MatchOptions, cp *checkpoint) (*MatchResult, error) {
	if ctx.Err() != nil {
		return nil, apperrors.ErrInterrupted
	}

	n := len(trxs)
	states := make([]MatchState, n)
	sales := make([]*lotLeg, n)
	buys := make([]*lotLeg, n)
	buysByAsset := make(map[string][]int)

	for i, trx := range trxs {
		if leg, ok := trx.saleLeg(); ok {
			sales[i] = &leg
		}
		if leg, ok := trx.buyLeg(); ok {
			buys[i] = &leg
			buysByAsset[leg.asset] = append(buysByAsset[leg.asset], i)
		}
	}

	lifo := opts.Strategy != model.StrategyFIFO
	lots := make([]*model.TaxLot, n)

	for k := 0; k < n; k++ {
		i := k
		if !lifo {
			i = n - 1 - k
		}
		if err := cp.yield(ctx); err != nil {
			return nil, err
		}

		sale := sales[i]
		if sale == nil {
			continue
		}
		if !opts.SuppressGainLoss && !sale.price.Valid {
			return nil, conversionError(sale, trxs[i])
		}

		candidates := buysByAsset[sale.asset]
		for c := 0; c < len(candidates); c++ {
			if !states[i].SaleFilled.LessThan(sale.amount) {
				break
			}
			if err := cp.yield(ctx); err != nil {
				return nil, err
			}

			j := candidates[c]
			if !lifo {
				j = candidates[len(candidates)-1-c]
			}
			if j == i || trxs[j].MtsCreate > trxs[i].MtsCreate {
				continue
			}

			if err := fill(states, i, j, sale, buys[j], trxs, opts.SuppressGainLoss); err != nil {
				return nil, err
			}
		}

		lots[i] = taxLot(sale, &states[i], trxs[i])
	}

	result := &MatchResult{
		RealizedLots:      make([]model.TaxLot, 0),
		UnrealizedBuyLots: make([]*Transaction, 0),
		States:            states,
	}
	for i := range trxs {
		if lots[i] != nil {
			result.RealizedLots = append(result.RealizedLots, *lots[i])
		}
		if buys[i] != nil {
			if lot := carriedLot(trxs[i], buys[i], &states[i]); lot != nil {
				result.UnrealizedBuyLots = append(result.UnrealizedBuyLots, lot)
			}
		}
	}

	return result, nil
}

// fill matches as much of sale i as buy j has left.
func fill(states []MatchState, i, j int, sale, buy *lotLeg, trxs []*Transaction, suppress bool) error {
	saleState := &states[i]
	buyState := &states[j]

	remainingBuy := buy.amount.Sub(buyState.BuyFilled)
	if !remainingBuy.IsPositive() {
		return nil
	}
	if !suppress && !buy.price.Valid {
		return conversionError(buy, trxs[j])
	}

	filled := decimal.Min(sale.amount.Sub(saleState.SaleFilled), remainingBuy)
	saleState.SaleFilled = saleState.SaleFilled.Add(filled)
	buyState.BuyFilled = buyState.BuyFilled.Add(filled)

	if !suppress {
		proceeds := filled.Mul(sale.price.Decimal)
		saleState.Cost = saleState.Cost.Add(filled.Mul(buy.price.Decimal))
		saleState.Proceeds = saleState.Proceeds.Add(proceeds)
		buyState.ProceedsForBuy = buyState.ProceedsForBuy.Add(proceeds)
	}

	saleState.BuyRefs = append(saleState.BuyRefs, j)
	buyState.SaleRefs = append(buyState.SaleRefs, i)

	acquired := trxs[j].MtsCreate
	if saleState.MtsAcquired == 0 || acquired < saleState.MtsAcquired {
		saleState.MtsAcquired = acquired
	}

	return nil
}

func taxLot(sale *lotLeg, state *MatchState, trx *Transaction) *model.TaxLot {
	lot := &model.TaxLot{
		Asset:      sale.asset,
		Amount:     sale.amount,
		MtsSold:    trx.MtsCreate,
		Proceeds:   state.Proceeds,
		Cost:       state.Cost,
		GainOrLoss: state.Proceeds.Sub(state.Cost),
	}
	if len(state.BuyRefs) > 0 {
		acquired := state.MtsAcquired
		lot.MtsAcquired = &acquired
	}
	return lot
}

// carriedLot turns the unfilled remainder of a buy leg into a "<asset>:USD"
// transaction keeping the acquisition time and, when known, the usd price.
func carriedLot(trx *Transaction, buy *lotLeg, state *MatchState) *Transaction {
	remaining := buy.amount.Sub(state.BuyFilled)
	if !remaining.IsPositive() {
		return nil
	}

	lot := &Transaction{
		SourceID:     trx.SourceID,
		Kind:         KindCarriedBuyLot,
		SourceKind:   trx.SourceKind,
		Symbol:       PairSymbol(buy.asset, USD),
		FirstSymb:    buy.asset,
		LastSymb:     USD,
		MtsCreate:    trx.MtsCreate,
		ExecAmount:   remaining,
		UsdFromCache: trx.UsdFromCache,
		Carried: &CarriedLot{
			Leg:              buy.leg,
			SourceExecAmount: trx.ExecAmount,
			SourceExecPrice:  trx.ExecPrice,
			ProceedsForBuy:   state.ProceedsForBuy,
		},
	}
	if trx.Carried != nil {
		carried := *trx.Carried
		carried.ProceedsForBuy = carried.ProceedsForBuy.Add(state.ProceedsForBuy)
		lot.Carried = &carried
	}

	if buy.price.Valid {
		lot.ExecPrice = buy.price.Decimal
		lot.setUsdPrices(buy.price.Decimal, one)
		lot.ExactUsdValue = decimal.NewNullDecimal(remaining.Mul(buy.price.Decimal))
	}

	return lot
}

func conversionError(leg *lotLeg, trx *Transaction) error {
	return fmt.Errorf("%w: no usd price for %s in %s at %d", apperrors.ErrCurrencyConversion, leg.asset, trx.Symbol, trx.MtsCreate)
}
