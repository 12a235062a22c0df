package trxtax

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/logging"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

const hourMs = int64(60 * 60 * 1000)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).UnixMilli()
}

func trade(id int64, symbol string, mts int64, amount, price string) model.Trade {
	return model.Trade{
		ID:         id,
		UserID:     "user",
		Symbol:     symbol,
		MtsCreate:  mts,
		ExecAmount: dec(amount),
		ExecPrice:  dec(price),
	}
}

func movement(id int64, ccy string, mts int64, amount string) model.Movement {
	return model.Movement{
		ID:         id,
		UserID:     "user",
		Currency:   ccy,
		MtsUpdated: mts,
		Amount:     dec(amount),
	}
}

func normalizedTrade(t *testing.T, tr model.Trade) *Transaction {
	t.Helper()
	trx, ok, err := NormalizeTrade(tr)
	require.NoError(t, err)
	require.True(t, ok)
	return trx
}

func withUsdPrices(trx *Transaction, first, last string) *Transaction {
	trx.setUsdPrices(dec(first), dec(last))
	return trx
}

// fakePriceSource serves fixed price series, newest first, and records every call.
type fakePriceSource struct {
	mu     sync.Mutex
	series map[string][]model.PricePoint
	errs   map[string]error
	// failures makes the first n calls of a symbol fail with a transient error.
	failures map[string]int
	// block makes every call wait for cancellation.
	block   bool
	started chan struct{}
	calls   []string
}

func newFakePriceSource() *fakePriceSource {
	return &fakePriceSource{
		series:   make(map[string][]model.PricePoint),
		errs:     make(map[string]error),
		failures: make(map[string]int),
		started:  make(chan struct{}, 100),
	}
}

func (f *fakePriceSource) add(symbol string, mts int64, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	points := append(f.series[symbol], model.PricePoint{Mts: mts, Price: dec(price)})
	sort.Slice(points, func(i, j int) bool { return points[i].Mts > points[j].Mts })
	f.series[symbol] = points
}

func (f *fakePriceSource) Prices(ctx context.Context, symbol string, end int64, limit int) ([]model.PricePoint, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	block := f.block
	f.mu.Unlock()

	f.started <- struct{}{}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	if f.failures[symbol] > 0 {
		f.failures[symbol]--
		return nil, errors.New("connection reset")
	}

	page := []model.PricePoint{}
	for _, p := range f.series[symbol] {
		if p.Mts <= end && len(page) < limit {
			page = append(page, p)
		}
	}
	return page, nil
}

func (f *fakePriceSource) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == symbol {
			n++
		}
	}
	return n
}

func testOptions() TriangulationOptions {
	return TriangulationOptions{
		PageLimit:   100,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Timeout:     time.Minute,
	}
}

func newTestTriangulator(source PriceSource, synonyms map[string][]model.CurrencySynonym, priority []string) *Triangulator {
	return NewTriangulator(source, synonyms, priority, testOptions(), logging.Discard())
}
