package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// MockPriceSource is an in-memory implementation of trxtax.PriceSource.
// It serves configured price series and counts the calls per symbol.
type MockPriceSource struct {
	mu     sync.Mutex
	series map[string][]model.PricePoint
	errs   map[string]error
	calls  map[string]int
	// block makes every call wait until its context is cancelled.
	block   bool
	started chan string
}

// NewMockPriceSource creates a mock without any price data.
func NewMockPriceSource() *MockPriceSource {
	return &MockPriceSource{
		series:  make(map[string][]model.PricePoint),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
		started: make(chan string, 1000),
	}
}

// WithPrice adds a price point of symbol at mts.
func (m *MockPriceSource) WithPrice(symbol string, mts int64, price string) *MockPriceSource {
	m.mu.Lock()
	defer m.mu.Unlock()

	points := append(m.series[symbol], model.PricePoint{Mts: mts, Price: decimal.RequireFromString(price)})
	sort.Slice(points, func(i, j int) bool { return points[i].Mts > points[j].Mts })
	m.series[symbol] = points
	return m
}

// WithError makes every call for symbol fail with err.
func (m *MockPriceSource) WithError(symbol string, err error) *MockPriceSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
	return m
}

// Blocking makes every call wait until its context is cancelled.
func (m *MockPriceSource) Blocking() *MockPriceSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = true
	return m
}

// Started receives the symbol of every call as it starts.
func (m *MockPriceSource) Started() <-chan string {
	return m.started
}

// Calls returns the number of calls made for symbol.
func (m *MockPriceSource) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// TotalCalls returns the number of calls made for any symbol.
func (m *MockPriceSource) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Prices implements trxtax.PriceSource.
func (m *MockPriceSource) Prices(ctx context.Context, symbol string, end int64, limit int) ([]model.PricePoint, error) {
	m.mu.Lock()
	m.calls[symbol]++
	block := m.block
	m.mu.Unlock()

	select {
	case m.started <- symbol:
	default:
	}

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.errs[symbol]; ok {
		return nil, err
	}

	page := []model.PricePoint{}
	for _, p := range m.series[symbol] {
		if p.Mts <= end && len(page) < limit {
			page = append(page, p)
		}
	}
	return page, nil
}
