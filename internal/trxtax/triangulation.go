package trxtax

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// PriceSource returns up to limit historical prices of a pair symbol with a
// timestamp at or before end, newest first.
type PriceSource interface {
	Prices(ctx context.Context, symbol string, end int64, limit int) ([]model.PricePoint, error)
}

// TriangulationOptions tune the price fetching of a Triangulator.
type TriangulationOptions struct {
	// PageLimit is the number of price points requested per page.
	PageLimit int
	// MaxAttempts bounds the attempts per page fetch.
	MaxAttempts int
	// RetryDelay is the constant delay between two attempts.
	RetryDelay time.Duration
	// Timeout is the wall-clock guard of a whole Resolve call. Zero disables it.
	Timeout time.Duration
}

// DefaultTriangulationOptions returns the options used when none are configured.
func DefaultTriangulationOptions() TriangulationOptions {
	return TriangulationOptions{
		PageLimit:   10000,
		MaxAttempts: 6,
		RetryDelay:  10 * time.Second,
		Timeout:     2 * time.Hour,
	}
}

// TriangulationResult summarizes a Resolve call.
type TriangulationResult struct {
	// Priced is the number of transactions that received a usd price.
	Priced int
	// Delisted lists, sorted and unique, the currencies no price could be found for.
	Delisted []string
	// Interrupted is set when the context was cancelled before every group was processed.
	Interrupted bool
}

// Triangulator assigns usd prices to transactions from historical reference prices.
type Triangulator struct {
	source   PriceSource
	synonyms map[string][]model.CurrencySynonym
	priority map[string]int
	opts     TriangulationOptions
	logger   log.FieldLogger
	now      func() time.Time
}

// NewTriangulator creates a Triangulator. priorityCcys is ordered highest priority first.
func NewTriangulator(
	source PriceSource,
	synonyms map[string][]model.CurrencySynonym,
	priorityCcys []string,
	opts TriangulationOptions,
	logger log.FieldLogger,
) *Triangulator {
	defaults := DefaultTriangulationOptions()
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaults.PageLimit
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Millisecond
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	priority := make(map[string]int, len(priorityCcys))
	for i, ccy := range priorityCcys {
		if _, ok := priority[ccy]; !ok {
			priority[ccy] = i
		}
	}

	return &Triangulator{
		source:   source,
		synonyms: synonyms,
		priority: priority,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

type side uint8

const (
	sideBase side = iota + 1
	sideQuote
)

// priceTask is a transaction waiting for the usd price of one of its currencies.
type priceTask struct {
	trx  *Transaction
	ccy  string
	side side
}

type priceGroup struct {
	ccy   string
	tasks []*priceTask
}

// Resolve prices every transaction in trxs lacking usd prices. Transactions of
// currencies without any price are left untouched and reported in Delisted.
//
// onProgress, when set, receives the percentage of processed transactions in [1, 99].
// Cancellation of ctx is not an error: the result has Interrupted set. Provider
// failures end up in Delisted, so only apperrors.ErrGenerationTimeout is returned.
func (tr *Triangulator) Resolve(ctx context.Context, trxs []*Transaction, onProgress func(int)) (*TriangulationResult, error) {
	result := &TriangulationResult{Delisted: []string{}}

	groups := tr.groupTasks(trxs)
	total := 0
	for _, g := range groups {
		total += len(g.tasks)
	}
	if total == 0 {
		return result, nil
	}

	var deadline time.Time
	if tr.opts.Timeout > 0 {
		deadline = tr.now().Add(tr.opts.Timeout)
	}

	done := 0
	report := func(n int) {
		done += n
		if onProgress != nil {
			onProgress(clipProgress(done, total))
		}
	}

	for _, g := range groups {
		if ctx.Err() != nil {
			result.Interrupted = true
			return result, nil
		}

		logger := tr.logger.WithFields(log.Fields{"currency": g.ccy, "transactions": len(g.tasks)})
		logger.Debug("resolving usd prices")

		priced, unresolved, err := tr.resolveGroup(ctx, g, deadline, report)
		result.Priced += priced
		if errors.Is(err, apperrors.ErrInterrupted) {
			result.Interrupted = true
			return result, nil
		}
		if err != nil {
			return result, err
		}

		if unresolved > 0 {
			logger.WithField("unresolved", unresolved).Warn("no usd price found, currency is treated as delisted")
			result.Delisted = append(result.Delisted, g.ccy)
			report(unresolved)
		}
	}

	sort.Strings(result.Delisted)
	return result, nil
}

// groupTasks groups the unpriced transactions by the currency to price, with the
// groups sorted by currency and the tasks oldest first.
func (tr *Triangulator) groupTasks(trxs []*Transaction) []*priceGroup {
	byCcy := make(map[string]*priceGroup)
	for _, trx := range trxs {
		if trx.HasUsdPrices() {
			continue
		}
		task := tr.newTask(trx)
		g, ok := byCcy[task.ccy]
		if !ok {
			g = &priceGroup{ccy: task.ccy}
			byCcy[task.ccy] = g
		}
		g.tasks = append(g.tasks, task)
	}

	groups := make([]*priceGroup, 0, len(byCcy))
	for _, g := range byCcy {
		sort.SliceStable(g.tasks, func(i, j int) bool {
			return g.tasks[i].trx.MtsCreate < g.tasks[j].trx.MtsCreate
		})
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ccy < groups[j].ccy
	})

	return groups
}

func (tr *Triangulator) newTask(trx *Transaction) *priceTask {
	switch {
	case IsForex(trx.LastSymb):
		return &priceTask{trx: trx, ccy: trx.FirstSymb, side: sideBase}
	case IsForex(trx.FirstSymb):
		return &priceTask{trx: trx, ccy: trx.LastSymb, side: sideQuote}
	case tr.rank(trx.LastSymb) < tr.rank(trx.FirstSymb):
		return &priceTask{trx: trx, ccy: trx.LastSymb, side: sideQuote}
	default:
		return &priceTask{trx: trx, ccy: trx.FirstSymb, side: sideBase}
	}
}

func (tr *Triangulator) rank(ccy string) int {
	if i, ok := tr.priority[ccy]; ok {
		return i
	}
	return math.MaxInt
}

// resolveGroup prices the tasks of one currency from its own market, then from
// each synonym in turn. It returns the priced and still unresolved counts.
func (tr *Triangulator) resolveGroup(ctx context.Context, g *priceGroup, deadline time.Time, report func(int)) (int, int, error) {
	candidates := append(
		[]model.CurrencySynonym{{Currency: g.ccy, Synonym: g.ccy, Multiplier: one}},
		tr.synonyms[g.ccy]...,
	)

	pending := g.tasks
	priced := 0
	for _, c := range candidates {
		if len(pending) == 0 {
			break
		}

		var (
			n   int
			err error
		)
		n, pending, err = tr.resolveWithSymbol(ctx, PairSymbol(c.Synonym, USD), c.Multiplier, pending, deadline, report)
		priced += n
		if err != nil {
			return priced, len(pending), err
		}
	}

	return priced, len(pending), nil
}

// resolveWithSymbol walks the tasks oldest to newest, reusing a fetched chunk for
// as long as it spans them. Tasks without a recent enough point are returned as
// unpriced so the next synonym can be tried.
func (tr *Triangulator) resolveWithSymbol(
	ctx context.Context,
	symbol string,
	multiplier decimal.Decimal,
	tasks []*priceTask,
	deadline time.Time,
	report func(int),
) (int, []*priceTask, error) {
	logger := tr.logger.WithField("symbol", symbol)
	newest := tasks[len(tasks)-1].trx.MtsCreate

	var (
		chunk      *priceChunk
		unresolved []*priceTask
		priced     int
	)
	for i, task := range tasks {
		mts := task.trx.MtsCreate

		if chunk == nil || !chunk.spans(mts) {
			c, err := tr.fetchChunk(ctx, symbol, newest, mts, deadline)
			if errors.Is(err, apperrors.ErrInterrupted) || errors.Is(err, apperrors.ErrGenerationTimeout) {
				return priced, append(unresolved, tasks[i:]...), err
			}
			if err != nil {
				logger.WithError(err).Warn("failed to fetch prices")
				return priced, append(unresolved, tasks[i:]...), nil
			}
			if c.empty() {
				return priced, append(unresolved, tasks[i:]...), nil
			}
			chunk = c
		}

		price, ok := chunk.priceAt(mts)
		if !ok || !price.IsPositive() {
			unresolved = append(unresolved, task)
			continue
		}

		task.apply(price.Mul(multiplier))
		priced++
		report(1)
	}

	return priced, unresolved, nil
}

// fetchChunk requests pages ending at end and walks back until a page reaches
// target or the provider runs out of data. Fetches and retry delays are bound by
// deadline.
func (tr *Triangulator) fetchChunk(ctx context.Context, symbol string, end, target int64, deadline time.Time) (*priceChunk, error) {
	chunk := &priceChunk{end: end}
	pageEnd := end

	fetchCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	for {
		if !deadline.IsZero() && tr.now().After(deadline) {
			return nil, apperrors.ErrGenerationTimeout
		}

		page, err := tr.fetchPage(fetchCtx, symbol, pageEnd)
		if err != nil {
			if ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
				return nil, apperrors.ErrGenerationTimeout
			}
			return nil, err
		}

		chunk.points = append(chunk.points, page...)
		if len(page) < tr.opts.PageLimit {
			chunk.exhausted = true
			return chunk, nil
		}

		oldest := page[len(page)-1].Mts
		if oldest <= target {
			return chunk, nil
		}
		pageEnd = oldest - 1
	}
}

// fetchPage fetches one page with bounded constant-delay retries. An unknown
// symbol is not retried.
func (tr *Triangulator) fetchPage(ctx context.Context, symbol string, end int64) ([]model.PricePoint, error) {
	var points []model.PricePoint

	backoff := retry.WithMaxRetries(uint64(tr.opts.MaxAttempts-1), retry.NewConstant(tr.opts.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := tr.fetchOrCancel(ctx, symbol, end)
		if err != nil {
			if errors.Is(err, apperrors.ErrInterrupted) || errors.Is(err, apperrors.ErrSymbolNotFound) {
				return err
			}
			tr.logger.WithFields(log.Fields{"symbol": symbol, "end": end}).WithError(err).Debug("price fetch attempt failed")
			return retry.RetryableError(err)
		}
		points = p
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.ErrInterrupted
		}
		return nil, fmt.Errorf("failed to fetch %s prices ending at %d: %w", symbol, end, err)
	}

	return points, nil
}

// fetchOrCancel races the provider call against cancellation of ctx.
func (tr *Triangulator) fetchOrCancel(ctx context.Context, symbol string, end int64) ([]model.PricePoint, error) {
	if ctx.Err() != nil {
		return nil, apperrors.ErrInterrupted
	}

	type fetched struct {
		points []model.PricePoint
		err    error
	}
	ch := make(chan fetched, 1)
	go func() {
		points, err := tr.source.Prices(ctx, symbol, end, tr.opts.PageLimit)
		ch <- fetched{points: points, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, apperrors.ErrInterrupted
	case f := <-ch:
		return f.points, f.err
	}
}

// apply sets the priced side and derives the other one through the pair price.
func (t *priceTask) apply(priceUsd decimal.Decimal) {
	trx := t.trx

	switch {
	case t.side == sideQuote && !trx.ExecPrice.IsZero():
		trx.setUsdPrices(priceUsd.Mul(trx.ExecPrice), priceUsd)
	case !trx.ExecPrice.IsZero():
		trx.setUsdPrices(priceUsd, priceUsd.Div(trx.ExecPrice))
	default:
		trx.ExecPrice = priceUsd
		trx.setUsdPrices(priceUsd, one)
	}

	trx.ExactUsdValue = decimal.NewNullDecimal(trx.ExecAmount.Mul(trx.FirstSymbPriceUsd.Decimal))
	trx.UsdResolved = true
}

func clipProgress(done, total int) int {
	p := done * 100 / total
	if p < 1 {
		return 1
	}
	if p > 99 {
		return 99
	}
	return p
}
