package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/repository"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/trxtax"
)

// TaxReportOptions configure the report pipeline.
type TaxReportOptions struct {
	Triangulation trxtax.TriangulationOptions
	// PersistBatch is the number of usd values written per SQL transaction.
	PersistBatch int
	// CacheTTL is how long a finished report is served from memory.
	CacheTTL time.Duration
	// JobRetention is how long finished background jobs and progress stay available.
	JobRetention time.Duration
}

// DefaultTaxReportOptions returns the options used when none are configured.
func DefaultTaxReportOptions() TaxReportOptions {
	return TaxReportOptions{
		Triangulation: trxtax.DefaultTriangulationOptions(),
		PersistBatch:  repository.DefaultUpdateBatchSize,
		CacheTTL:      15 * time.Minute,
		JobRetention:  time.Hour,
	}
}

// TaxReportService produces transaction tax reports: it collects the user's
// trades and movements, prices them in usd and matches sales against acquisitions.
type TaxReportService struct {
	tradeRepo    *repository.TradeRepository
	movementRepo *repository.MovementRepository
	currencyRepo *repository.CurrencyRepository
	prices       trxtax.PriceSource
	interrupter  *Interrupter
	jobs         *JobRegistry
	progress     *ProgressStore
	reports      *gocache.Cache
	opts         TaxReportOptions
	logger       log.FieldLogger
}

// NewTaxReportService creates a new TaxReportService with the provided dependencies.
func NewTaxReportService(
	tradeRepo *repository.TradeRepository,
	movementRepo *repository.MovementRepository,
	currencyRepo *repository.CurrencyRepository,
	prices trxtax.PriceSource,
	opts TaxReportOptions,
	logger log.FieldLogger,
) *TaxReportService {
	defaults := DefaultTaxReportOptions()
	if opts.PersistBatch <= 0 {
		opts.PersistBatch = defaults.PersistBatch
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaults.CacheTTL
	}
	if opts.JobRetention <= 0 {
		opts.JobRetention = defaults.JobRetention
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &TaxReportService{
		tradeRepo:    tradeRepo,
		movementRepo: movementRepo,
		currencyRepo: currencyRepo,
		prices:       prices,
		interrupter:  NewInterrupter(),
		jobs:         NewJobRegistry(opts.JobRetention),
		progress:     NewProgressStore(opts.JobRetention),
		reports:      gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		opts:         opts,
		logger:       logger,
	}
}

// Jobs returns the registry of background report jobs.
func (s *TaxReportService) Jobs() *JobRegistry {
	return s.jobs
}

// Interrupter returns the interrupter report runs register with.
func (s *TaxReportService) Interrupter() *Interrupter {
	return s.interrupter
}

// GetTransactionTaxReport computes the realized tax lots of userID for the period
// in params. sink, when set, receives every progress event.
//
// An interrupted run returns an empty report and no error; the last progress state
// (INTERRUPTED) is the only way to tell it apart from a period without sales.
func (s *TaxReportService) GetTransactionTaxReport(ctx context.Context, userID string, params model.TaxReportParams, sink ProgressSink) (*model.TaxReport, error) {
	return s.run(ctx, userID, params, "", sink)
}

// MakeTrxTaxReportInBackground starts a report run detached from ctx and returns
// its job. Completion and failure are delivered on the job.
func (s *TaxReportService) MakeTrxTaxReportInBackground(ctx context.Context, userID string, params model.TaxReportParams) *ReportJob {
	job := newReportJob(uuid.New().String(), userID, params)
	s.jobs.Add(job)

	runCtx := context.WithoutCancel(ctx)
	go func() {
		report, err := s.run(runCtx, userID, params, job.ID, job.publish)
		if err != nil {
			s.logger.WithFields(log.Fields{"userId": userID, "jobId": job.ID}).WithError(err).Error("background tax report failed")
		}
		job.finish(report, err)
	}()

	return job
}

// GetJob returns the status of a background job of userID.
func (s *TaxReportService) GetJob(userID, jobID string) (model.ReportJobStatus, error) {
	job, err := s.jobs.Get(userID, jobID)
	if err != nil {
		return model.ReportJobStatus{}, err
	}
	return job.Status(), nil
}

// GetLastProgress returns the last progress event emitted for userID.
func (s *TaxReportService) GetLastProgress(userID string) (model.ReportProgress, error) {
	return s.progress.Get(userID)
}

// InterruptOperations cancels the running operations of userID named in names.
// Returns whether any operation was signalled.
func (s *TaxReportService) InterruptOperations(userID string, names []string) (bool, error) {
	for _, name := range names {
		if !model.IsInterrupterName(name) {
			return false, fmt.Errorf("%w: %s", apperrors.ErrUnknownInterrupter, name)
		}
	}

	interrupted := false
	for _, name := range names {
		if s.interrupter.Interrupt(userID, name) {
			interrupted = true
		}
	}

	if interrupted {
		s.logger.WithFields(log.Fields{"userId": userID, "names": names}).Info("operations interrupted")
	}
	return interrupted, nil
}

// EndSession interrupts every running operation of userID.
func (s *TaxReportService) EndSession(userID string) bool {
	return s.interrupter.InterruptAll(userID)
}

func (s *TaxReportService) run(ctx context.Context, userID string, params model.TaxReportParams, jobID string, sink ProgressSink) (*model.TaxReport, error) {
	if params.Strategy == "" {
		params.Strategy = model.StrategyLIFO
	}

	ctx, release := s.interrupter.Register(ctx, userID, model.TrxTaxReportInterrupter)
	defer release()

	tracker := newProgressTracker(userID, jobID, sink, s.progress)
	tracker.transition(model.ReportStateStarted, intPtr(0))

	logger := s.logger.WithFields(log.Fields{
		"userId":   userID,
		"start":    params.Start,
		"end":      params.End,
		"strategy": params.Strategy,
	})

	report, err := s.generate(ctx, userID, params, tracker, logger)
	if errors.Is(err, apperrors.ErrInterrupted) || (err != nil && ctx.Err() != nil) {
		logger.Info("tax report interrupted")
		tracker.transition(model.ReportStateInterrupted, nil)
		return model.EmptyTaxReport(), nil
	}
	if err != nil {
		tracker.fail(err)
		return nil, err
	}

	tracker.transition(model.ReportStateCompleted, intPtr(100))
	return report, nil
}

func (s *TaxReportService) generate(
	ctx context.Context,
	userID string,
	params model.TaxReportParams,
	tracker *progressTracker,
	logger log.FieldLogger,
) (*model.TaxReport, error) {
	cacheKey := reportCacheKey(userID, params)
	if cached, ok := s.reports.Get(cacheKey); ok {
		logger.Debug("serving cached tax report")
		tracker.transition(model.ReportStateObtainingPrices, intPtr(100))
		tracker.transition(model.ReportStateMatching, nil)
		return cached.(*model.TaxReport), nil
	}

	current, err := s.collect(ctx, userID, params.Start, params.End)
	if err != nil {
		return nil, err
	}

	if params.Start > 0 {
		carried, err := s.carriedLots(ctx, userID, params)
		if err != nil {
			return nil, err
		}
		current.Merge(carried)
	}

	if !tracker.transition(model.ReportStateObtainingPrices, intPtr(0)) {
		return nil, apperrors.ErrInterrupted
	}

	triangulator, err := s.newTriangulator(ctx, logger)
	if err != nil {
		return nil, err
	}

	priced, err := triangulator.Resolve(ctx, current.NeedsPricing, tracker.progress)
	if err != nil {
		return nil, err
	}
	if priced.Interrupted {
		return nil, apperrors.ErrInterrupted
	}

	if !tracker.transition(model.ReportStateMatching, nil) {
		return nil, apperrors.ErrInterrupted
	}

	matched, err := trxtax.Match(ctx, current.Without(priced.Delisted), trxtax.MatchOptions{Strategy: params.Strategy})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, apperrors.ErrInterrupted
	}

	if err := s.persistUsdValues(ctx, userID, current.All); err != nil {
		return nil, err
	}

	report := &model.TaxReport{
		Taxes:           matched.RealizedLots,
		DelistedCcyList: priced.Delisted,
	}
	s.reports.SetDefault(cacheKey, report)

	logger.WithFields(log.Fields{
		"transactions": len(current.All),
		"priced":       priced.Priced,
		"taxLots":      len(report.Taxes),
		"delisted":     len(report.DelistedCcyList),
	}).Info("tax report generated")

	return report, nil
}

// collect loads and normalizes the trades and movements of [start, end].
func (s *TaxReportService) collect(ctx context.Context, userID string, start, end int64) (*trxtax.Normalized, error) {
	var (
		trades    []model.Trade
		movements []model.Movement
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trades, err = s.tradeRepo.GetTrades(gctx, userID, start, end)
		if err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrieveTrades, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		movements, err = s.movementRepo.GetMovements(gctx, userID, start, end)
		if err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrieveMovements, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return trxtax.Normalize(trades, movements)
}

// carriedLots matches everything before the report period with gain/loss
// suppressed and returns the buy lots left open at its end.
func (s *TaxReportService) carriedLots(ctx context.Context, userID string, params model.TaxReportParams) ([]*trxtax.Transaction, error) {
	prior, err := s.collect(ctx, userID, 0, params.Start-1)
	if err != nil {
		return nil, err
	}

	res, err := trxtax.Match(ctx, prior.All, trxtax.MatchOptions{
		Strategy:         params.Strategy,
		SuppressGainLoss: true,
	})
	if err != nil {
		return nil, err
	}
	return res.UnrealizedBuyLots, nil
}

func (s *TaxReportService) newTriangulator(ctx context.Context, logger log.FieldLogger) (*trxtax.Triangulator, error) {
	priority, err := s.currencyRepo.GetPriorityCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrieveCurrency, err)
	}
	synonyms, err := s.currencyRepo.GetSynonyms(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrieveCurrency, err)
	}

	return trxtax.NewTriangulator(s.prices, synonyms, priority, s.opts.Triangulation, logger), nil
}

// persistUsdValues writes the usd values resolved in this run back onto their
// source records so later runs skip their triangulation.
func (s *TaxReportService) persistUsdValues(ctx context.Context, userID string, trxs []*trxtax.Transaction) error {
	var tradeUpdates, movementUpdates []model.UsdValueUpdate
	for _, trx := range trxs {
		update, ok := trx.CacheUpdate()
		if !ok {
			continue
		}
		switch trx.SourceKind {
		case trxtax.KindTrade:
			tradeUpdates = append(tradeUpdates, update)
		case trxtax.KindMovement:
			movementUpdates = append(movementUpdates, update)
		}
	}

	if err := s.tradeRepo.UpdateExactUsdValues(ctx, userID, tradeUpdates, s.opts.PersistBatch); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrFailedToPersistUsdValues, err)
	}
	if err := s.movementRepo.UpdateExactUsdValues(ctx, userID, movementUpdates, s.opts.PersistBatch); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrFailedToPersistUsdValues, err)
	}
	return nil
}

func reportCacheKey(userID string, params model.TaxReportParams) string {
	return fmt.Sprintf("%s:%d:%d:%s", userID, params.Start, params.End, params.Strategy)
}
