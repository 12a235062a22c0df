package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/service"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/testutil"
)

func mustDecimal(t *testing.T, got decimal.Decimal, want string, field string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("Expected %s %s, got %s", field, want, got)
	}
}

func collectStates(events *[]model.ReportProgress) service.ProgressSink {
	return func(p model.ReportProgress) {
		*events = append(*events, p)
	}
}

func distinctStates(events []model.ReportProgress) []model.ReportState {
	states := []model.ReportState{}
	for _, e := range events {
		if len(states) == 0 || states[len(states)-1] != e.State {
			states = append(states, e.State)
		}
	}
	return states
}

// TestTaxReportService_Strategies tests LIFO and FIFO matching against lots carried
// in from before the report period.
//
// WHY: The strategy decides which acquisition a sale is matched with, and both
// acquisitions here predate the period, so they only exist as carried lots.
func TestTaxReportService_Strategies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userID := testutil.MakeID()

	testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.January, 10), "3", "20000")
	testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.February, 5), "20", "43000")
	testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.March, 3), "-2", "33000")

	tests := []struct {
		strategy    model.Strategy
		cost        string
		gainOrLoss  string
		mtsAcquired int64
	}{
		{model.StrategyLIFO, "86000", "-20000", testutil.Mts(2023, time.February, 5)},
		{model.StrategyFIFO, "40000", "26000", testutil.Mts(2023, time.January, 10)},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			// Setup
			source := testutil.NewMockPriceSource()
			svc := testutil.NewTestTaxReportService(t, db, source)
			params := model.TaxReportParams{
				Start:    testutil.Mts(2023, time.March, 1),
				End:      testutil.Mts(2023, time.March, 31),
				Strategy: tt.strategy,
			}
			var events []model.ReportProgress

			// Execute
			report, err := svc.GetTransactionTaxReport(context.Background(), userID, params, collectStates(&events))

			// Assert
			if err != nil {
				t.Fatalf("GetTransactionTaxReport() returned unexpected error: %v", err)
			}
			if len(report.Taxes) != 1 {
				t.Fatalf("Expected 1 tax lot, got %d", len(report.Taxes))
			}

			lot := report.Taxes[0]
			mustDecimal(t, lot.Amount, "2", "amount")
			mustDecimal(t, lot.Proceeds, "66000", "proceeds")
			mustDecimal(t, lot.Cost, tt.cost, "cost")
			mustDecimal(t, lot.GainOrLoss, tt.gainOrLoss, "gainOrLoss")
			if lot.MtsAcquired == nil || *lot.MtsAcquired != tt.mtsAcquired {
				t.Errorf("Expected mtsAcquired %d, got %v", tt.mtsAcquired, lot.MtsAcquired)
			}
			if len(report.DelistedCcyList) != 0 {
				t.Errorf("Expected no delisted currencies, got %v", report.DelistedCcyList)
			}
			if source.TotalCalls() != 0 {
				t.Errorf("Expected no price calls for usd pairs, got %d", source.TotalCalls())
			}

			want := []model.ReportState{
				model.ReportStateStarted,
				model.ReportStateObtainingPrices,
				model.ReportStateMatching,
				model.ReportStateCompleted,
			}
			got := distinctStates(events)
			if len(got) != len(want) {
				t.Fatalf("Expected states %v, got %v", want, got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("Expected states %v, got %v", want, got)
					break
				}
			}
		})
	}
}

// TestTaxReportService_PricesAndPersists tests triangulation of unpriced records
// and the write-back of their usd values.
//
// WHY: Resolved usd values are cached on the source records so the next run
// computes the same report without fetching a single price.
func TestTaxReportService_PricesAndPersists(t *testing.T) {
	// Setup
	db := testutil.SetupTestDB(t)
	userID := testutil.MakeID()

	deposit := testutil.NewMovement(userID).
		WithCurrency("ETH").
		WithAmount("2").
		At(testutil.Mts(2023, time.January, 1)).
		Build(t, db)
	sale := testutil.CreateTrade(t, db, userID, "tETHBTC", testutil.Mts(2023, time.February, 1), "-1", "0.05")

	source := testutil.NewMockPriceSource().
		WithPrice("tETHUSD", testutil.Mts(2023, time.January, 1), "800").
		WithPrice("tBTCUSD", testutil.Mts(2023, time.February, 1), "20000")
	params := model.TaxReportParams{End: testutil.Mts(2023, time.December, 31), Strategy: model.StrategyFIFO}

	// Execute
	report, err := testutil.NewTestTaxReportService(t, db, source).GetTransactionTaxReport(context.Background(), userID, params, nil)

	// Assert
	if err != nil {
		t.Fatalf("GetTransactionTaxReport() returned unexpected error: %v", err)
	}
	if len(report.Taxes) != 1 {
		t.Fatalf("Expected 1 tax lot, got %d", len(report.Taxes))
	}
	lot := report.Taxes[0]
	if lot.Asset != "ETH" {
		t.Errorf("Expected ETH lot, got %s", lot.Asset)
	}
	mustDecimal(t, lot.Cost, "800", "cost")
	mustDecimal(t, lot.Proceeds, "1000", "proceeds")
	mustDecimal(t, lot.GainOrLoss, "200", "gainOrLoss")

	// BTC outranks ETH, so the trade is priced through its BTC leg
	if source.Calls("tBTCUSD") != 1 || source.Calls("tETHUSD") != 1 {
		t.Errorf("Expected one call per symbol, got BTC=%d ETH=%d", source.Calls("tBTCUSD"), source.Calls("tETHUSD"))
	}

	if v := testutil.GetCachedUsdValue(t, db, "movements", deposit.ID); !v.Valid || !v.Decimal.Equal(decimal.NewFromInt(1600)) {
		t.Errorf("Expected cached movement value 1600, got %v", v)
	}
	if v := testutil.GetCachedUsdValue(t, db, "trades", sale.ID); !v.Valid || !v.Decimal.Equal(decimal.NewFromInt(-1000)) {
		t.Errorf("Expected cached trade value -1000, got %v", v)
	}

	t.Run("second run reuses cached values", func(t *testing.T) {
		fresh := testutil.NewMockPriceSource()

		again, err := testutil.NewTestTaxReportService(t, db, fresh).GetTransactionTaxReport(context.Background(), userID, params, nil)
		if err != nil {
			t.Fatalf("GetTransactionTaxReport() returned unexpected error: %v", err)
		}
		if fresh.TotalCalls() != 0 {
			t.Errorf("Expected no price calls, got %d", fresh.TotalCalls())
		}
		if len(again.Taxes) != 1 {
			t.Fatalf("Expected 1 tax lot, got %d", len(again.Taxes))
		}
		mustDecimal(t, again.Taxes[0].Cost, "800", "cost")
		mustDecimal(t, again.Taxes[0].Proceeds, "1000", "proceeds")
	})
}

// TestTaxReportService_PersistsInBatches tests that more rows than one batch are all written.
func TestTaxReportService_PersistsInBatches(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userID := testutil.MakeID()
	source := testutil.NewMockPriceSource()

	for day := 1; day <= 5; day++ {
		source.WithPrice("tBTCUSD", testutil.Mts(2023, time.January, day), "30000")
		testutil.NewMovement(userID).At(testutil.Mts(2023, time.January, day)).Build(t, db)
	}

	params := model.TaxReportParams{End: testutil.Mts(2023, time.December, 31), Strategy: model.StrategyLIFO}
	if _, err := testutil.NewTestTaxReportService(t, db, source).GetTransactionTaxReport(context.Background(), userID, params, nil); err != nil {
		t.Fatalf("GetTransactionTaxReport() returned unexpected error: %v", err)
	}

	if got := testutil.CountCachedUsdValues(t, db, "movements"); got != 5 {
		t.Errorf("Expected 5 cached movements, got %d", got)
	}
}

// TestTaxReportService_Delisting tests currencies without any price.
//
// WHY: A delisted currency must not abort the report; it is listed once and
// none of its transactions may show up in the taxes.
func TestTaxReportService_Delisting(t *testing.T) {
	// Setup
	db := testutil.SetupTestDB(t)
	userID := testutil.MakeID()

	testutil.NewMovement(userID).WithCurrency("XYZ").WithAmount("10").At(testutil.Mts(2023, time.January, 1)).Build(t, db)
	testutil.NewMovement(userID).WithCurrency("XYZ").WithAmount("-4").At(testutil.Mts(2023, time.February, 1)).Build(t, db)
	testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.January, 5), "1", "20000")
	testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.March, 5), "-1", "25000")

	source := testutil.NewMockPriceSource()
	params := model.TaxReportParams{End: testutil.Mts(2023, time.December, 31), Strategy: model.StrategyLIFO}

	// Execute
	report, err := testutil.NewTestTaxReportService(t, db, source).GetTransactionTaxReport(context.Background(), userID, params, nil)

	// Assert
	if err != nil {
		t.Fatalf("GetTransactionTaxReport() returned unexpected error: %v", err)
	}
	if len(report.DelistedCcyList) != 1 || report.DelistedCcyList[0] != "XYZ" {
		t.Errorf("Expected [XYZ] delisted, got %v", report.DelistedCcyList)
	}
	for _, lot := range report.Taxes {
		if lot.Asset == "XYZ" {
			t.Errorf("Expected no XYZ tax lot, got %+v", lot)
		}
	}
	if len(report.Taxes) != 1 {
		t.Fatalf("Expected 1 tax lot, got %d", len(report.Taxes))
	}
	mustDecimal(t, report.Taxes[0].GainOrLoss, "5000", "gainOrLoss")
}

// TestTaxReportService_DelistedMarketUsesSynonym tests pricing after a market stopped trading.
//
// WHY: A market that stopped trading keeps returning its last price. Transactions
// made after that must be priced from a synonym market, or the currency must be
// reported as delisted, instead of using a months old price.
func TestTaxReportService_DelistedMarketUsesSynonym(t *testing.T) {
	// Setup
	db := testutil.SetupTestDB(t)
	userID := testutil.MakeID()

	testutil.NewMovement(userID).WithCurrency("LUNA").WithAmount("100").At(testutil.Mts(2023, time.January, 1)).Build(t, db)
	testutil.NewMovement(userID).WithCurrency("LUNA").WithAmount("-100").At(testutil.Mts(2023, time.June, 1)).Build(t, db)
	testutil.NewMovement(userID).WithCurrency("BCH").WithAmount("1").At(testutil.Mts(2023, time.June, 1)).Build(t, db)

	source := testutil.NewMockPriceSource().
		WithPrice("tLUNA:USD", testutil.Mts(2023, time.January, 1), "2").
		WithPrice("tLUNA2:USD", testutil.Mts(2023, time.June, 1), "5").
		WithPrice("tBCHUSD", testutil.Mts(2023, time.January, 1), "100")
	params := model.TaxReportParams{End: testutil.Mts(2023, time.December, 31), Strategy: model.StrategyLIFO}

	// Execute
	report, err := testutil.NewTestTaxReportService(t, db, source).GetTransactionTaxReport(context.Background(), userID, params, nil)

	// Assert
	if err != nil {
		t.Fatalf("GetTransactionTaxReport() returned unexpected error: %v", err)
	}
	if len(report.DelistedCcyList) != 1 || report.DelistedCcyList[0] != "BCH" {
		t.Errorf("Expected [BCH] delisted, got %v", report.DelistedCcyList)
	}
	if got := source.Calls("tLUNA2:USD"); got != 1 {
		t.Errorf("Expected 1 tLUNA2:USD fetch, got %d", got)
	}
	if len(report.Taxes) != 1 {
		t.Fatalf("Expected 1 tax lot, got %d", len(report.Taxes))
	}

	lot := report.Taxes[0]
	if lot.Asset != "LUNA" {
		t.Errorf("Expected a LUNA lot, got %s", lot.Asset)
	}
	mustDecimal(t, lot.Cost, "200", "cost")
	mustDecimal(t, lot.Proceeds, "500", "proceeds")
	mustDecimal(t, lot.GainOrLoss, "300", "gainOrLoss")
}

// TestTaxReportService_Interrupt tests cancelling a running report.
//
// WHY: An interrupted report returns the same empty shape as an empty period,
// ends in the INTERRUPTED state and must not write any usd value.
func TestTaxReportService_Interrupt(t *testing.T) {
	// Setup
	db := testutil.SetupTestDB(t)
	userID := testutil.MakeID()
	testutil.NewMovement(userID).At(testutil.Mts(2023, time.January, 1)).Build(t, db)
	testutil.NewMovement(userID).WithCurrency("ETH").At(testutil.Mts(2023, time.January, 2)).Build(t, db)

	source := testutil.NewMockPriceSource().Blocking()
	svc := testutil.NewTestTaxReportService(t, db, source)
	params := model.TaxReportParams{End: testutil.Mts(2023, time.December, 31), Strategy: model.StrategyLIFO}

	type outcome struct {
		report *model.TaxReport
		err    error
	}
	done := make(chan outcome, 1)

	// Execute
	go func() {
		report, err := svc.GetTransactionTaxReport(context.Background(), userID, params, nil)
		done <- outcome{report, err}
	}()

	select {
	case <-source.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("price fetch never started")
	}

	interrupted, err := svc.InterruptOperations(userID, []string{model.TrxTaxReportInterrupter})
	if err != nil {
		t.Fatalf("InterruptOperations() returned unexpected error: %v", err)
	}
	if !interrupted {
		t.Error("Expected a running report to be interrupted")
	}

	var res outcome
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("report did not return after interruption")
	}

	// Assert
	if res.err != nil {
		t.Fatalf("Expected no error, got %v", res.err)
	}
	if len(res.report.Taxes) != 0 || len(res.report.DelistedCcyList) != 0 {
		t.Errorf("Expected empty report, got %+v", res.report)
	}

	progress, err := svc.GetLastProgress(userID)
	if err != nil {
		t.Fatalf("GetLastProgress() returned unexpected error: %v", err)
	}
	if progress.State != model.ReportStateInterrupted {
		t.Errorf("Expected INTERRUPTED, got %s", progress.State)
	}

	testutil.AssertRowCount(t, db, "movements", 2)
	if got := testutil.CountCachedUsdValues(t, db, "movements"); got != 0 {
		t.Errorf("Expected no cached usd values, got %d", got)
	}

	t.Run("nothing left to interrupt", func(t *testing.T) {
		interrupted, err := svc.InterruptOperations(userID, []string{model.TrxTaxReportInterrupter})
		if err != nil || interrupted {
			t.Errorf("Expected (false, nil), got (%v, %v)", interrupted, err)
		}
	})
}

func TestTaxReportService_InterruptOperations_UnknownName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestTaxReportService(t, db, testutil.NewMockPriceSource())

	_, err := svc.InterruptOperations(testutil.MakeID(), []string{"SYNC_INTERRUPTER"})
	if !errors.Is(err, apperrors.ErrUnknownInterrupter) {
		t.Errorf("Expected ErrUnknownInterrupter, got %v", err)
	}
}

// TestTaxReportService_Background tests the background entry point.
//
// WHY: Background runs report through their job: progress events, a final
// result and the failure notification.
func TestTaxReportService_Background(t *testing.T) {
	t.Run("delivers result and events", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		userID := testutil.MakeID()
		testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.January, 5), "1", "20000")
		testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.March, 5), "-1", "25000")

		svc := testutil.NewTestTaxReportService(t, db, testutil.NewMockPriceSource())
		params := model.TaxReportParams{End: testutil.Mts(2023, time.December, 31), Strategy: model.StrategyLIFO}

		ctx, cancel := context.WithCancel(context.Background())
		job := svc.MakeTrxTaxReportInBackground(ctx, userID, params)
		// the run is detached from the caller
		cancel()

		var events []model.ReportProgress
		for e := range job.Events() {
			events = append(events, e)
		}
		<-job.Done()

		if job.Err() != nil {
			t.Fatalf("Expected no error, got %v", job.Err())
		}
		if job.Result() == nil || len(job.Result().Taxes) != 1 {
			t.Fatalf("Expected 1 tax lot, got %+v", job.Result())
		}
		if len(events) == 0 || events[0].State != model.ReportStateStarted || events[len(events)-1].State != model.ReportStateCompleted {
			t.Errorf("Expected STARTED ... COMPLETED, got %v", distinctStates(events))
		}
		for _, e := range events {
			if e.JobID != job.ID {
				t.Errorf("Expected job id %s on every event, got %s", job.ID, e.JobID)
			}
		}

		status, err := svc.GetJob(userID, job.ID)
		if err != nil {
			t.Fatalf("GetJob() returned unexpected error: %v", err)
		}
		if !status.Done || status.State != model.ReportStateCompleted || status.Result == nil {
			t.Errorf("Expected completed job status, got %+v", status)
		}

		if _, err := svc.GetJob(testutil.MakeID(), job.ID); !errors.Is(err, apperrors.ErrJobNotFound) {
			t.Errorf("Expected ErrJobNotFound for another user, got %v", err)
		}
	})

	t.Run("delivers failures on the job", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		userID := testutil.MakeID()
		testutil.CreateTrade(t, db, userID, "tBTCUSDTX", testutil.Mts(2023, time.January, 5), "1", "20000")

		svc := testutil.NewTestTaxReportService(t, db, testutil.NewMockPriceSource())
		params := model.TaxReportParams{End: testutil.Mts(2023, time.December, 31), Strategy: model.StrategyLIFO}

		job := svc.MakeTrxTaxReportInBackground(context.Background(), userID, params)
		<-job.Done()

		if !errors.Is(job.Err(), apperrors.ErrCurrencyPairSeparation) {
			t.Errorf("Expected ErrCurrencyPairSeparation, got %v", job.Err())
		}
		if job.Result() != nil {
			t.Errorf("Expected no result, got %+v", job.Result())
		}

		status, _ := svc.GetJob(userID, job.ID)
		if !status.Done || status.Error == "" {
			t.Errorf("Expected failed job status, got %+v", status)
		}
	})
}

func TestTaxReportService_EndSession(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userID := testutil.MakeID()
	testutil.NewMovement(userID).Build(t, db)

	source := testutil.NewMockPriceSource().Blocking()
	svc := testutil.NewTestTaxReportService(t, db, source)
	params := model.TaxReportParams{End: testutil.Mts(2023, time.December, 31), Strategy: model.StrategyLIFO}

	job := svc.MakeTrxTaxReportInBackground(context.Background(), userID, params)

	select {
	case <-source.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("price fetch never started")
	}

	if !svc.EndSession(userID) {
		t.Error("Expected EndSession to interrupt the running report")
	}

	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish after the session ended")
	}

	if job.Err() != nil {
		t.Errorf("Expected no error, got %v", job.Err())
	}
	if status := job.Status(); status.State != model.ReportStateInterrupted {
		t.Errorf("Expected INTERRUPTED, got %s", status.State)
	}
}
