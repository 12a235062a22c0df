package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/service"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/testutil"
)

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) ResultResponse {
	t.Helper()
	var res ResultResponse
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return res
}

func TestOperationsHandler_Interrupt(t *testing.T) {
	setup := func(t *testing.T, source *testutil.MockPriceSource) (*OperationsHandler, *service.TaxReportService) {
		t.Helper()
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestTaxReportService(t, db, source)
		return NewOperationsHandler(svc), svc
	}

	t.Run("nothing running", func(t *testing.T) {
		handler, _ := setup(t, testutil.NewMockPriceSource())

		req := httptest.NewRequest(http.MethodPost, "/api/operations/interrupt", strings.NewReader(`{"names": ["TRX_TAX_REPORT_INTERRUPTER"]}`))
		w := httptest.NewRecorder()

		handler.Interrupt(w, withUser(req, testutil.MakeID()))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if decodeResult(t, w).Result {
			t.Error("Expected result false")
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		handler, _ := setup(t, testutil.NewMockPriceSource())

		req := httptest.NewRequest(http.MethodPost, "/api/operations/interrupt", strings.NewReader(`{"names": ["SYNC_INTERRUPTER"]}`))
		w := httptest.NewRecorder()

		handler.Interrupt(w, withUser(req, testutil.MakeID()))

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("empty names", func(t *testing.T) {
		handler, _ := setup(t, testutil.NewMockPriceSource())

		req := httptest.NewRequest(http.MethodPost, "/api/operations/interrupt", strings.NewReader(`{"names": []}`))
		w := httptest.NewRecorder()

		handler.Interrupt(w, withUser(req, testutil.MakeID()))

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("interrupts a running background report", func(t *testing.T) {
		source := testutil.NewMockPriceSource().Blocking()
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestTaxReportService(t, db, source)
		handler := NewOperationsHandler(svc)

		userID := testutil.MakeID()
		testutil.NewMovement(userID).Build(t, db)
		job := svc.MakeTrxTaxReportInBackground(t.Context(), userID, model.TaxReportParams{End: testutil.Mts(2023, time.December, 31)})

		select {
		case <-source.Started():
		case <-time.After(5 * time.Second):
			t.Fatal("price fetch never started")
		}

		req := httptest.NewRequest(http.MethodPost, "/api/operations/interrupt", strings.NewReader(`{"names": ["TRX_TAX_REPORT_INTERRUPTER"]}`))
		w := httptest.NewRecorder()
		handler.Interrupt(w, withUser(req, userID))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if !decodeResult(t, w).Result {
			t.Error("Expected result true")
		}

		select {
		case <-job.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("job did not finish after interruption")
		}
		if job.Status().State != model.ReportStateInterrupted {
			t.Errorf("Expected INTERRUPTED, got %s", job.Status().State)
		}
	})
}

func TestOperationsHandler_EndSession(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := NewOperationsHandler(testutil.NewTestTaxReportService(t, db, testutil.NewMockPriceSource()))

	req := httptest.NewRequest(http.MethodPost, "/api/session/end", nil)
	w := httptest.NewRecorder()

	handler.EndSession(w, withUser(req, testutil.MakeID()))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if decodeResult(t, w).Result {
		t.Error("Expected result false with nothing running")
	}
}
