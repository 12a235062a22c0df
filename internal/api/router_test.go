package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/middleware"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/config"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/testutil"
)

// TestRouter tests the middleware chain in front of the report routes.
//
// WHY: Report routes act for the user in X-User-ID and must only be reachable
// with a valid API key and time token; system routes stay public.
func TestRouter(t *testing.T) {
	const apiKey = "router-test-key"
	t.Setenv("INTERNAL_API_KEY", apiKey)

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}}}
	router := api.NewRouter(
		testutil.NewTestSystemService(t, db),
		testutil.NewTestTaxReportService(t, db, testutil.NewMockPriceSource()),
		cfg,
	)

	userID := testutil.MakeID()
	testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.January, 5), "1", "20000")
	testutil.CreateTrade(t, db, userID, "tBTCUSD", testutil.Mts(2023, time.March, 5), "-1", "25000")

	authed := func(req *http.Request) *http.Request {
		req.Header.Set("X-API-Key", apiKey)
		req.Header.Set("X-Time-Token", middleware.GenerateTimeToken(apiKey))
		return req
	}

	t.Run("health is public", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/system/health", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}
	})

	t.Run("report requires authentication", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tax-report", nil)
		req.Header.Set(middleware.UserIDHeader, userID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	guarded := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/tax-report"},
		{http.MethodPost, "/api/tax-report/background"},
		{http.MethodGet, "/api/tax-report/progress"},
		{http.MethodGet, "/api/tax-report/jobs/0b7c1c9e-52b5-4d34-9a4f-3d1c8a4f6e21"},
		{http.MethodPost, "/api/operations/interrupt"},
		{http.MethodPost, "/api/session/end"},
	}
	for _, route := range guarded {
		t.Run(route.method+" "+route.path+" rejects a foreign time token", func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			req.Header.Set("X-API-Key", apiKey)
			req.Header.Set("X-Time-Token", middleware.GenerateTimeToken("another-key"))
			req.Header.Set(middleware.UserIDHeader, userID)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", w.Code)
			}
		})
	}

	t.Run("report requires a user", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/api/tax-report", nil)))

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("report", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/api/tax-report?start=0&end=1704067199000", nil))
		req.Header.Set(middleware.UserIDHeader, userID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var report model.TaxReport
		if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(report.Taxes) != 1 {
			t.Errorf("Expected 1 tax lot, got %d", len(report.Taxes))
		}
	})

	t.Run("job id must be a uuid", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/api/tax-report/jobs/not-a-uuid", nil))
		req.Header.Set(middleware.UserIDHeader, userID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}
