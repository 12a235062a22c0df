package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/logging"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/repository"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/service"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/trxtax"
)

// TestTaxReportOptions returns report options suited for tests: small pages and
// millisecond retry delays.
func TestTaxReportOptions() service.TaxReportOptions {
	return service.TaxReportOptions{
		Triangulation: trxtax.TriangulationOptions{
			PageLimit:   100,
			MaxAttempts: 2,
			RetryDelay:  time.Millisecond,
			Timeout:     time.Minute,
		},
		PersistBatch: 2,
		CacheTTL:     time.Minute,
		JobRetention: time.Minute,
	}
}

// NewTestTaxReportService creates a TaxReportService on db that reads prices from source.
func NewTestTaxReportService(t *testing.T, db *sql.DB, source trxtax.PriceSource) *service.TaxReportService {
	t.Helper()

	return service.NewTaxReportService(
		repository.NewTradeRepository(db),
		repository.NewMovementRepository(db),
		repository.NewCurrencyRepository(db),
		source,
		TestTaxReportOptions(),
		logging.Discard(),
	)
}

func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()
	return service.NewSystemService(db)
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}
