package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/repository"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/testutil"
)

func TestMovementRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewMovementRepository(db)
	userID := testutil.MakeID()

	deposit := testutil.NewMovement(userID).WithCurrency("ETH").WithAmount("3").At(testutil.Mts(2023, time.January, 1)).Build(t, db)
	withdrawal := testutil.NewMovement(userID).WithCurrency("ETH").WithAmount("-1").At(testutil.Mts(2023, time.June, 1)).Build(t, db)
	testutil.NewMovement(userID).At(testutil.Mts(2024, time.January, 1)).Build(t, db)

	movements, err := repo.GetMovements(context.Background(), userID, 0, testutil.Mts(2023, time.December, 31))
	if err != nil {
		t.Fatalf("GetMovements() returned unexpected error: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("Expected 2 movements, got %d", len(movements))
	}
	if movements[0].ID != withdrawal.ID || movements[1].ID != deposit.ID {
		t.Errorf("Expected newest first, got %d, %d", movements[0].ID, movements[1].ID)
	}
	if movements[1].Currency != "ETH" || !movements[1].Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Unexpected movement: %+v", movements[1])
	}

	err = repo.UpdateExactUsdValues(context.Background(), userID, []model.UsdValueUpdate{
		{ID: deposit.ID, ExactUsdValue: decimal.RequireFromString("3600.5")},
	}, 0)
	if err != nil {
		t.Fatalf("UpdateExactUsdValues() returned unexpected error: %v", err)
	}
	if v := testutil.GetCachedUsdValue(t, db, "movements", deposit.ID); !v.Valid || !v.Decimal.Equal(decimal.RequireFromString("3600.5")) {
		t.Errorf("Expected 3600.5, got %v", v)
	}
}
