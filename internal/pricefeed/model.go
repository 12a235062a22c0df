package pricefeed

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// Response represents the raw JSON response of the candles history endpoint.
// Every candle is an array [MTS, OPEN, CLOSE, HIGH, LOW, VOLUME]; on failure the
// API answers with ["error", CODE, "message"] instead.
type Response []json.RawMessage

// Candle is a single parsed candle. Only the close price is used as reference price.
type Candle struct {
	Mts    int64
	Open   decimal.Decimal
	Close  decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Volume decimal.Decimal
}

// APIError is the error payload of the candles API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("price api error %d: %s", e.Code, e.Message)
}

// PricePoints converts candles to reference price points, keeping their order.
func PricePoints(candles []Candle) []model.PricePoint {
	points := make([]model.PricePoint, len(candles))
	for i, c := range candles {
		points[i] = model.PricePoint{Mts: c.Mts, Price: c.Close}
	}
	return points
}
