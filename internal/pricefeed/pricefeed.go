// Package pricefeed fetches historical reference prices from the public candles API.
package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/config"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/trxtax"
)

// invalidSymbolCode is the API error code returned for unknown or delisted pairs.
const invalidSymbolCode = 10020

var _ trxtax.PriceSource = (*CandlesClient)(nil)

// CandlesClient fetches historical candles and exposes their close prices.
// Requests are throttled with a token bucket so concurrent report runs share
// the API's rate limit.
type CandlesClient struct {
	httpClient *http.Client
	baseURL    string
	timeframe  string
	limiter    *rate.Limiter
}

// NewCandlesClient creates a client for the configured candles endpoint.
func NewCandlesClient(cfg config.PriceFeedConfig) *CandlesClient {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}

	return &CandlesClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		timeframe:  cfg.Timeframe,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Prices returns up to limit close prices of symbol with a timestamp at or before end,
// newest first. An empty slice means there is no more data before end.
//
// Returns apperrors.ErrSymbolNotFound when the API does not know the pair.
func (c *CandlesClient) Prices(ctx context.Context, symbol string, end int64, limit int) ([]model.PricePoint, error) {
	candles, err := c.QueryCandles(ctx, symbol, end, limit)
	if err != nil {
		return nil, err
	}
	return PricePoints(candles), nil
}

// QueryCandles fetches one page of candles ending at end (epoch ms), sorted newest first.
func (c *CandlesClient) QueryCandles(ctx context.Context, symbol string, end int64, limit int) ([]Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("end", strconv.FormatInt(end, 10))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "-1")

	endpoint := fmt.Sprintf(
		"%s/v2/candles/trade:%s:%s/hist?%s",
		c.baseURL,
		c.timeframe,
		url.PathEscape(symbol),
		q.Encode(),
	)

	data, err := c.query(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return ParseCandles(data)
}

// ParseCandles converts a raw candles payload into candles.
// The API error payload is turned into an *APIError, or apperrors.ErrSymbolNotFound
// for invalid symbols.
func ParseCandles(data []byte) ([]Candle, error) {
	var raw Response
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode candles: %w", err)
	}

	if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw[0]), []byte(`"`)) {
		return nil, parseAPIError(raw)
	}

	candles := make([]Candle, 0, len(raw))
	for i, r := range raw {
		var fields []json.Number
		decoder := json.NewDecoder(bytes.NewReader(r))
		decoder.UseNumber()
		if err := decoder.Decode(&fields); err != nil {
			return nil, fmt.Errorf("failed to decode candle %d: %w", i, err)
		}
		if len(fields) < 6 {
			return nil, fmt.Errorf("candle %d has %d fields, expected 6", i, len(fields))
		}

		mts, err := fields[0].Int64()
		if err != nil {
			return nil, fmt.Errorf("candle %d has invalid timestamp: %w", i, err)
		}

		values := make([]decimal.Decimal, 5)
		for j := range values {
			values[j], err = decimal.NewFromString(fields[j+1].String())
			if err != nil {
				return nil, fmt.Errorf("candle %d has invalid value: %w", i, err)
			}
		}

		candles = append(candles, Candle{
			Mts:    mts,
			Open:   values[0],
			Close:  values[1],
			High:   values[2],
			Low:    values[3],
			Volume: values[4],
		})
	}

	return candles, nil
}

func parseAPIError(raw Response) error {
	apiErr := &APIError{}
	if len(raw) > 1 {
		_ = json.Unmarshal(raw[1], &apiErr.Code)
	}
	if len(raw) > 2 {
		_ = json.Unmarshal(raw[2], &apiErr.Message)
	}
	if apiErr.Code == invalidSymbolCode {
		return fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, apiErr.Message)
	}
	return apiErr
}

// query executes a GET request and returns the body.
// Error payloads are returned with their body so ParseCandles can classify them.
func (c *CandlesClient) query(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`["error"`)) {
			return data, nil
		}
		return nil, fmt.Errorf("price api returned status %d", resp.StatusCode)
	}

	return data, nil
}
