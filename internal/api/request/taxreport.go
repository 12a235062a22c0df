// Package request holds the request bodies and query parsers of the HTTP API.
package request

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaxReportRequest selects the period and matching strategy of a transaction tax
// report. Start and End are epoch milliseconds, both inclusive.
// At most one of IsFIFO and IsLIFO may be set; neither means LIFO.
type TaxReportRequest struct {
	Start  int64 `json:"start"`
	End    int64 `json:"end"`
	IsFIFO bool  `json:"isFIFO"`
	IsLIFO bool  `json:"isLIFO"`
}

// InterruptRequest names the operations to interrupt, e.g. ["TRX_TAX_REPORT_INTERRUPTER"].
type InterruptRequest struct {
	Names []string `json:"names"`
}

// ParseTaxReportQuery builds a TaxReportRequest from the start, end, isFIFO and
// isLIFO query parameters. All parameters are optional; a missing end means now.
func ParseTaxReportQuery(startParam, endParam, isFIFOParam, isLIFOParam string) (TaxReportRequest, error) {
	req := TaxReportRequest{}

	var err error
	if req.Start, err = parseMts("start", startParam); err != nil {
		return req, err
	}
	if req.End, err = parseMts("end", endParam); err != nil {
		return req, err
	}
	if req.IsFIFO, err = parseFlag("isFIFO", isFIFOParam); err != nil {
		return req, err
	}
	if req.IsLIFO, err = parseFlag("isLIFO", isLIFOParam); err != nil {
		return req, err
	}

	return req, nil
}

// WithDefaultEnd returns req with End set to now if it was left empty.
func (req TaxReportRequest) WithDefaultEnd(now time.Time) TaxReportRequest {
	if req.End == 0 {
		req.End = now.UnixMilli()
	}
	return req
}

func parseMts(name, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	mts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be epoch milliseconds", name)
	}
	return mts, nil
}

func parseFlag(name, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	flag, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", name)
	}
	return flag, nil
}
