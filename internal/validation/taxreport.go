package validation

import (
	"fmt"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/request"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// ValidateTaxReport validates a tax report request and converts it to report
// parameters.
//
// Rules:
//   - start and end: non-negative, start <= end
//   - isFIFO and isLIFO: not both set (neither selects LIFO)
//
// Returns apperrors.ErrInvalidStrategy or a validation Error wrapping
// apperrors.ErrInvalidDateRange.
func ValidateTaxReport(req request.TaxReportRequest) (model.TaxReportParams, error) {
	if req.IsFIFO && req.IsLIFO {
		return model.TaxReportParams{}, apperrors.ErrInvalidStrategy
	}

	errors := make(map[string]string)
	if req.Start < 0 {
		errors["start"] = "start must not be negative"
	}
	if req.End < 0 {
		errors["end"] = "end must not be negative"
	}
	if req.Start > req.End {
		errors["end"] = "end must not be before start"
	}
	if len(errors) > 0 {
		return model.TaxReportParams{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidDateRange, &Error{Fields: errors})
	}

	strategy := model.StrategyLIFO
	if req.IsFIFO {
		strategy = model.StrategyFIFO
	}

	return model.TaxReportParams{
		Start:    req.Start,
		End:      req.End,
		Strategy: strategy,
	}, nil
}

// ValidateInterrupt checks that every name is a known interrupter.
func ValidateInterrupt(req request.InterruptRequest) error {
	if len(req.Names) == 0 {
		return &Error{Fields: map[string]string{"names": "at least one interrupter name is required"}}
	}

	for _, name := range req.Names {
		if !model.IsInterrupterName(name) {
			return fmt.Errorf("%w: %s", apperrors.ErrUnknownInterrupter, name)
		}
	}
	return nil
}
