package model

import "time"

// Strategy is the lot matching strategy of a tax report.
type Strategy string

const (
	StrategyFIFO Strategy = "FIFO"
	StrategyLIFO Strategy = "LIFO"
)

// TrxTaxReportInterrupter is the interrupter name of transaction tax report runs.
const TrxTaxReportInterrupter = "TRX_TAX_REPORT_INTERRUPTER"

// InterrupterNames lists every name an interrupt request may carry.
var InterrupterNames = []string{TrxTaxReportInterrupter}

// IsInterrupterName reports whether name is one of InterrupterNames.
func IsInterrupterName(name string) bool {
	for _, n := range InterrupterNames {
		if n == name {
			return true
		}
	}
	return false
}

// TaxReportParams are the validated parameters of a report run.
// Start and End are inclusive epoch milliseconds.
type TaxReportParams struct {
	Start    int64    `json:"start"`
	End      int64    `json:"end"`
	Strategy Strategy `json:"strategy"`
}

// TaxReport is the result of a report run. An interrupted run returns empty
// slices as well, so callers must look at the last progress state to tell it
// apart from a period without transactions.
type TaxReport struct {
	Taxes           []TaxLot `json:"taxes"`
	DelistedCcyList []string `json:"delistedCcyList"`
}

// EmptyTaxReport returns a report with non-nil empty slices.
func EmptyTaxReport() *TaxReport {
	return &TaxReport{
		Taxes:           []TaxLot{},
		DelistedCcyList: []string{},
	}
}

// ReportState is the state of a report run.
type ReportState string

const (
	ReportStateStarted         ReportState = "STARTED"
	ReportStateObtainingPrices ReportState = "OBTAINING_PRICES"
	ReportStateMatching        ReportState = "MATCHING"
	ReportStateCompleted       ReportState = "COMPLETED"
	ReportStateInterrupted     ReportState = "INTERRUPTED"
)

// IsTerminal reports whether no further transition is possible.
func (s ReportState) IsTerminal() bool {
	return s == ReportStateCompleted || s == ReportStateInterrupted
}

// ReportProgress is one event on a report's progress channel.
// Progress is nil while the percentage is not meaningful (matching, interrupted).
// Error is only set on the terminal failure notification.
type ReportProgress struct {
	JobID     string      `json:"jobId,omitempty"`
	Progress  *int        `json:"progress"`
	State     ReportState `json:"state"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ReportJobStatus describes a background report run for polling clients.
type ReportJobStatus struct {
	JobID      string          `json:"jobId"`
	Params     TaxReportParams `json:"params"`
	Progress   *int            `json:"progress"`
	State      ReportState     `json:"state"`
	Done       bool            `json:"done"`
	Result     *TaxReport      `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}
