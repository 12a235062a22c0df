package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/request"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/response"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/service"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/validation"
)

// TaxReportHandler handles HTTP requests for transaction tax report endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// business logic to the taxReportService.
type TaxReportHandler struct {
	taxReportService *service.TaxReportService
	now              func() time.Time
}

// NewTaxReportHandler creates a new TaxReportHandler with the provided service dependency.
func NewTaxReportHandler(taxReportService *service.TaxReportService) *TaxReportHandler {
	return &TaxReportHandler{
		taxReportService: taxReportService,
		now:              time.Now,
	}
}

// BackgroundJobResponse is returned when a background report is accepted.
type BackgroundJobResponse struct {
	JobID string            `json:"jobId"`
	State model.ReportState `json:"state"`
}

// GetTaxReport handles GET requests computing a transaction tax report synchronously.
// An interrupted report is returned as an empty report with 200 OK.
//
// Endpoint: GET /api/tax-report?start=&end=&isFIFO=&isLIFO=
// Response: 200 OK with TaxReport
// Error: 400 Bad Request if the period or strategy flags are invalid
// Error: 500 Internal Server Error if the report cannot be generated
func (h *TaxReportHandler) GetTaxReport(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	q := r.URL.Query()
	req, err := request.ParseTaxReportQuery(q.Get("start"), q.Get("end"), q.Get("isFIFO"), q.Get("isLIFO"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	params, err := validation.ValidateTaxReport(req.WithDefaultEnd(h.now()))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	report, err := h.taxReportService.GetTransactionTaxReport(r.Context(), userID, params, nil)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToGenerateReport.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, report)
}

// StartBackground handles POST requests starting a transaction tax report in the
// background. The run outlives the request; poll the returned job for its result.
//
// Endpoint: POST /api/tax-report/background
// Request: TaxReportRequest
// Response: 202 Accepted with BackgroundJobResponse
// Error: 400 Bad Request if the body is invalid or validation fails
func (h *TaxReportHandler) StartBackground(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	req, err := parseJSON[request.TaxReportRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	params, err := validation.ValidateTaxReport(req.WithDefaultEnd(h.now()))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	job := h.taxReportService.MakeTrxTaxReportInBackground(r.Context(), userID, params)

	response.RespondJSON(w, http.StatusAccepted, BackgroundJobResponse{
		JobID: job.ID,
		State: model.ReportStateStarted,
	})
}

// GetJob handles GET requests for the status of a background report job.
//
// Endpoint: GET /api/tax-report/jobs/{uuid}
// Response: 200 OK with ReportJobStatus
// Error: 400 Bad Request if the job ID is invalid (validated by middleware)
// Error: 404 Not Found if the job does not exist for the caller
func (h *TaxReportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	jobID := chi.URLParam(r, "uuid")

	status, err := h.taxReportService.GetJob(userID, jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrJobNotFound) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrJobNotFound.Error(), jobID)
			return
		}
		response.RespondError(w, http.StatusInternalServerError, "failed to retrieve job", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, status)
}

// GetProgress handles GET requests for the last progress event of the caller.
//
// Endpoint: GET /api/tax-report/progress
// Response: 200 OK with ReportProgress
// Error: 404 Not Found if the caller has not run a report recently
func (h *TaxReportHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	progress, err := h.taxReportService.GetLastProgress(userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrProgressNotFound) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrProgressNotFound.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, "failed to retrieve progress", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, progress)
}
