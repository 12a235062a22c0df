package handlers

import (
	"errors"
	"net/http"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/request"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/response"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/service"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/validation"
)

// OperationsHandler handles interruption of running operations.
type OperationsHandler struct {
	taxReportService *service.TaxReportService
}

// NewOperationsHandler creates a new OperationsHandler.
func NewOperationsHandler(taxReportService *service.TaxReportService) *OperationsHandler {
	return &OperationsHandler{
		taxReportService: taxReportService,
	}
}

// ResultResponse reports whether an operation had an effect.
type ResultResponse struct {
	Result bool `json:"result"`
}

// Interrupt handles POST requests interrupting the caller's running operations by name.
//
// Endpoint: POST /api/operations/interrupt
// Request: InterruptRequest
// Response: 200 OK with ResultResponse, result is false when nothing was running
// Error: 400 Bad Request if the body is invalid or names an unknown interrupter
func (h *OperationsHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	req, err := parseJSON[request.InterruptRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateInterrupt(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	interrupted, err := h.taxReportService.InterruptOperations(userID, req.Names)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownInterrupter) {
			response.RespondError(w, http.StatusBadRequest, apperrors.ErrUnknownInterrupter.Error(), err.Error())
			return
		}
		response.RespondError(w, http.StatusInternalServerError, "failed to interrupt operations", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, ResultResponse{Result: interrupted})
}

// EndSession handles POST requests ending the caller's session: every running
// operation of the caller is interrupted.
//
// Endpoint: POST /api/session/end
// Response: 200 OK with ResultResponse
func (h *OperationsHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	response.RespondJSON(w, http.StatusOK, ResultResponse{Result: h.taxReportService.EndSession(userID)})
}
