package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/middleware"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
)

// maxBodyBytes bounds the size of JSON request bodies.
const maxBodyBytes = 1 << 20

// respondJSON sends a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.WithError(err).Error("Failed to encode JSON")
		}
	}
}

// parseJSON decodes the request body into T. Unknown fields are rejected.
func parseJSON[T any](r *http.Request) (T, error) {
	var req T
	if r.Body == nil {
		return req, errors.New("request body is required")
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	return req, nil
}

// userIDFrom returns the user id set by middleware.UserIDMiddleware.
func userIDFrom(r *http.Request) (string, error) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		return "", apperrors.ErrMissingUser
	}
	return userID, nil
}
