package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/portfolio-rebalancer/internal/errors"
	"github.com/portfolio-rebalancer/internal/logging"
)

// Response is the uniform API envelope. Success responses carry data; error
// responses carry a human-readable message and the machine error code.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// respondSuccess sends a success envelope
func respondSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	respondJSON(w, statusCode, Response{Success: true, Data: data})
}

// respondFailure sends an error envelope
func respondFailure(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, Response{Success: false, Code: code, Message: message})
}

// respondServiceError maps a service-layer error onto the envelope. A
// CategorizedError carries its own status code; anything else is an opaque
// internal error.
func respondServiceError(w http.ResponseWriter, err error) {
	var catErr *errors.CategorizedError
	if stderrors.As(err, &catErr) {
		if catErr.StatusCode >= http.StatusInternalServerError {
			logging.WithError(err).Error("Request failed")
		}
		respondFailure(w, catErr.StatusCode, catErr.Code, catErr.Message)
		return
	}

	logging.WithError(err).Error("Request failed with uncategorized error")
	respondFailure(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data) // nolint:errcheck
	}
}

// parseJSONBody parses a JSON request body, rejecting unknown fields
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
