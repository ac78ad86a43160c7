package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/logging"
)

// ErrorBody is the error payload of every non-2xx response
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps an engine error onto the wire. Every not-found
// gets the same body so hidden and missing profiles look alike, and
// system failures never leak their cause.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ce := apperrors.Categorize(err)

	switch ce.Category {
	case apperrors.CategoryNotFound:
		respondError(w, http.StatusNotFound, apperrors.CodeNotFound, "resource not found", nil)
	case apperrors.CategoryTransient:
		logging.FromContext(r.Context()).WithError(err).Warn("storage unavailable")
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, apperrors.CodeTransient, "service temporarily unavailable", nil)
	case apperrors.CategoryInternal:
		logging.FromContext(r.Context()).WithError(err).Error("request failed")
		respondError(w, http.StatusInternalServerError, apperrors.CodeInternal, "an internal error occurred", nil)
	case apperrors.CategoryRateLimit:
		if v, ok := ce.Details["retryAfter"]; ok {
			w.Header().Set("Retry-After", fmt.Sprint(v))
		}
		respondError(w, ce.StatusCode, ce.Code, ce.Message, ce.Details)
	default:
		respondError(w, ce.StatusCode, ce.Code, ce.Message, ce.Details)
	}
}

// maxBodyBytes bounds every request body
const maxBodyBytes = 1 << 20

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		e := apperrors.NewValidationError("body", "malformed JSON")
		e.Code = apperrors.CodeInvalidRequestBody
		e.Message = "invalid request body"
		e.Cause = err
		return e
	}
	return nil
}

// queryInt reads an optional integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// queryBool reads an optional boolean query parameter
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.NewValidationError(name, "must be a boolean")
	}
	return b, nil
}

// errMissingField is returned for an absent required body field
func errMissingField(field string) error {
	return apperrors.NewValidationError(field, "is required")
}
