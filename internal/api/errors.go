// Package api provides HTTP API handlers for the Ugoite trust core.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ugoite/ugoite/internal/audit"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeMalformedLog indicates a persisted ledger could not be parsed.
	ErrCodeMalformedLog = "malformed_log"

	// ErrCodeIntegrityViolation indicates a ledger failed hash chain verification.
	ErrCodeIntegrityViolation = "integrity_violation"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// Call middleware.SetErrorCode on the context first so the logging middleware
// picks the code up for 4xx/5xx responses.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// auditErrorMapping maps a ledger error to its HTTP status and error code.
// Corrupted ledgers surface as 500: the server cannot repair them and the
// caller cannot either.
func auditErrorMapping(err error) (int, string) {
	switch {
	case errors.Is(err, audit.ErrInvalidSpaceID),
		errors.Is(err, audit.ErrEmptyAction),
		errors.Is(err, audit.ErrEmptyActor):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, audit.ErrMalformedLog):
		return http.StatusInternalServerError, ErrCodeMalformedLog
	case errors.Is(err, audit.ErrMissingEventHash),
		errors.Is(err, audit.ErrPrevHashMismatch),
		errors.Is(err, audit.ErrIntegrityViolation):
		return http.StatusInternalServerError, ErrCodeIntegrityViolation
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
