package handler

// RESPONSE HELPERS:
// Every admin endpoint answers JSON. Errors always have the same shape:
//
//	{"error": "validation_error", "message": "unknown category \"depth\""}
//
// writeError is the one place where error kinds become HTTP status codes;
// services and clients never see a status code.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/highest-aircraft/internal/apperror"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends data with status. Headers must be set before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps an error kind to its HTTP status and error type.
//
// Failures of an upstream provider (flight search, X) are 502: the bot is
// fine, something it depends on is not.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, apperror.ErrDataSource):
		return http.StatusBadGateway, "data_source_error"
	case errors.Is(err, apperror.ErrAuthorization):
		return http.StatusBadGateway, "authorization_error"
	case errors.Is(err, apperror.ErrPublish):
		return http.StatusBadGateway, "publish_error"
	case errors.Is(err, apperror.ErrPersistence):
		return http.StatusInternalServerError, "persistence_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError translates err into a status code and an ErrorResponse.
//
// Only an *AppError's Message reaches the client. Causes (SQL errors,
// upstream bodies) and unknown errors stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
	})
}
