package handler

// RESPONSE HELPERS:
// Every JSON body and every error leaves the API through these two functions,
// so all errors share one shape:
//
//	{"error": "not_found", "message": "snippet not found with id 12"}
//
// Infrastructure failures (store, GitHub, integrity) answer with a generic
// message; the underlying cause only goes to the log.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/idevgames/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation errors
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be set before the body; anything after is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

type errorMapping struct {
	sentinel  error
	status    int
	errorType string
	// generic replaces the AppError message for failures the client cannot act on.
	generic string
}

var errorMappings = []errorMapping{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error", ""},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", ""},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden", ""},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found", ""},
	{apperror.ErrConflict, http.StatusConflict, "conflict", ""},
	{apperror.ErrRemote, http.StatusBadGateway, "remote_error", "GitHub could not be reached"},
	{apperror.ErrStore, http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	{apperror.ErrIdentityInconsistent, http.StatusInternalServerError, "internal_error", "An internal error occurred"},
}

// statusFor returns the HTTP status and the body for err.
func statusFor(err error) (int, ErrorResponse) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, m := range errorMappings {
			if !errors.Is(err, m.sentinel) {
				continue
			}
			resp := ErrorResponse{Error: m.errorType, Message: m.generic}
			if m.generic == "" {
				resp.Message = appErr.Message
				resp.Field = appErr.Field
			}
			return m.status, resp
		}
	}

	// Unknown error: never expose its text.
	return http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	}
}

// writeError maps a domain error to an HTTP status and sends it. 5xx answers
// are logged with their full cause; 4xx answers are routine and logged at
// debug.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, resp := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Debug("request rejected",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be a valid JSON object")
	}
	return nil
}

const maxBodyBytes = 1 << 20
