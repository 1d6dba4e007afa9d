package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/validator"
)

// Response is the JSON envelope returned by every endpoint.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes v wrapped in the Response envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteError maps err to a status and writes the error envelope. Validation
// errors carry per-field messages; server errors are logged through the
// request-scoped logger when one is present, otherwise through fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "VALIDATION_ERROR",
				Message:   "request validation failed",
				Fields:    valErr.Fields(),
				RequestID: requestID,
			},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	body := &ErrorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred", RequestID: requestID}

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		body.Code = appErr.Code
		body.Message = appErr.Message
	case errors.Is(err, apperrors.ErrNotFound):
		body.Code = "NOT_FOUND"
		body.Message = "resource not found"
	case errors.Is(err, apperrors.ErrConflict):
		body.Code = "CONFLICT"
		body.Message = err.Error()
	case errors.Is(err, apperrors.ErrInvalidInput):
		body.Code = "INVALID_INPUT"
		body.Message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
		)
	}

	WriteJSON(w, status, Response{Error: body})
}

// QueryFloat parses an optional float query parameter. Absent or blank
// parameters yield nil.
func QueryFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.InvalidInputf("%s must be a number", name)
	}
	return &v, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.InvalidInputf("%s must be true or false", name)
	}
	return &v, nil
}

// QueryInt parses an optional integer query parameter, returning def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, apperrors.InvalidInputf("%s must be an integer", name)
	}
	return v, nil
}

// RequiredFloat parses a mandatory float query parameter.
func RequiredFloat(r *http.Request, name string) (float64, error) {
	v, err := QueryFloat(r, name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, apperrors.InvalidInputf("%s is required", name)
	}
	return *v, nil
}
