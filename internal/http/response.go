package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/potholewatch/backend/internal/report"
	"github.com/potholewatch/backend/internal/repo"
	"github.com/potholewatch/backend/internal/service"
)

// SuccessEnvelope wraps successful payloads.
type SuccessEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// ErrorEnvelope wraps failures.
type ErrorEnvelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// ErrorBody is the normalized error shape.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessEnvelope{Data: data, Error: nil})
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Data:  nil,
		Error: &ErrorBody{Code: code, Message: message, Details: details},
	})
}

// writeServiceError maps domain errors to HTTP responses. Anything unknown is
// logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *report.ValidationError
		accountErr *service.ValidationError
		rejected   *report.AuditRejectedError
	)

	switch {
	case errors.As(err, &validation):
		WriteError(w, http.StatusBadRequest, "VALIDATION", validation.Error(), map[string]string{"field": validation.Field})
	case errors.As(err, &accountErr):
		WriteError(w, http.StatusBadRequest, "VALIDATION", accountErr.Error(), map[string]string{"field": accountErr.Field})
	case errors.As(err, &rejected):
		WriteError(w, http.StatusBadRequest, "AUDIT_REJECTED",
			"resolution image still shows defects", map[string]int{"detectedCount": rejected.DetectedCount})
	case errors.Is(err, report.ErrDetection):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("detector unavailable")
		WriteError(w, http.StatusServiceUnavailable, "DETECTION_UNAVAILABLE", "defect detection is unavailable, try again later", nil)
	case errors.Is(err, report.ErrInvalidState):
		WriteError(w, http.StatusConflict, "INVALID_STATE", "report is already resolved", nil)
	case errors.Is(err, report.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, repo.ErrDuplicate):
		WriteError(w, http.StatusConflict, "DUPLICATE", "email already registered", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "AUTH", "invalid email or password", nil)
	case errors.Is(err, service.ErrRefreshInvalid):
		WriteError(w, http.StatusUnauthorized, "AUTH", "invalid refresh token", nil)
	case errors.Is(err, report.ErrForbidden):
		WriteError(w, http.StatusForbidden, "FORBIDDEN", "not allowed to modify this report", nil)
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
