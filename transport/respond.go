package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/renewkit/renewkit/pkg/validator"
	"github.com/renewkit/renewkit/svc/lifecycle"
)

// Envelope is the uniform response body: exactly one of Data or Error is set.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries a machine-readable code, a human-readable message, and
// per-field validation messages when applicable.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Error: &ErrorDetail{Code: code, Message: message}})
}

func writeValidationError(w http.ResponseWriter, verrs validator.ValidationErrors) {
	details := make(map[string][]string, len(verrs.Fields()))
	for _, field := range verrs.Fields() {
		details[field] = verrs.Get(field)
	}
	writeJSON(w, http.StatusUnprocessableEntity, Envelope{Error: &ErrorDetail{
		Code:    "validation_failed",
		Message: "request validation failed",
		Details: details,
	}})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeValidationError(w, verrs)
	case errors.Is(err, lifecycle.ErrSubscriptionNotFound),
		errors.Is(err, lifecycle.ErrAccountNotFound),
		errors.Is(err, lifecycle.ErrNoRetryScheduled):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrRetryNotDue):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, lifecycle.ErrPaymentNotVerified):
		writeError(w, http.StatusUnprocessableEntity, "payment_not_verified", err.Error())
	case errors.Is(err, lifecycle.ErrVerificationPending):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusServiceUnavailable, "verification_pending", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
