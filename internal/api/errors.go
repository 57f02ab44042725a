package api

import (
	"encoding/json"
	"net/http"

	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/tenant"
)

// Stable machine readable error codes.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeQuotaExceeded   = "QUOTA_EXCEEDED"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeValidation      = "VALIDATION_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

const internalMessage = "internal server error"

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps an error to its HTTP status and code.
func StatusFor(err error) (int, string) {
	switch tenant.Classify(err) {
	case tenant.ErrUnauthorized:
		return http.StatusUnauthorized, CodeUnauthorized
	case tenant.ErrForbidden:
		return http.StatusForbidden, CodeForbidden
	case tenant.ErrTenantNotFound, tenant.ErrResourceNotFound:
		return http.StatusNotFound, CodeNotFound
	case tenant.ErrQuotaExceeded:
		return http.StatusTooManyRequests, CodeQuotaExceeded
	case tenant.ErrTooManyRequests:
		return http.StatusTooManyRequests, CodeTooManyRequests
	case tenant.ErrAlreadyExists:
		return http.StatusConflict, CodeAlreadyExists
	case tenant.ErrValidation:
		return http.StatusBadRequest, CodeValidation
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// WriteError renders err as a JSON error body. Internal failures are logged
// and answered with a fixed message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = internalMessage
	}
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
