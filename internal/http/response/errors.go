package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// Common error codes
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

const retryLater = "The service is temporarily unavailable. Please try again later."

func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// FromError maps the domain error taxonomy onto a status code and body.
// Store failures and unknown errors never leak their text.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		terr *domain.TransitionError
	)
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Code: CodeInvalidInput, Field: verr.Field})
	case errors.Is(err, domain.ErrValidation):
		BadRequest(w, err.Error())
	case errors.As(err, &terr):
		WriteErrorWithDetails(w, http.StatusConflict, "Action not allowed in the current state", CodeInvalidTransition, terr.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		WriteError(w, http.StatusConflict, "Action not allowed in the current state", CodeInvalidTransition)
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "Invalid credentials", CodeInvalidCredentials)
	case errors.Is(err, domain.ErrUnauthenticated):
		Unauthorized(w, "Authentication required")
	case errors.Is(err, domain.ErrForbidden):
		Forbidden(w, "You do not have permission to perform this action")
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "Resource not found")
	case errors.Is(err, domain.ErrConflict):
		Conflict(w, "The resource was changed or is still in use")
	case errors.Is(err, domain.ErrRateLimited):
		RateLimit(w, "Too many requests. Try again later.")
	case errors.Is(err, domain.ErrUnavailable):
		logger.ErrorContext(r.Context(), "Dependency unavailable", "error", err)
		WriteError(w, http.StatusServiceUnavailable, retryLater, CodeUnavailable)
	default:
		logger.ErrorContext(r.Context(), "Unhandled error", "error", err)
		InternalError(w, "Internal server error")
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}
