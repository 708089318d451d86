package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode categorizes application errors. The prefix of a code (validation_,
// not_found_, upstream_, internal_) drives the HTTP status mapping, so new
// codes pick up the right status by naming convention alone.
type ErrorCode string

const (
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidModel     ErrorCode = "validation_invalid_model"
	ErrCodeValidationInvalidHorizon   ErrorCode = "validation_invalid_horizon"
	ErrCodeValidationInvalidYear      ErrorCode = "validation_invalid_year"
	ErrCodeValidationInsufficientData ErrorCode = "validation_insufficient_data"

	ErrCodeNotFoundSeries  ErrorCode = "not_found_series"
	ErrCodeNotFoundCountry ErrorCode = "not_found_country"
	ErrCodeNotFoundSession ErrorCode = "not_found_session"

	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeInternalExport     ErrorCode = "internal_export_error"

	ErrCodeUpstreamLLM         ErrorCode = "upstream_llm_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus resolves the status for a code by prefix. Unknown codes map to
// 500 so a missing case never leaks a 200.
func (c ErrorCode) HTTPStatus() int {
	switch s := string(c); {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the error type every layer of the platform speaks. Message and
// Details are safe for clients; Err stays server-side and is reachable via
// errors.As for logging.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAppError is the standard constructor. err may be nil for errors that
// originate at this layer.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails attaches structured, client-visible details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status derived from the error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy with details merged in, leaving the original
// untouched so shared sentinel errors stay immutable.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{Code: e.Code, Message: e.Message, Err: e.Err, Details: merged}
}
