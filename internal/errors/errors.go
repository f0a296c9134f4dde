// Package errors defines the structured error type returned by the famfin services.
// Every synchronous failure surfaces as an *AppError carrying a stable string code;
// internal causes are kept for logging and never rendered to clients.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is a structured application error with a stable code, a human-readable
// message, the HTTP status to render, and an optional internal cause.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an *AppError with the same code, so callers can match
// against the sentinels even after Wrap or WithMessage.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap creates a new AppError with the sentinel's code/message/status wrapping internal.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WithMessagef is WithMessage with formatting.
func WithMessagef(sentinel *AppError, format string, args ...any) *AppError {
	return WithMessage(sentinel, fmt.Sprintf(format, args...))
}

// Code extracts the AppError code from err, or "" when err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}

	ErrInvalidFeedKey    = &AppError{Code: "INVALID_FEED_KEY", Message: "Invalid or missing feed key", StatusCode: http.StatusUnauthorized}
	ErrFeedNotConfigured = &AppError{Code: "FEED_NOT_CONFIGURED", Message: "Feed webhook is not configured", StatusCode: http.StatusServiceUnavailable}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Period errors.
var (
	ErrPeriodNotFound     = &AppError{Code: "PERIOD_NOT_FOUND", Message: "Source period not found", StatusCode: http.StatusNotFound}
	ErrInvalidPeriodType  = &AppError{Code: "INVALID_PERIOD_TYPE", Message: "Unsupported period type", StatusCode: http.StatusBadRequest}
	ErrInvalidFrequency   = &AppError{Code: "INVALID_FREQUENCY", Message: "Unsupported frequency for this obligation kind", StatusCode: http.StatusBadRequest}
	ErrProjectionNotFound = &AppError{Code: "PROJECTION_NOT_FOUND", Message: "Period projection not found", StatusCode: http.StatusNotFound}
	ErrVersionConflict    = &AppError{Code: "VERSION_CONFLICT", Message: "Projection was modified concurrently, retry later", StatusCode: http.StatusConflict}
)

// Obligation errors.
var (
	ErrObligationNotFound = &AppError{Code: "OBLIGATION_NOT_FOUND", Message: "Obligation not found", StatusCode: http.StatusNotFound}
	ErrObligationInactive = &AppError{Code: "OBLIGATION_INACTIVE", Message: "Obligation is no longer active", StatusCode: http.StatusConflict}
	ErrStreamNotFound     = &AppError{Code: "STREAM_NOT_FOUND", Message: "No obligation is linked to this recurrence stream", StatusCode: http.StatusNotFound}
)

// Transaction errors.
var (
	ErrTransactionNotFound = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrInvalidSplit        = &AppError{Code: "INVALID_SPLIT", Message: "Invalid transaction split", StatusCode: http.StatusBadRequest}
	ErrSplitExceedsTotal   = &AppError{Code: "SPLIT_EXCEEDS_TOTAL", Message: "Split amounts exceed the transaction amount", StatusCode: http.StatusBadRequest}
)
