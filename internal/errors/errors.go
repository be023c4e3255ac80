// Package errors defines the application error type shared by the crawl pipeline,
// its stores and the HTTP boundary.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data or a held lock.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeRangeTooLarge is raised before any network activity when a date span exceeds the ceiling.
	ErrCodeRangeTooLarge ErrorCode = "range_too_large"
	// ErrCodeMissingConfiguration indicates a source, credential or backend setting is absent.
	ErrCodeMissingConfiguration ErrorCode = "missing_configuration"
	// ErrCodeNavigationTimeout indicates the target did not load or settle in time.
	ErrCodeNavigationTimeout ErrorCode = "navigation_timeout"
	// ErrCodeNavigationError indicates a non-retryable navigation failure (4xx, error marker, missing element).
	ErrCodeNavigationError ErrorCode = "navigation_error"
	// ErrCodeSchemaNotMatched indicates no table or pattern in the content matched the source schema.
	ErrCodeSchemaNotMatched ErrorCode = "schema_not_matched"
	// ErrCodeExtractionFailure indicates content could not be parsed at all.
	ErrCodeExtractionFailure ErrorCode = "extraction_failure"
	// ErrCodeRateLimitExceeded indicates the target kept signalling rate limiting.
	ErrCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	// ErrCodeTransientNetwork indicates a 5xx or connection-level failure.
	ErrCodeTransientNetwork ErrorCode = "transient_network_failure"
	// ErrCodeStoreWrite indicates the record store rejected a write.
	ErrCodeStoreWrite ErrorCode = "store_write_error"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with the given code and a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return Newf(ErrCodeNotFound, format, args...)
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return Newf(ErrCodeConflict, format, args...)
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// RangeTooLargef creates a RangeTooLarge error.
func RangeTooLargef(format string, args ...any) *AppError {
	return Newf(ErrCodeRangeTooLarge, format, args...)
}

// MissingConfigurationf creates a MissingConfiguration error.
func MissingConfigurationf(format string, args ...any) *AppError {
	return Newf(ErrCodeMissingConfiguration, format, args...)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsRangeTooLarge checks if an error is a RangeTooLarge error.
func IsRangeTooLarge(err error) bool {
	return isCode(err, ErrCodeRangeTooLarge)
}

// IsRetryable reports whether the failure is worth another attempt against the same target.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrCodeRateLimitExceeded, ErrCodeTransientNetwork:
		return true
	default:
		return false
	}
}

// IsJobFatal reports whether the failure aborts a job before any work item runs.
func IsJobFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeRangeTooLarge, ErrCodeMissingConfiguration, ErrCodeValidation, ErrCodeConflict:
		return true
	default:
		return false
	}
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
