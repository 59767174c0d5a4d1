// Package apperrors provides the structured error types used by the tracking
// service. Every error carries a category and a code so that handlers can map
// failures to a response without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Category classifies an error by how the caller should treat it.
type Category string

const (
	CategoryValidation Category = "VALIDATION"
	CategoryNotFound   Category = "NOT_FOUND"
	CategoryConflict   Category = "CONFLICT"
	CategoryExternal   Category = "EXTERNAL"
	CategoryInternal   Category = "INTERNAL"
)

// Error codes.
const (
	// Validation codes
	CodeInvalidUUID      = "INVALID_UUID"
	CodeInvalidFilter    = "INVALID_FILTER"
	CodeInvalidSort      = "INVALID_SORT"
	CodeInvalidPaging    = "INVALID_PAGINATION"
	CodeBlankValue       = "BLANK_VALUE"
	CodeMissingTenant    = "MISSING_TENANT"
	CodeInvalidEventData = "INVALID_EVENT_DATA"
	CodeInvalidRequest   = "INVALID_REQUEST"

	// Not found codes
	CodeRecordNotFound = "RECORD_NOT_FOUND"
	CodeNoData         = "NO_DATA"

	// Conflict codes
	CodeDuplicateSubmission = "DUPLICATE_SUBMISSION"

	// External codes
	CodeUpstreamFailed      = "UPSTREAM_FAILED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
	CodeDatabase   = "DATABASE"
)

// AppError is the structured error type used throughout the service.
type AppError struct {
	Category Category
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// WithDetails returns a copy of the error with additional details.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// New creates a new AppError.
func New(category Category, code, message string) *AppError {
	return &AppError{Category: category, Code: code, Message: message}
}

// Wrap creates a new AppError wrapping an existing error.
func Wrap(category Category, code, message string, cause error) *AppError {
	return &AppError{Category: category, Code: code, Message: message, Cause: cause}
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an AppError.
func GetCategory(err error) Category {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
func GetCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func IsValidation(err error) bool { return GetCategory(err) == CategoryValidation }
func IsNotFound(err error) bool   { return GetCategory(err) == CategoryNotFound }
func IsConflict(err error) bool   { return GetCategory(err) == CategoryConflict }
func IsExternal(err error) bool   { return GetCategory(err) == CategoryExternal }

// Convenience constructors for common errors.

func NewValidationError(code, message string) *AppError {
	return New(CategoryValidation, code, message)
}

func NewNotFoundError(code, message string) *AppError {
	return New(CategoryNotFound, code, message)
}

func NewConflictError(code, message string) *AppError {
	return New(CategoryConflict, code, message)
}

func NewExternalError(code, message string, cause error) *AppError {
	return Wrap(CategoryExternal, code, message, cause)
}

// NewInternalError keeps the original error as the cause so it reaches the logs.
func NewInternalError(message string, cause error) *AppError {
	return Wrap(CategoryInternal, CodeUnexpected, message, cause)
}

func NewDatabaseError(message string, cause error) *AppError {
	return Wrap(CategoryInternal, CodeDatabase, message, cause)
}

// Classify returns err unchanged when it already is an AppError and wraps it
// as an internal error otherwise.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return NewInternalError("unexpected error", err)
}
