package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrStorageReadFailed  = errors.New("storage read failed")
	ErrNotFound           = errors.New("not found")
	ErrIllegalTransition  = errors.New("illegal stage transition")
	ErrInsufficientData   = errors.New("insufficient data for statistical test")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeTransition ErrorType = "transition"
	ErrorTypeStatistics ErrorType = "statistics"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes used across the control plane
const (
	CodeStorageWriteFailed = "STORAGE_WRITE_FAILED"
	CodeStorageReadFailed  = "STORAGE_READ_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeIllegalTransition  = "ILLEGAL_TRANSITION"
	CodeInsufficientData   = "INSUFFICIENT_DATA"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeInternalError      = "INTERNAL_ERROR"
)

// AppError is an application error with category, code and optional cause.
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewStorageWriteError reports a failed write to a durable medium.
func NewStorageWriteError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeStorage,
		Code:    CodeStorageWriteFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewStorageReadError reports a failed read from a durable medium.
func NewStorageReadError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeStorage,
		Code:    CodeStorageReadFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewNotFoundError reports a lookup with no match. The miss is surfaced to
// the caller; it is never substituted with a guessed value.
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrorTypeNotFound, CodeNotFound, message)
}

// NewIllegalTransitionError reports a stage-graph violation.
func NewIllegalTransitionError(message string) *AppError {
	return NewAppError(ErrorTypeTransition, CodeIllegalTransition, message)
}

// NewInsufficientDataError reports a statistical test that cannot be computed.
func NewInsufficientDataError(message string) *AppError {
	return NewAppError(ErrorTypeStatistics, CodeInsufficientData, message)
}

// NewInvalidArgumentError reports a malformed request to the core.
func NewInvalidArgumentError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, CodeInvalidArgument, message)
}

// NewValidationError creates a validation error with an explicit code.
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeNotFound
	}
	return errors.Is(err, ErrNotFound)
}

// IsIllegalTransition reports whether err is a stage-graph violation.
func IsIllegalTransition(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeIllegalTransition
	}
	return errors.Is(err, ErrIllegalTransition)
}

// IsInsufficientData reports whether err marks an untestable feature.
func IsInsufficientData(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeInsufficientData
	}
	return errors.Is(err, ErrInsufficientData)
}
