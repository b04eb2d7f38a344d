package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for each error type
type ErrorCode string

const (
	// General errors
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest  ErrorCode = "BAD_REQUEST"
	ErrCodeConflict    ErrorCode = "CONFLICT"
	ErrCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Configuration faults - fatal, abort run construction
	ErrCodeConfigInvalid     ErrorCode = "CONFIG_INVALID"
	ErrCodeHeaderRuleUnknown ErrorCode = "HEADER_RULE_UNKNOWN"
	ErrCodeUnderscorePointer ErrorCode = "UNDERSCORE_POINTER"

	// File processing errors
	ErrCodeFileTooLarge         ErrorCode = "FILE_TOO_LARGE"
	ErrCodeUnsupportedFormat    ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeUnsupportedStructure ErrorCode = "UNSUPPORTED_STRUCTURE"
	ErrCodeFileParseError       ErrorCode = "FILE_PARSE_ERROR"

	// Run errors
	ErrCodeHeaderResolution ErrorCode = "HEADER_RESOLUTION"
	ErrCodeRunLocked        ErrorCode = "RUN_LOCKED"

	// Database errors
	ErrCodeDatabaseError  ErrorCode = "DATABASE_ERROR"
	ErrCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// Queue errors
	ErrCodeQueueError ErrorCode = "QUEUE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message, http.StatusNotFound)
}

func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

func Unavailable(message string) *AppError {
	return New(ErrCodeUnavailable, message, http.StatusServiceUnavailable)
}

// Configuration faults

func ConfigInvalid(message string) *AppError {
	return New(ErrCodeConfigInvalid, message, http.StatusInternalServerError)
}

func ConfigInvalidWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeConfigInvalid, message, http.StatusInternalServerError)
}

func HeaderRuleUnknown(rule, column string) *AppError {
	return New(ErrCodeHeaderRuleUnknown,
		fmt.Sprintf("header rule %q on %s is not defined", rule, column),
		http.StatusInternalServerError)
}

func UnderscorePointer(segment string) *AppError {
	return New(ErrCodeUnderscorePointer,
		fmt.Sprintf("underscore pointer for %q is not declared", segment),
		http.StatusInternalServerError)
}

// File processing errors

func FileTooLarge(size, maxSize int64) *AppError {
	return New(ErrCodeFileTooLarge,
		fmt.Sprintf("file size %d exceeds maximum %d", size, maxSize),
		http.StatusBadRequest)
}

func UnsupportedFormat(format string) *AppError {
	return New(ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported file format: %s", format),
		http.StatusBadRequest)
}

func UnsupportedStructure(format string) *AppError {
	return New(ErrCodeUnsupportedStructure,
		fmt.Sprintf("The supplied %s structure processing is not yet available", format),
		http.StatusUnprocessableEntity)
}

// Run errors

func HeaderResolution(message string) *AppError {
	return New(ErrCodeHeaderResolution, message, http.StatusUnprocessableEntity)
}

func RunLocked(sheet string) *AppError {
	return New(ErrCodeRunLocked,
		fmt.Sprintf("another run is in progress for sheet %s", sheet),
		http.StatusConflict).WithDetails("sheet", sheet)
}

// Database errors

func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError)
}

func RecordNotFound(resource string) *AppError {
	return New(ErrCodeRecordNotFound,
		fmt.Sprintf("%s not found", resource),
		http.StatusNotFound)
}

// Queue errors

func QueueError(err error, message string) *AppError {
	return Wrap(err, ErrCodeQueueError, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// HasCode reports whether err carries an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Code == code
}
