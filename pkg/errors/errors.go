package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("resource conflict")
	ErrInternal          = errors.New("internal server error")
	ErrValidation        = errors.New("validation error")
	ErrReference         = errors.New("unknown reference")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLockContention    = errors.New("lock contention")
	ErrOverlap           = errors.New("effective range overlap")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("invalid token")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail entry
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// Validation reports malformed input. Details map field names to problems.
func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Invalid is a single-field Validation error.
func Invalid(field, problem string) *AppError {
	return Validation(map[string]string{field: problem})
}

// Reference reports an unknown warehouse, SKU or batch.
func Reference(resource, id string) *AppError {
	return &AppError{
		Err:        ErrReference,
		Code:       "REFERENCE_ERROR",
		Message:    fmt.Sprintf("unknown %s %s", resource, id),
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]string{resource: id},
	}
}

// InsufficientStock reports an outbound movement larger than the balance.
func InsufficientStock(available, requested int64) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock: %d cartons available, %d requested", available, requested),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"available": fmt.Sprint(available),
			"requested": fmt.Sprint(requested),
		},
	}
}

// LockContention reports that the per-key lock could not be taken in time.
// Callers may retry the whole operation.
func LockContention(key string) *AppError {
	return &AppError{
		Err:        ErrLockContention,
		Code:       "LOCK_CONTENTION",
		Message:    "balance is locked by a concurrent writer",
		StatusCode: http.StatusServiceUnavailable,
		Details:    map[string]string{"key": key, "retryable": "true"},
	}
}

// Overlap reports an effective-dated range clashing with an existing one.
func Overlap(resource, existingID string) *AppError {
	return &AppError{
		Err:        ErrOverlap,
		Code:       "OVERLAP",
		Message:    fmt.Sprintf("%s effective range overlaps an existing one", resource),
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"existing_id": existingID},
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:        ErrTokenExpired,
		Code:       "TOKEN_EXPIRED",
		Message:    "token has expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       "TOKEN_INVALID",
		Message:    "invalid token",
		StatusCode: http.StatusUnauthorized,
	}
}

// IsRetryable reports whether err is transient and the operation may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockContention)
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
