package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Discriminated error codes for the consultation engine. Callers branch on
// these, not on message text.
const (
	CodeAlreadyInSession = "ALREADY_IN_SESSION"
	CodeAdvisorBusy      = "ADVISOR_BUSY"
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeInvalidState     = "INVALID_STATE"
	CodeStaleState       = "STALE_STATE"
	CodeAlreadyReviewed  = "ALREADY_REVIEWED"
	CodeConflict         = "CONFLICT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL_ERROR"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// Domain constructors. Status codes follow the REST surface but the codes
// are what the service and gate dispatch on.

func AlreadyInSession(message string) *AppError {
	return NewError(http.StatusConflict, CodeAlreadyInSession, message)
}

func AdvisorBusy(message string) *AppError {
	return NewError(http.StatusConflict, CodeAdvisorBusy, message)
}

func NotFound(message string) *AppError {
	return NewError(http.StatusNotFound, CodeNotFound, message)
}

func Forbidden(message string) *AppError {
	return NewError(http.StatusForbidden, CodeForbidden, message)
}

func InvalidState(message string) *AppError {
	return NewError(http.StatusConflict, CodeInvalidState, message)
}

func StaleState(message string) *AppError {
	return NewError(http.StatusConflict, CodeStaleState, message)
}

func AlreadyReviewed(message string) *AppError {
	return NewError(http.StatusConflict, CodeAlreadyReviewed, message)
}

func Conflict(message string) *AppError {
	return NewError(http.StatusConflict, CodeConflict, message)
}

func StoreUnavailable(message string) *AppError {
	return NewError(http.StatusServiceUnavailable, CodeStoreUnavailable, message)
}

func BadRequest(message string) *AppError {
	return NewError(http.StatusBadRequest, CodeBadRequest, message)
}

func Unauthorized(message string) *AppError {
	return NewError(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Internal(message string) *AppError {
	return NewError(http.StatusInternalServerError, CodeInternal, message)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// FromError converts a standard error to an AppError. AppErrors pass through
// unchanged; anything else is wrapped as an internal error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(fmt.Sprintf("an unexpected error occurred: %s", err.Error()))
}

// GetStatusCode extracts the HTTP status code from an AppError, returns 500 if not an AppError
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
