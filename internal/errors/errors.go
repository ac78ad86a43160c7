// Package errors defines the categorized outcomes returned by the profile engine
// and the mapping from storage driver faults onto them.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation is malformed input the caller can correct
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound covers both absent and hidden targets
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryStateConflict is an illegal state transition
	CategoryStateConflict ErrorCategory = "state_conflict"
	// CategoryConstraintConflict is a uniqueness or limit violation
	CategoryConstraintConflict ErrorCategory = "constraint_conflict"
	// CategoryTransient is a timeout or lost connection; the only retryable class
	CategoryTransient ErrorCategory = "transient"
	// CategoryInternal is an unexpected driver or programming fault
	CategoryInternal ErrorCategory = "internal"
	// CategoryUnauthorized is a missing or invalid credential
	CategoryUnauthorized ErrorCategory = "unauthorized"
	// CategoryForbidden is a valid credential without the required role
	CategoryForbidden ErrorCategory = "forbidden"
	// CategoryRateLimit is a throttled caller
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// Error codes surfaced to the request layer
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeInvalidTransition  = "INVALID_STATE_TRANSITION"
	CodeAlreadyBanned      = "USER_ALREADY_BANNED"
	CodeNotBanned          = "USER_NOT_BANNED"
	CodeAccountDeleted     = "ACCOUNT_DELETED"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeInterestLimit      = "INTEREST_LIMIT_REACHED"
	CodePhotoLimit         = "PHOTO_LIMIT_REACHED"
	CodeDuplicatePhoto     = "PHOTO_ALREADY_EXISTS"
	CodeConstraint         = "CONSTRAINT_VIOLATION"
	CodeTransient          = "STORAGE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodePremiumRequired    = "PREMIUM_REQUIRED"
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewValidationError reports a rejected input field
func NewValidationError(field, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewPremiumRequiredError is the validation failure for premium-gated settings
func NewPremiumRequiredError(feature string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodePremiumRequired,
		Message:    fmt.Sprintf("%s requires a premium subscription", feature),
		Details: map[string]interface{}{
			"field": feature,
		},
	}
}

// NewNotFoundOrHidden deliberately carries no identifier. Absent and
// hidden targets must be indistinguishable to the caller.
func NewNotFoundOrHidden(resource string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
	}
}

// NewStateConflictError reports an illegal transition from one state to another
func NewStateConflictError(code, message string, from, to interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStateConflict,
		StatusCode: http.StatusConflict,
		Code:       code,
		Message:    message,
		Details: map[string]interface{}{
			"from": fmt.Sprint(from),
			"to":   fmt.Sprint(to),
		},
	}
}

// NewConstraintConflictError reports a uniqueness or cardinality violation
func NewConstraintConflictError(code, message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConstraintConflict,
		StatusCode: http.StatusConflict,
		Code:       code,
		Message:    message,
	}
}

// NewTransientError wraps a storage fault the caller may retry
func NewTransientError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeTransient,
		Message:    fmt.Sprintf("storage unavailable during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInternal,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUnauthorized,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryForbidden,
		StatusCode: http.StatusForbidden,
		Code:       CodeForbidden,
		Message:    message,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// Postgres SQLSTATE codes this package classifies
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
	pgQueryCanceled        = "57014"
)

// FromStorage classifies a driver error returned during operation.
// Already categorized errors pass through unchanged.
func FromStorage(operation string, err error) error {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	if stderrors.Is(err, pgx.ErrNoRows) {
		return NewNotFoundOrHidden("user")
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			e := NewConstraintConflictError(CodeConstraint, "value already in use")
			e.Cause = err
			e.Details = map[string]interface{}{"constraint": pgErr.ConstraintName}
			if strings.Contains(pgErr.ConstraintName, "username") {
				e.Code = CodeUsernameTaken
				e.Message = "username already taken"
			}
			return e
		case pgErr.Code == pgCheckViolation:
			e := NewValidationError(pgErr.ConstraintName, "violates check constraint")
			e.Cause = err
			return e
		case pgErr.Code == pgForeignKeyViolation:
			e := NewNotFoundOrHidden("user")
			e.Cause = err
			return e
		case pgErr.Code == pgSerializationFailure,
			pgErr.Code == pgDeadlockDetected,
			pgErr.Code == pgTooManyConnections,
			pgErr.Code == pgAdminShutdown,
			pgErr.Code == pgQueryCanceled,
			strings.HasPrefix(pgErr.Code, "08"):
			return NewTransientError(operation, err)
		}
		return NewInternalError(fmt.Sprintf("database error during %s", operation), err)
	}

	if isTransient(err) {
		return NewTransientError(operation, err)
	}

	return NewInternalError(fmt.Sprintf("database error during %s", operation), err)
}

func isTransient(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if stderrors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	if isTransient(err) {
		return NewTransientError("request", err)
	}

	return NewInternalError("unexpected error", err)
}

// Is reports whether err is categorized as category
func Is(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	if !stderrors.As(err, &catErr) {
		return false
	}
	return catErr.Category == category
}

// IsNotFound reports a NotFoundOrHidden outcome
func IsNotFound(err error) bool {
	return Is(err, CategoryNotFound)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether a caller may retry. Only transient storage
// failures qualify; increments are not idempotent.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Category == CategoryTransient
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
