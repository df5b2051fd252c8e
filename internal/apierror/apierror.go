package apierror

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound               ErrorCode = "NOT_FOUND"
	ErrConflict               ErrorCode = "CONFLICT"
	ErrInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrInternalServer         ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrOptimisticLockConflict ErrorCode = "OPTIMISTIC_LOCK_CONFLICT"
	ErrInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrImmutableFieldChange   ErrorCode = "IMMUTABLE_FIELD_VIOLATION"
	ErrInvalidEntry           ErrorCode = "INVALID_ENTRY"
	ErrAlreadyReversed        ErrorCode = "ALREADY_REVERSED"
	ErrLockUnavailable        ErrorCode = "LOCK_UNAVAILABLE"
	ErrDiscrepancyDetected    ErrorCode = "DISCREPANCY_DETECTED"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Retryable reports whether the caller may usefully retry after re-reading
// state. Lock conflicts and lease contention are transient; everything else
// is not.
func Retryable(err error) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == ErrOptimisticLockConflict || apiErr.Code == ErrLockUnavailable
	}
	return false
}

func Is(err error, code ErrorCode) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// MapErrorToExitCode maps a typed error to a process exit status for the
// operator CLI. Integrity violations exit distinctly so wrapping scripts can
// page instead of retrying.
func MapErrorToExitCode(err error) int {
	if err == nil {
		return 0
	}
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return 2
		case ErrLockUnavailable, ErrOptimisticLockConflict:
			return 3
		case ErrInvalidEntry, ErrAlreadyReversed, ErrImmutableFieldChange:
			return 4
		case ErrDiscrepancyDetected:
			return 5
		default:
			return 1
		}
	}
	return 1
}
