package apierror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorError(t *testing.T) {
	err := NewAPIError(ErrInvalidTransition, "cannot move job from succeeded to pending", nil)
	assert.Equal(t, "INVALID_TRANSITION: cannot move job from succeeded to pending", err.Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewAPIError(ErrOptimisticLockConflict, "version changed", nil)))
	assert.True(t, Retryable(NewAPIError(ErrLockUnavailable, "held elsewhere", nil)))
	assert.False(t, Retryable(NewAPIError(ErrImmutableFieldChange, "gross_salary", nil)))
	assert.False(t, Retryable(errors.New("plain error")))
	assert.False(t, Retryable(nil))
}

func TestRetryableWrapped(t *testing.T) {
	wrapped := fmt.Errorf("updating job: %w", NewAPIError(ErrOptimisticLockConflict, "version changed", nil))
	assert.True(t, Retryable(wrapped))
}

func TestIs(t *testing.T) {
	err := NewAPIError(ErrAlreadyReversed, "entry already reversed", nil)
	assert.True(t, Is(err, ErrAlreadyReversed))
	assert.False(t, Is(err, ErrInvalidEntry))
	assert.False(t, Is(errors.New("other"), ErrAlreadyReversed))
}

func TestMapErrorToExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"not found", NewAPIError(ErrNotFound, "missing", nil), 2},
		{"lock unavailable", NewAPIError(ErrLockUnavailable, "busy", nil), 3},
		{"optimistic conflict", NewAPIError(ErrOptimisticLockConflict, "stale", nil), 3},
		{"invalid entry", NewAPIError(ErrInvalidEntry, "zero amount", nil), 4},
		{"already reversed", NewAPIError(ErrAlreadyReversed, "dup", nil), 4},
		{"immutable field", NewAPIError(ErrImmutableFieldChange, "amount", nil), 4},
		{"discrepancy", NewAPIError(ErrDiscrepancyDetected, "drift", nil), 5},
		{"internal", NewAPIError(ErrInternalServer, "boom", nil), 1},
		{"plain", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToExitCode(tt.err))
		})
	}
}
