package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "job not found", NotFound("job not found").Error())

	wrapped := Wrap(errors.New("connection reset"), ErrCodeInternal, "failed to load job")
	assert.Equal(t, "failed to load job: connection reset", wrapped.Error())
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		code  ErrorCode
		fault bool
	}{
		{"not found", NotFoundf("job %s not found", "j1"), IsNotFound, ErrCodeNotFound, true},
		{"cross tenant", CrossTenantAccessf("record %s", "r1"), IsCrossTenantAccess, ErrCodeCrossTenantAccess, true},
		{"invalid transition", InvalidTransitionf("%s -> %s", "completed", "processing"), IsInvalidTransition, ErrCodeInvalidTransition, true},
		{"conflict", Conflict("exists"), IsConflict, ErrCodeConflict, false},
		{"validation", Validationf("bad %s", "kind"), IsValidation, ErrCodeValidation, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.Equal(t, tt.code, GetCode(wrapped))
			assert.Equal(t, tt.fault, IsStoreFault(wrapped))
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("tenantId", "tenantId is required")
	require.True(t, IsValidation(err))
	assert.Equal(t, "tenantId", GetField(err))
	assert.Empty(t, GetField(errors.New("plain")))
	assert.Empty(t, GetCode(errors.New("plain")))
}
