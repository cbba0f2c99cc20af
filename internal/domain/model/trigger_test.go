package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeletionTrigger_Validate(t *testing.T) {
	base := DeletionTrigger{TenantID: "t1", UserID: "u1", RequestID: "req-1"}
	maxSeconds := int64(MaxGracePeriod / time.Second)

	tests := []struct {
		name    string
		grace   int64
		wantErr string
	}{
		{name: "no grace", grace: 0},
		{name: "one week", grace: 7 * 24 * 3600},
		{name: "at the cap", grace: maxSeconds},
		{name: "negative", grace: -1, wantErr: "graceSeconds must be >= 0"},
		{name: "past the cap", grace: maxSeconds + 1, wantErr: "graceSeconds must be <="},
		{name: "would overflow a duration", grace: 9_300_000_000, wantErr: "graceSeconds must be <="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig := base
			trig.GraceSeconds = tt.grace
			err := trig.Validate()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDeletionTrigger_GracePeriod(t *testing.T) {
	trig := DeletionTrigger{GraceSeconds: 90}
	assert.Equal(t, 90*time.Second, trig.GracePeriod())

	// Stored payloads that predate validation never turn into a negative wait.
	trig.GraceSeconds = 9_300_000_000
	assert.Equal(t, MaxGracePeriod, trig.GracePeriod())
}
