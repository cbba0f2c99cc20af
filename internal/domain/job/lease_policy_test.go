package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		policy, err := NewLeasePolicy(30*time.Second + 400*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, policy.Default())
	})

	for _, bad := range []time.Duration{0, 500 * time.Millisecond, time.Hour} {
		t.Run("rejects "+bad.String(), func(t *testing.T) {
			policy, err := NewLeasePolicy(bad)
			require.ErrorIs(t, err, ErrInvalidDefaultLease)
			assert.Nil(t, policy)
		})
	}
}

func TestLeasePolicy_Resolve(t *testing.T) {
	policy, err := NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)

	tests := []struct {
		name    string
		request time.Duration
		want    time.Duration
		source  LeaseSource
	}{
		{"explicit duration truncated to seconds", 45*time.Second + 900*time.Millisecond, 45 * time.Second, LeaseSourceExplicit},
		{"zero uses default", 0, 30 * time.Second, LeaseSourceDefault},
		{"sub-second clamps up", 500 * time.Millisecond, MinLease, LeaseSourceClamped},
		{"negative clamps up", -5 * time.Second, MinLease, LeaseSourceClamped},
		{"long lease clamps down", 2 * time.Hour, MaxLease, LeaseSourceClamped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Resolve(tt.request)
			assert.Equal(t, tt.want, d.Lease)
			assert.Equal(t, tt.source, d.Source)
			assert.Equal(t, tt.request, d.Requested)
			assert.Equal(t, tt.source == LeaseSourceClamped, d.Clamped())
			assert.Equal(t, tt.source == LeaseSourceDefault, d.UsedDefault())
		})
	}

	var nilPolicy *LeasePolicy
	assert.Equal(t, MinLease, nilPolicy.Resolve(time.Minute).Lease)
	assert.Zero(t, nilPolicy.Default())
}
