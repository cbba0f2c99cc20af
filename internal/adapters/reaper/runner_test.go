package reaper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) Sweep(context.Context) (int64, error) {
	s.calls.Add(1)
	return 0, nil
}

func TestNewRunner(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Reaper: &countingSweeper{}, Schedule: "every tuesday"})
	require.ErrorContains(t, err, "invalid reaper schedule")

	for _, expr := range []string{"", "*/5 * * * *", "@daily", "@every 10m"} {
		r, err := NewRunner(RunnerOptions{Reaper: &countingSweeper{}, Schedule: expr})
		require.NoError(t, err, expr)
		assert.NotNil(t, r.schedule)
	}
}

func TestRunner_SweepsOnStartAndStops(t *testing.T) {
	sweeper := &countingSweeper{}
	r, err := NewRunner(RunnerOptions{Reaper: sweeper, Schedule: "@yearly"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, int32(1), sweeper.calls.Load())
}
