package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/testutil"
)

func TestRedisJobLock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	lock := NewRedisJobLock(client)
	ctx := context.Background()

	t.Run("second owner is refused", func(t *testing.T) {
		ok, err := lock.Acquire(ctx, "job-1", "runner-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = lock.Acquire(ctx, "job-1", "runner-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("holder can re-acquire", func(t *testing.T) {
		ok, err := lock.Acquire(ctx, "job-1", "runner-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release by another owner keeps the lock", func(t *testing.T) {
		require.NoError(t, lock.Release(ctx, "job-1", "runner-b"))
		holder, err := client.Get(ctx, jobLockPrefix+"job-1").Result()
		require.NoError(t, err)
		assert.Equal(t, "runner-a", holder)
	})

	t.Run("release frees the lock", func(t *testing.T) {
		require.NoError(t, lock.Release(ctx, "job-1", "runner-a"))
		ok, err := lock.Acquire(ctx, "job-1", "runner-b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ttl is at least one second", func(t *testing.T) {
		ok, err := lock.Acquire(ctx, "job-2", "runner-a", 0)
		require.NoError(t, err)
		require.True(t, ok)
		ttl := client.TTL(ctx, jobLockPrefix+"job-2").Val()
		assert.Positive(t, ttl)
		assert.LessOrEqual(t, ttl, time.Second)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, lock.Health(ctx))
	})
}

func TestRedisTriggerDeduper(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	dedupe := NewRedisTriggerDeduper(client)
	ctx := context.Background()

	owner, claimed, err := dedupe.Claim(ctx, "tenant-a:grading:sub-1", "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "job-1", owner)

	owner, claimed, err = dedupe.Claim(ctx, "tenant-a:grading:sub-1", "job-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "job-1", owner)

	_, _, err = dedupe.Claim(ctx, "", "job-3", time.Minute)
	assert.Error(t, err)
}
