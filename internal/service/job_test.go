package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/data"
	"github.com/target/prepflow/internal/data/memstore"
	domainjob "github.com/target/prepflow/internal/domain/job"
	"github.com/target/prepflow/internal/domain/model"
	"github.com/target/prepflow/internal/observability/statsd"
	"github.com/target/prepflow/internal/testutil"
)

func newJobService(t *testing.T) (*JobService, *memstore.Store, *data.FixedTimeProvider, *statsd.Recorder) {
	t.Helper()
	clock := data.NewFixedTimeProvider(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	store := memstore.New(clock)
	rec := statsd.NewRecorder()
	svc, err := NewJobService(JobServiceOptions{
		Repo:            store.Jobs,
		DefaultLease:    30 * time.Second,
		Metrics:         rec,
		NotifierOptions: domainjob.NotifierOptions{WaitWindow: 20 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(svc.StopAllListeners)
	return svc, store, clock, rec
}

func TestNewJobService_Validation(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{})
	require.Error(t, err)

	clock := data.NewFixedTimeProvider(time.Now())
	_, err = NewJobService(JobServiceOptions{Repo: memstore.New(clock).Jobs})
	require.Error(t, err)

	_, err = NewJobService(JobServiceOptions{Repo: memstore.New(clock).Jobs, DefaultLease: time.Hour})
	require.ErrorIs(t, err, domainjob.ErrInvalidDefaultLease)
}

func TestJobService_ReserveUsesLeasePolicy(t *testing.T) {
	svc, store, clock, rec := newJobService(t)
	ctx := context.Background()

	created, err := store.Jobs.Create(ctx, testutil.NewJobRequest("tenant-a").WithKind(model.JobKindGrading).Build())
	require.NoError(t, err)

	job, err := svc.ReserveNext(ctx, []model.JobKind{model.JobKindGrading}, "runner-1", 0)
	require.NoError(t, err)
	assert.Equal(t, created.ID, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status, "reservation leaves status alone")
	require.NotNil(t, job.LeaseExpiresAt)
	assert.True(t, job.LeaseExpiresAt.Equal(clock.Now().Add(30*time.Second)))
	assert.Equal(t, int64(1), rec.Total("job.reserved", map[string]string{"kind": "grading"}))

	_, err = svc.ReserveNext(ctx, []model.JobKind{model.JobKindGrading}, "runner-2", 0)
	require.ErrorIs(t, err, model.ErrNoJobsAvailable)
}

func TestJobService_HeartbeatAndRelease(t *testing.T) {
	svc, store, clock, _ := newJobService(t)
	ctx := context.Background()

	_, err := store.Jobs.Create(ctx, testutil.NewJobRequest("tenant-a").Build())
	require.NoError(t, err)
	job, err := svc.ReserveNext(ctx, nil, "runner-1", 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, job.LeaseExpiresAt.Equal(clock.Now().Add(domainjob.MinLease)), "sub-second leases are clamped")

	ok, err := svc.Heartbeat(ctx, job.ID, "runner-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Heartbeat(ctx, job.ID, "runner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Release(ctx, job.ID))
	again, err := svc.ReserveNext(ctx, nil, "runner-2", 0)
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID)
}

func TestJobService_DeferHidesJobUntilDue(t *testing.T) {
	svc, store, clock, _ := newJobService(t)
	ctx := context.Background()

	_, err := store.Jobs.Create(ctx, testutil.NewJobRequest("tenant-a").WithKind(model.JobKindDeletion).Build())
	require.NoError(t, err)
	job, err := svc.ReserveNext(ctx, nil, "runner-1", 0)
	require.NoError(t, err)

	require.NoError(t, svc.Defer(ctx, job.ID, clock.Now().Add(time.Hour)))
	_, err = svc.ReserveNext(ctx, nil, "runner-1", 0)
	require.ErrorIs(t, err, model.ErrNoJobsAvailable)

	clock.AddTime(time.Hour)
	due, err := svc.ReserveNext(ctx, nil, "runner-1", 0)
	require.NoError(t, err)
	assert.Equal(t, job.ID, due.ID)

	require.Error(t, svc.Defer(ctx, "missing", clock.Now()))
}

func TestJobService_SubscribeWakesOnCreate(t *testing.T) {
	svc, store, _, _ := newJobService(t)

	unsub, ch := svc.Subscribe(model.JobKindNotificationSend)
	defer unsub()

	_, err := store.Jobs.Create(context.Background(),
		testutil.NewJobRequest("tenant-a").WithKind(model.JobKindNotificationSend).Build())
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a wake-up")
	}
}
