package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
	"github.com/target/prepflow/internal/testutil"
)

type pgRepos struct {
	jobs    *JobRepo
	steps   *StepResultRepo
	records *TenantStore
	clock   *FixedTimeProvider
}

func newPgRepos(db *sql.DB) pgRepos {
	clock := NewFixedTimeProvider(testutil.TestTime())
	return pgRepos{
		jobs:    NewJobRepo(db, RepoConfig{TimeProvider: clock}),
		steps:   NewStepResultRepo(db, clock),
		records: NewTenantStore(db, clock),
		clock:   clock,
	}
}

func TestJobRepo_Lifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		r := newPgRepos(db)
		ctx := context.Background()

		job, err := r.jobs.Create(ctx, testutil.NewJobRequest("tenant-a").Build())
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, model.DefaultMaxAttempts, job.MaxAttempts)
		assert.Nil(t, job.Result)
		assert.Nil(t, job.Error)

		_, err = r.jobs.Get(ctx, "tenant-b", job.ID)
		assert.True(t, apperrors.IsNotFound(err), "other tenants must not see the job")

		r.clock.AddTime(time.Minute)
		started, err := r.jobs.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, TenantID: "tenant-a", To: model.JobStatusProcessing,
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, started.Status)
		assert.True(t, started.UpdatedAt.After(job.UpdatedAt))

		_, err = r.jobs.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, TenantID: "tenant-b", To: model.JobStatusCompleted, Result: json.RawMessage(`{}`),
		})
		assert.True(t, apperrors.IsNotFound(err))

		n, err := r.jobs.IncrementRetry(ctx, "tenant-a", job.ID, "rate_limit")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		done, err := r.jobs.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, TenantID: "tenant-a", To: model.JobStatusCompleted, Result: json.RawMessage(`{"ok":true}`),
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(done.Result))
		assert.Nil(t, done.Error)
		require.NotNil(t, done.ErrorKind)
		assert.Equal(t, "rate_limit", *done.ErrorKind)

		_, err = r.jobs.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, TenantID: "tenant-a", To: model.JobStatusFailed, Error: "late failure",
		})
		assert.True(t, apperrors.IsInvalidTransition(err), "completed jobs are never resurrected")

		_, err = r.jobs.IncrementRetry(ctx, "tenant-a", job.ID, "other")
		assert.True(t, apperrors.IsInvalidTransition(err))

		stats, err := r.jobs.Stats(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Completed)
	})
}

func TestJobRepo_ConcurrentCompletion(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		r := newPgRepos(db)
		ctx := context.Background()

		job, err := r.jobs.Create(ctx, testutil.NewJobRequest("tenant-a").Build())
		require.NoError(t, err)
		_, err = r.jobs.Transition(ctx, model.TransitionRequest{JobID: job.ID, TenantID: "tenant-a", To: model.JobStatusProcessing})
		require.NoError(t, err)

		const runners = 8
		errs := make(chan error, runners)
		for range runners {
			go func() {
				_, err := r.jobs.Transition(ctx, model.TransitionRequest{
					JobID: job.ID, TenantID: "tenant-a", To: model.JobStatusCompleted, Result: json.RawMessage(`{}`),
				})
				errs <- err
			}()
		}
		var won int
		for range runners {
			if err := <-errs; err == nil {
				won++
			} else {
				assert.True(t, apperrors.IsInvalidTransition(err))
			}
		}
		assert.Equal(t, 1, won)
	})
}

func TestJobRepo_ReserveDeferRelease(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		r := newPgRepos(db)
		ctx := context.Background()

		job, err := r.jobs.Create(ctx, testutil.NewJobRequest("tenant-a").Build())
		require.NoError(t, err)

		params := core.ReserveParams{Kinds: []model.JobKind{model.JobKindGrading}, Owner: "runner-a", Lease: time.Minute}
		got, err := r.jobs.ReserveNext(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, model.JobStatusPending, got.Status, "reserving never changes status")
		require.NotNil(t, got.LeaseOwner)
		assert.Equal(t, "runner-a", *got.LeaseOwner)

		_, err = r.jobs.ReserveNext(ctx, params)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

		ok, err := r.jobs.Heartbeat(ctx, job.ID, "runner-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = r.jobs.Heartbeat(ctx, job.ID, "runner-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		wake := r.clock.Now().Add(time.Hour)
		require.NoError(t, r.jobs.Defer(ctx, job.ID, wake))
		_, err = r.jobs.ReserveNext(ctx, params)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

		r.clock.SetTime(wake)
		got, err = r.jobs.ReserveNext(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)

		require.NoError(t, r.jobs.Release(ctx, job.ID))
		assert.True(t, apperrors.IsNotFound(r.jobs.Release(ctx, "missing")))

		_, err = r.jobs.ReserveNext(ctx, core.ReserveParams{Owner: "runner-a"})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestJobRepo_DeleteTerminalBefore(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		r := newPgRepos(db)
		ctx := context.Background()

		done, err := r.jobs.Create(ctx, testutil.NewJobRequest("tenant-a").Build())
		require.NoError(t, err)
		_, err = r.jobs.Transition(ctx, model.TransitionRequest{JobID: done.ID, TenantID: "tenant-a", To: model.JobStatusProcessing})
		require.NoError(t, err)
		_, err = r.steps.Record(ctx, &model.StepResult{JobID: done.ID, TenantID: "tenant-a", StepName: "call-model", Output: json.RawMessage(`{}`)})
		require.NoError(t, err)
		_, err = r.jobs.Transition(ctx, model.TransitionRequest{JobID: done.ID, TenantID: "tenant-a", To: model.JobStatusFailed, Error: "boom"})
		require.NoError(t, err)

		open, err := r.jobs.Create(ctx, testutil.NewJobRequest("tenant-a").Build())
		require.NoError(t, err)

		n, err := r.jobs.DeleteTerminalBefore(ctx, r.clock.Now().Add(time.Second), 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = r.jobs.Get(ctx, "tenant-a", done.ID)
		assert.True(t, apperrors.IsNotFound(err))
		steps, err := r.steps.List(ctx, "tenant-a", done.ID)
		require.NoError(t, err)
		assert.Empty(t, steps)

		_, err = r.jobs.Get(ctx, "tenant-a", open.ID)
		assert.NoError(t, err)
	})
}

func TestStepResultRepo_WriteOnce(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		r := newPgRepos(db)
		ctx := context.Background()

		job, err := r.jobs.Create(ctx, testutil.NewJobRequest("tenant-a").Build())
		require.NoError(t, err)

		first, err := r.steps.Record(ctx, &model.StepResult{
			JobID: job.ID, TenantID: "tenant-a", StepName: "call-model", Output: json.RawMessage(`{"n":1}`),
		})
		require.NoError(t, err)
		second, err := r.steps.Record(ctx, &model.StepResult{
			JobID: job.ID, TenantID: "tenant-a", StepName: "call-model", Output: json.RawMessage(`{"n":2}`),
		})
		require.NoError(t, err)
		assert.JSONEq(t, string(first.Output), string(second.Output))

		_, err = r.steps.Record(ctx, &model.StepResult{
			JobID: job.ID, TenantID: "tenant-b", StepName: "other", Output: json.RawMessage(`{}`),
		})
		assert.True(t, apperrors.IsNotFound(err))

		got, err := r.steps.Get(ctx, "tenant-b", job.ID, "call-model")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestTenantStore_Isolation(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		r := newPgRepos(db)
		ctx := context.Background()

		sub, err := r.records.Create(ctx, "tenant-a", model.EntitySubmission, map[string]any{
			"user_id": "u1", "skill": "writing", "text": testutil.SampleEssay,
		})
		require.NoError(t, err)

		found, err := r.records.Find(ctx, "tenant-a", model.EntitySubmission, model.Filter{"user_id": "u1"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, sub.ID, found[0].ID)

		found, err = r.records.Find(ctx, "tenant-a", model.EntitySubmission, model.Filter{"user_id": "u2"})
		require.NoError(t, err)
		assert.Empty(t, found)

		_, err = r.records.Find(ctx, "tenant-b", model.EntitySubmission, model.Filter{"id": sub.ID})
		assert.True(t, apperrors.IsCrossTenantAccess(err))
		_, err = r.records.Update(ctx, "tenant-b", model.EntitySubmission, sub.ID, map[string]any{"text": "x"})
		assert.True(t, apperrors.IsCrossTenantAccess(err))
		assert.True(t, apperrors.IsCrossTenantAccess(r.records.Delete(ctx, "tenant-b", model.EntitySubmission, sub.ID)))

		updated, err := r.records.Update(ctx, "tenant-a", model.EntitySubmission, sub.ID, map[string]any{"status": "graded"})
		require.NoError(t, err)
		assert.Equal(t, "graded", updated.String("status"))
		assert.Equal(t, "u1", updated.String("user_id"))

		require.NoError(t, r.records.Delete(ctx, "tenant-a", model.EntitySubmission, sub.ID))
		assert.True(t, apperrors.IsNotFound(r.records.Delete(ctx, "tenant-a", model.EntitySubmission, sub.ID)))
	})
}
