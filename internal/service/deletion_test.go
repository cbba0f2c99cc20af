package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// seedAccount stores a user with one graded submission and one test attempt.
func (f *fixture) seedAccount(t *testing.T, userID string) {
	t.Helper()
	f.seed(t, tenantA, model.EntityUser, userID, map[string]any{"email": userID + "@example.com"})
	f.seed(t, tenantA, model.EntitySubmission, "sub-"+userID, map[string]any{"user_id": userID, "skill": "writing"})
	f.seed(t, tenantA, model.EntityFeedback, "fb-"+userID, map[string]any{"submission_id": "sub-" + userID, "status": "active"})
	f.seed(t, tenantA, model.EntityFeedbackItem, "fi-"+userID, map[string]any{"feedback_id": "fb-" + userID})
	f.seed(t, tenantA, model.EntityTestAttempt, "att-"+userID, map[string]any{"user_id": userID})
}

func (f *fixture) deletion(t *testing.T, requestID string, grace time.Duration) *model.Job {
	t.Helper()
	job, err := f.d.TriggerDeletion(context.Background(), model.DeletionTrigger{
		TenantID:     tenantA,
		UserID:       "u1",
		RequestID:    requestID,
		GraceSeconds: int64(grace / time.Second),
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) gone(t *testing.T, et model.EntityType, id string) bool {
	t.Helper()
	scope, err := f.d.Scope(tenantA)
	require.NoError(t, err)
	_, err = scope.Get(context.Background(), et, id)
	return apperrors.IsNotFound(err)
}

func TestDeletion_PurgesUserData(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1")
	f.seedAccount(t, "u2")
	f.seed(t, tenantA, model.EntityDeletionRequest, "req-1", map[string]any{"user_id": "u1", "status": model.DeletionStatusRequested})

	job := f.deletion(t, "req-1", 0)
	out := f.run(t, job)
	require.Equal(t, model.JobStatusCompleted, out.Status, out.Failure)
	assert.Equal(t, []string{"grace-period"}, out.Skipped)

	var res model.DeletionResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.True(t, res.Deleted)
	assert.Equal(t, map[model.EntityType]int{
		model.EntitySubmission:   1,
		model.EntityFeedback:     1,
		model.EntityFeedbackItem: 1,
		model.EntityTestAttempt:  1,
		model.EntityUser:         1,
	}, res.Purged)

	for _, id := range []struct {
		et model.EntityType
		id string
	}{
		{model.EntityUser, "u1"},
		{model.EntitySubmission, "sub-u1"},
		{model.EntityFeedback, "fb-u1"},
		{model.EntityFeedbackItem, "fi-u1"},
		{model.EntityTestAttempt, "att-u1"},
	} {
		assert.True(t, f.gone(t, id.et, id.id), "%s %s", id.et, id.id)
	}
	assert.False(t, f.gone(t, model.EntitySubmission, "sub-u2"))
	assert.False(t, f.gone(t, model.EntityUser, "u2"))

	req := f.entity(t, tenantA, model.EntityDeletionRequest, "req-1")
	assert.Equal(t, model.DeletionStatusCompleted, req.String("status"))
	assert.Equal(t, job.ID, req.String("job_id"))
}

func TestDeletion_CancelledDuringGracePeriod(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1")
	f.seed(t, tenantA, model.EntityDeletionRequest, "req-1", map[string]any{"user_id": "u1", "status": model.DeletionStatusRequested})

	job := f.deletion(t, "req-1", 24*time.Hour)
	first := f.run(t, job)
	assert.True(t, first.Suspended)
	assert.True(t, first.ResumeAt.Equal(f.clock.Now().Add(24*time.Hour)))
	assert.Equal(t, model.JobStatusProcessing, first.Status)
	assert.Equal(t, model.DeletionStatusProcessing, f.entity(t, tenantA, model.EntityDeletionRequest, "req-1").String("status"))

	scope, err := f.d.Scope(tenantA)
	require.NoError(t, err)
	_, err = scope.Update(context.Background(), model.EntityDeletionRequest, "req-1", map[string]any{"status": model.DeletionStatusCancelled})
	require.NoError(t, err)

	// Resuming early only re-suspends.
	f.clock.AddTime(time.Hour)
	early := f.run(t, job)
	assert.True(t, early.Suspended)
	assert.True(t, first.ResumeAt.Equal(early.ResumeAt))

	f.clock.AddTime(23 * time.Hour)
	out := f.run(t, job)
	require.Equal(t, model.JobStatusCompleted, out.Status, out.Failure)
	assert.Contains(t, out.Replayed, "grace-period")

	var res model.DeletionResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.False(t, res.Deleted)
	assert.Equal(t, model.DeletionReasonCancelled, res.Reason)

	assert.False(t, f.gone(t, model.EntityUser, "u1"))
	assert.False(t, f.gone(t, model.EntitySubmission, "sub-u1"))
	assert.Equal(t, model.DeletionStatusCancelled, f.entity(t, tenantA, model.EntityDeletionRequest, "req-1").String("status"))
}

func TestDeletion_WithdrawnRequestDeletesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1")

	out := f.run(t, f.deletion(t, "req-gone", 0))
	require.Equal(t, model.JobStatusCompleted, out.Status, out.Failure)

	var res model.DeletionResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.False(t, res.Deleted)
	assert.Equal(t, model.DeletionReasonWithdrawn, res.Reason)
	assert.False(t, f.gone(t, model.EntityUser, "u1"))
}

func TestDeletion_ShortGraceWaitsInline(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, model.EntityDeletionRequest, "req-1", map[string]any{"user_id": "u1", "status": model.DeletionStatusRequested})

	out := f.run(t, f.deletion(t, "req-1", 10*time.Second))
	require.Equal(t, model.JobStatusCompleted, out.Status, out.Failure)
	assert.False(t, out.Suspended)
	assert.Equal(t, []time.Duration{10 * time.Second}, f.waited)

	var res model.DeletionResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.True(t, res.Deleted)
	assert.Empty(t, res.Purged, "nothing stored for the user")
}

func TestDeletion_RechecksRequestBeforePurging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAccount(t, "u1")
	f.seed(t, tenantA, model.EntityDeletionRequest, "req-1", map[string]any{"user_id": "u1", "status": model.DeletionStatusRequested})

	job := f.deletion(t, "req-1", 0)
	scope, err := f.d.Scope(tenantA)
	require.NoError(t, err)

	// An earlier run verified the request and stopped before purging.
	_, err = scope.RecordCheckpoint(ctx, job.ID, "mark-request-processing", struct{}{})
	require.NoError(t, err)
	_, err = scope.RecordCheckpoint(ctx, job.ID, "verify-still-requested", deletionCheck{Proceed: true})
	require.NoError(t, err)
	_, err = scope.Update(ctx, model.EntityDeletionRequest, "req-1", map[string]any{"status": model.DeletionStatusCancelled})
	require.NoError(t, err)

	out := f.run(t, job)
	require.Equal(t, model.JobStatusCompleted, out.Status, out.Failure)
	assert.Contains(t, out.Replayed, "verify-still-requested")

	var res model.DeletionResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.False(t, res.Deleted)
	assert.Equal(t, model.DeletionReasonCancelled, res.Reason)
	assert.Empty(t, res.Purged)

	for _, e := range []struct {
		et model.EntityType
		id string
	}{
		{model.EntityUser, "u1"},
		{model.EntitySubmission, "sub-u1"},
		{model.EntityFeedback, "fb-u1"},
		{model.EntityTestAttempt, "att-u1"},
	} {
		assert.False(t, f.gone(t, e.et, e.id), "%s %s", e.et, e.id)
	}
}
