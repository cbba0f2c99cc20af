package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/prepflow/internal/domain/model"
)

func TestNotification_FansOutToUniqueRecipients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.notifier.EXPECT().SendBulkNotification(gomock.Any(), tenantA, []string{"u1", "u2"}, "Mock test ready", "Your reading mock test is ready.").
		Times(1)

	job, err := f.d.TriggerNotification(ctx, model.NotificationTrigger{
		TenantID: tenantA,
		UserIDs:  []string{"u1", " ", "u2", "u1"},
		Title:    "Mock test ready",
		Message:  "Your reading mock test is ready.",
	})
	require.NoError(t, err)

	out := f.run(t, job)
	require.Equal(t, model.JobStatusCompleted, out.Status, out.Failure)

	var res model.NotificationResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.Equal(t, 2, res.Recipients)

	batch := f.entity(t, tenantA, model.EntityNotificationBatch, res.BatchID)
	assert.Equal(t, job.ID, batch.String("job_id"))
	assert.Equal(t, "sent", batch.String("status"))
	assert.InDelta(t, 2, batch.Data["recipients"], 0)

	// A rerun of the completed job sends nothing.
	again := f.run(t, job)
	assert.Equal(t, model.JobStatusCompleted, again.Status)
}

func TestUniqueUserIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniqueUserIDs([]string{"a", "", "b", " a ", "a"}))
	assert.Empty(t, uniqueUserIDs(nil))
}
