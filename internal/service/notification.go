package service

import (
	"context"
	"slices"
	"strings"

	"github.com/target/prepflow/internal/domain/model"
	"github.com/target/prepflow/internal/tenant"
	"github.com/target/prepflow/internal/workflow"
)

// notificationWorkflow hands one message to the bulk notifier and records the batch. Delivery
// failures stay with the notifier and never fail the job.
func (d *Dispatcher) notificationWorkflow(scope *tenant.Scope, job *model.Job, in model.NotificationTrigger) workflow.Definition {
	recipients := uniqueUserIDs(in.UserIDs)
	var result model.NotificationResult

	steps := []workflow.Step{
		workflow.Exec("send-notifications", func(ctx context.Context) error {
			d.notifier.SendBulkNotification(ctx, scope.TenantID(), recipients, in.Title, in.Message)
			return nil
		}),
		workflow.Do("mark-completed", &result, func(ctx context.Context) (model.NotificationResult, error) {
			batchID := stableID(job.ID, "batch")
			if _, err := createOnce(ctx, scope, model.EntityNotificationBatch, batchID, map[string]any{
				"job_id":     job.ID,
				"title":      in.Title,
				"recipients": len(recipients),
				"status":     "sent",
			}); err != nil {
				return model.NotificationResult{}, err
			}
			return model.NotificationResult{BatchID: batchID, Recipients: len(recipients)}, nil
		}),
	}

	return workflow.Definition{
		Kind:      model.JobKindNotificationSend,
		Steps:     steps,
		OnFailure: d.onFailure(scope, job, nil),
	}
}

// uniqueUserIDs drops blank and repeated ids, keeping first-seen order.
func uniqueUserIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
