package service

import (
	"context"
	"fmt"

	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
	"github.com/target/prepflow/internal/tenant"
	"github.com/target/prepflow/internal/workflow"
)

// deletionCheck is the checkpointed verdict of verify-still-requested.
type deletionCheck struct {
	Proceed bool   `json:"proceed"`
	Reason  string `json:"reason,omitempty"`
}

// deletionWorkflow waits out the grace period, re-checks that the request still stands and then
// purges the user's data. A cancelled request still runs to completion without deleting anything.
func (d *Dispatcher) deletionWorkflow(scope *tenant.Scope, job *model.Job, in model.DeletionTrigger) workflow.Definition {
	var (
		check  deletionCheck
		result model.DeletionResult
	)

	steps := []workflow.Step{
		workflow.Exec("mark-request-processing", func(ctx context.Context) error {
			req, err := scope.Get(ctx, model.EntityDeletionRequest, in.RequestID)
			if apperrors.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			if req.String("status") == model.DeletionStatusCancelled {
				return nil
			}
			_, err = scope.Update(ctx, model.EntityDeletionRequest, in.RequestID, map[string]any{
				"status": model.DeletionStatusProcessing,
				"job_id": job.ID,
			})
			return err
		}),
		workflow.Sleep("grace-period", in.GracePeriod()),
		workflow.Do("verify-still-requested", &check, func(ctx context.Context) (deletionCheck, error) {
			return checkDeletionRequest(ctx, scope, in.RequestID)
		}),
		workflow.Do("purge-user-data", &result, func(ctx context.Context) (model.DeletionResult, error) {
			res := model.DeletionResult{RequestID: in.RequestID, UserID: in.UserID}
			if !check.Proceed {
				res.Reason = check.Reason
				return res, nil
			}
			// The recorded verdict may be stale after a resume or a retry.
			current, err := checkDeletionRequest(ctx, scope, in.RequestID)
			if err != nil {
				return model.DeletionResult{}, err
			}
			if !current.Proceed {
				res.Reason = current.Reason
				return res, nil
			}
			purged, err := purgeUserData(ctx, scope, in.UserID)
			if err != nil {
				return model.DeletionResult{}, err
			}
			res.Deleted = true
			res.Purged = purged
			return res, nil
		}),
		workflow.Do("mark-completed", &result, func(ctx context.Context) (model.DeletionResult, error) {
			if !result.Deleted {
				d.logger.InfoContext(ctx, "account deletion skipped",
					"job_id", job.ID, "tenant_id", scope.TenantID(), "reason", result.Reason)
				return result, nil
			}
			_, err := scope.Update(ctx, model.EntityDeletionRequest, in.RequestID, map[string]any{
				"status": model.DeletionStatusCompleted,
			})
			return result, err
		}),
	}

	return workflow.Definition{
		Kind:  model.JobKindDeletion,
		Steps: steps,
		OnFailure: d.onFailure(scope, job, markWatchedFailed(scope, job.Kind, in.RequestID)),
	}
}

// checkDeletionRequest reports whether the deletion request still stands.
func checkDeletionRequest(ctx context.Context, scope *tenant.Scope, requestID string) (deletionCheck, error) {
	req, err := scope.Get(ctx, model.EntityDeletionRequest, requestID)
	if apperrors.IsNotFound(err) {
		return deletionCheck{Reason: model.DeletionReasonWithdrawn}, nil
	}
	if err != nil {
		return deletionCheck{}, err
	}
	if req.String("status") == model.DeletionStatusCancelled {
		return deletionCheck{Reason: model.DeletionReasonCancelled}, nil
	}
	return deletionCheck{Proceed: true}, nil
}

// purgeUserData deletes the user's submissions with their feedback, the user's test attempts and
// the user record. Rows deleted by an earlier interrupted run are simply not found again.
func purgeUserData(ctx context.Context, scope *tenant.Scope, userID string) (map[model.EntityType]int, error) {
	purged := map[model.EntityType]int{}
	remove := func(et model.EntityType, id string) error {
		err := scope.Delete(ctx, et, id)
		if apperrors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete %s %s: %w", et, id, err)
		}
		purged[et]++
		return nil
	}

	submissions, err := scope.Find(ctx, model.EntitySubmission, model.Filter{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("find submissions: %w", err)
	}
	for _, sub := range submissions {
		feedback, err := scope.Find(ctx, model.EntityFeedback, model.Filter{"submission_id": sub.ID})
		if err != nil {
			return nil, fmt.Errorf("find feedback: %w", err)
		}
		for _, fb := range feedback {
			items, err := scope.Find(ctx, model.EntityFeedbackItem, model.Filter{"feedback_id": fb.ID})
			if err != nil {
				return nil, fmt.Errorf("find feedback items: %w", err)
			}
			for _, item := range items {
				if err := remove(model.EntityFeedbackItem, item.ID); err != nil {
					return nil, err
				}
			}
			if err := remove(model.EntityFeedback, fb.ID); err != nil {
				return nil, err
			}
		}
		if err := remove(model.EntitySubmission, sub.ID); err != nil {
			return nil, err
		}
	}

	attempts, err := scope.Find(ctx, model.EntityTestAttempt, model.Filter{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("find test attempts: %w", err)
	}
	for _, a := range attempts {
		if err := remove(model.EntityTestAttempt, a.ID); err != nil {
			return nil, err
		}
	}

	user, err := scope.FindOne(ctx, model.EntityUser, model.Filter{"id": userID})
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user != nil {
		if err := remove(model.EntityUser, user.ID); err != nil {
			return nil, err
		}
	}
	return purged, nil
}
