package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
	"github.com/target/prepflow/internal/observability/metrics"
	"github.com/target/prepflow/internal/observability/notify"
	"github.com/target/prepflow/internal/observability/statsd"
	"github.com/target/prepflow/internal/prompt"
	"github.com/target/prepflow/internal/service/failurenotifier"
	"github.com/target/prepflow/internal/tenant"
	"github.com/target/prepflow/internal/workflow"
)

// Dispatcher defaults.
const (
	DefaultGenerationSpacing = 2 * time.Second
	DefaultDedupeWindow      = 10 * time.Second
)

// DispatcherOptions groups dependencies for Dispatcher.
type DispatcherOptions struct {
	Stores   tenant.Stores      // Required: job, step result and record stores
	Executor *workflow.Executor // Required: step executor
	Model    core.ModelClient   // Required: language model for generation and grading
	Notifier core.BulkNotifier  // Required: in-app notification collaborator

	Prompts  *prompt.Registry         // Optional: defaults to prompt.NewRegistry()
	Failures *failurenotifier.Service // Optional: operator alerts on terminal failures
	Deduper  core.TriggerDeduper      // Optional: collapses repeated triggers onto one job
	Logger   *slog.Logger             // Optional: structured logger
	Metrics  statsd.Sink              // Optional: metrics sink

	// GenerationSpacing separates consecutive model calls of one generation job.
	GenerationSpacing time.Duration
	// DedupeWindow is how long an identical trigger maps onto the job it created.
	DedupeWindow time.Duration
	// MaxAttempts is stored on created jobs; zero uses model.DefaultMaxAttempts.
	MaxAttempts int
}

// Dispatcher turns trigger events into jobs and runs jobs through their workflow.
type Dispatcher struct {
	stores   tenant.Stores
	executor *workflow.Executor
	model    core.ModelClient
	notifier core.BulkNotifier
	prompts  *prompt.Registry
	failures *failurenotifier.Service
	deduper  core.TriggerDeduper
	logger   *slog.Logger
	metrics  statsd.Sink

	spacing     time.Duration
	dedupe      time.Duration
	maxAttempts int
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if err := opts.Stores.Validate(); err != nil {
		return nil, err
	}
	if opts.Executor == nil {
		return nil, errors.New("workflow executor is required")
	}
	if opts.Model == nil {
		return nil, errors.New("model client is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("bulk notifier is required")
	}

	d := &Dispatcher{
		stores:      opts.Stores,
		executor:    opts.Executor,
		model:       opts.Model,
		notifier:    opts.Notifier,
		prompts:     opts.Prompts,
		failures:    opts.Failures,
		deduper:     opts.Deduper,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		spacing:     opts.GenerationSpacing,
		dedupe:      opts.DedupeWindow,
		maxAttempts: opts.MaxAttempts,
	}
	if d.prompts == nil {
		d.prompts = prompt.NewRegistry()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "dispatcher")
	if d.spacing < 0 {
		d.spacing = 0
	} else if d.spacing == 0 {
		d.spacing = DefaultGenerationSpacing
	}
	if d.dedupe <= 0 {
		d.dedupe = DefaultDedupeWindow
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = model.DefaultMaxAttempts
	}
	return d, nil
}

// MustNewDispatcher constructs a Dispatcher and panics on error.
func MustNewDispatcher(opts DispatcherOptions) *Dispatcher {
	d, err := NewDispatcher(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create Dispatcher: %v", err))
	}
	return d
}

// Scope binds the dispatcher's stores to tenantID.
func (d *Dispatcher) Scope(tenantID string) (*tenant.Scope, error) {
	return tenant.NewScope(tenantID, d.stores)
}

// TriggerGeneration creates a pending generation job.
func (d *Dispatcher) TriggerGeneration(ctx context.Context, t model.GenerationTrigger) (*model.Job, error) {
	if err := t.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid generation trigger")
	}
	return d.trigger(ctx, triggerRequest{
		tenantID: t.TenantID,
		kind:     model.JobKindGeneration,
		jobID:    &t.JobID,
		dedupe:   t.ExerciseID,
		payload:  &t,
	})
}

// TriggerGrading creates a pending grading job.
func (d *Dispatcher) TriggerGrading(ctx context.Context, t model.GradingTrigger) (*model.Job, error) {
	if err := t.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid grading trigger")
	}
	return d.trigger(ctx, triggerRequest{
		tenantID: t.TenantID,
		kind:     model.JobKindGrading,
		jobID:    &t.JobID,
		dedupe:   t.SubmissionID,
		payload:  &t,
	})
}

// TriggerDeletion creates a pending deletion job. The grace period is waited by the job itself.
func (d *Dispatcher) TriggerDeletion(ctx context.Context, t model.DeletionTrigger) (*model.Job, error) {
	if err := t.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid deletion trigger")
	}
	return d.trigger(ctx, triggerRequest{
		tenantID: t.TenantID,
		kind:     model.JobKindDeletion,
		jobID:    &t.JobID,
		dedupe:   t.RequestID,
		payload:  &t,
	})
}

// TriggerNotification creates a pending notification-send job. Notification triggers are never
// de-duplicated.
func (d *Dispatcher) TriggerNotification(ctx context.Context, t model.NotificationTrigger) (*model.Job, error) {
	if err := t.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid notification trigger")
	}
	return d.trigger(ctx, triggerRequest{
		tenantID: t.TenantID,
		kind:     model.JobKindNotificationSend,
		jobID:    &t.JobID,
		payload:  &t,
	})
}

type triggerRequest struct {
	tenantID string
	kind     model.JobKind
	// jobID points into payload so a generated id is stored with the input.
	jobID   *string
	dedupe  string
	payload any
}

func (d *Dispatcher) trigger(ctx context.Context, req triggerRequest) (*model.Job, error) {
	scope, err := d.Scope(req.tenantID)
	if err != nil {
		return nil, err
	}
	if *req.jobID == "" {
		*req.jobID = uuid.NewString()
	}
	id := *req.jobID

	if existing, err := d.deduplicate(ctx, scope, req); existing != nil || err != nil {
		return existing, err
	}

	input, err := json.Marshal(req.payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s trigger: %w", req.kind, err)
	}
	job, err := scope.CreateJob(ctx, model.CreateJobRequest{
		ID:          id,
		Kind:        req.kind,
		Input:       input,
		MaxAttempts: d.maxAttempts,
	})
	if apperrors.IsConflict(err) {
		// Redelivered trigger carrying its own job id.
		d.emitTrigger(req.kind, metrics.ResultDuplicate)
		return scope.Job(ctx, id)
	}
	if err != nil {
		d.emitTrigger(req.kind, metrics.ResultError)
		return nil, fmt.Errorf("create %s job: %w", req.kind, err)
	}
	d.emitTrigger(req.kind, metrics.ResultSuccess)
	d.logger.InfoContext(ctx, "job triggered", "job_id", job.ID, "tenant_id", job.TenantID, "kind", string(job.Kind))
	return job, nil
}

// deduplicate returns the job an identical recent trigger created, if any.
func (d *Dispatcher) deduplicate(ctx context.Context, scope *tenant.Scope, req triggerRequest) (*model.Job, error) {
	if d.deduper == nil || req.dedupe == "" {
		return nil, nil
	}
	key := string(req.kind) + ":" + scope.TenantID() + ":" + req.dedupe
	owner, claimed, err := d.deduper.Claim(ctx, key, *req.jobID, d.dedupe)
	if err != nil {
		// Triggers are still accepted while the deduper is down.
		d.logger.WarnContext(ctx, "trigger dedupe unavailable", "kind", string(req.kind), "error", err)
		return nil, nil
	}
	if claimed {
		return nil, nil
	}
	job, err := scope.Job(ctx, owner)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load deduplicated job %s: %w", owner, err)
	}
	d.emitTrigger(req.kind, metrics.ResultDuplicate)
	d.logger.InfoContext(ctx, "trigger deduplicated", "job_id", job.ID, "tenant_id", job.TenantID, "kind", string(req.kind))
	return job, nil
}

func (d *Dispatcher) emitTrigger(kind model.JobKind, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Count("dispatcher.trigger", 1, map[string]string{"kind": string(kind), "result": result})
}

// Execute runs job through the workflow of its kind. A job whose input cannot be decoded is failed
// without running any step.
func (d *Dispatcher) Execute(ctx context.Context, job *model.Job) (*workflow.Outcome, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	scope, err := d.Scope(job.TenantID)
	if err != nil {
		return nil, err
	}
	def, err := d.Definition(scope, job)
	if err != nil {
		var mark markFailedFunc
		if !apperrors.IsCrossTenantAccess(err) {
			mark = markWatchedFailed(scope, job.Kind, watchedRecordID(job))
		}
		return d.executor.Fail(ctx, scope, job, d.onFailure(scope, job, mark), err)
	}
	return d.executor.Run(ctx, scope, job, def)
}

// Definition builds the step list of job from its stored trigger payload.
func (d *Dispatcher) Definition(scope *tenant.Scope, job *model.Job) (workflow.Definition, error) {
	switch job.Kind {
	case model.JobKindGeneration:
		var in model.GenerationTrigger
		if err := decodeInput(scope, job, &in); err != nil {
			return workflow.Definition{}, err
		}
		return d.generationWorkflow(scope, job, in), nil
	case model.JobKindGrading:
		var in model.GradingTrigger
		if err := decodeInput(scope, job, &in); err != nil {
			return workflow.Definition{}, err
		}
		return d.gradingWorkflow(scope, job, in), nil
	case model.JobKindDeletion:
		var in model.DeletionTrigger
		if err := decodeInput(scope, job, &in); err != nil {
			return workflow.Definition{}, err
		}
		return d.deletionWorkflow(scope, job, in), nil
	case model.JobKindNotificationSend:
		var in model.NotificationTrigger
		if err := decodeInput(scope, job, &in); err != nil {
			return workflow.Definition{}, err
		}
		return d.notificationWorkflow(scope, job, in), nil
	default:
		return workflow.Definition{}, apperrors.Validationf("no workflow for job kind %q", job.Kind)
	}
}

// validator is implemented by every trigger type.
type validator interface {
	Validate() error
}

// decodeInput decodes a stored trigger payload and checks that it belongs to the scope's tenant.
func decodeInput(scope *tenant.Scope, job *model.Job, in validator) error {
	if err := json.Unmarshal(job.Input, in); err != nil {
		return fmt.Errorf("decode %s input: %w", job.Kind, err)
	}
	if err := in.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid "+string(job.Kind)+" input")
	}
	var owner struct {
		TenantID string `json:"tenantId"`
	}
	if err := json.Unmarshal(job.Input, &owner); err == nil && owner.TenantID != scope.TenantID() {
		return apperrors.CrossTenantAccessf("%s input names another tenant", job.Kind)
	}
	return nil
}

// JobStatus returns the polling view of a job. Jobs of other tenants are reported as not found.
func (d *Dispatcher) JobStatus(ctx context.Context, tenantID, jobID string) (*model.JobStatusView, error) {
	scope, err := d.Scope(tenantID)
	if err != nil {
		return nil, err
	}
	job, err := scope.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	view := job.StatusView()
	return &view, nil
}

// Stats returns the tenant's job counts per status.
func (d *Dispatcher) Stats(ctx context.Context, tenantID string) (*model.JobStats, error) {
	scope, err := d.Scope(tenantID)
	if err != nil {
		return nil, err
	}
	return d.stores.Jobs.Stats(ctx, scope.TenantID())
}

// markFailedFunc writes a terminal failure onto the record the trigger's caller watches.
type markFailedFunc func(ctx context.Context, f workflow.Failure) error

// markWatchedFailed marks the exercise, submission or deletion request behind a job of kind as failed.
// It returns nil when the kind has no watched record or id is empty.
func markWatchedFailed(scope *tenant.Scope, kind model.JobKind, id string) markFailedFunc {
	if id == "" {
		return nil
	}
	var (
		et     model.EntityType
		fields func(f workflow.Failure) map[string]any
	)
	switch kind {
	case model.JobKindGeneration:
		et = model.EntityExercise
		fields = func(f workflow.Failure) map[string]any {
			return map[string]any{
				"generation_status":     GenerationStatusFailed,
				"generation_error":      failureMessage(f),
				"generation_error_kind": f.Kind,
			}
		}
	case model.JobKindGrading:
		et = model.EntitySubmission
		fields = func(f workflow.Failure) map[string]any {
			return map[string]any{
				"grading_status":     GradingStatusFailed,
				"grading_error":      failureMessage(f),
				"grading_error_kind": f.Kind,
			}
		}
	case model.JobKindDeletion:
		et = model.EntityDeletionRequest
		fields = func(f workflow.Failure) map[string]any {
			return map[string]any{
				"status": model.DeletionStatusFailed,
				"error":  failureMessage(f),
			}
		}
	default:
		return nil
	}
	return func(ctx context.Context, f workflow.Failure) error {
		_, err := scope.Update(ctx, et, id, fields(f))
		return err
	}
}

// watchedRecordID reads the watched record id out of input that did not decode or validate as a whole.
func watchedRecordID(job *model.Job) string {
	var ids struct {
		ExerciseID   json.RawMessage `json:"exerciseId"`
		SubmissionID json.RawMessage `json:"submissionId"`
		RequestID    json.RawMessage `json:"requestId"`
	}
	if err := json.Unmarshal(job.Input, &ids); err != nil {
		return ""
	}
	var raw json.RawMessage
	switch job.Kind {
	case model.JobKindGeneration:
		raw = ids.ExerciseID
	case model.JobKindGrading:
		raw = ids.SubmissionID
	case model.JobKindDeletion:
		raw = ids.RequestID
	}
	var id string
	if json.Unmarshal(raw, &id) != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

// onFailure builds the failure hook of one job. The externally visible record is marked failed and
// operators are alerted whether or not the job's own failed transition was stored.
func (d *Dispatcher) onFailure(scope *tenant.Scope, job *model.Job, mark markFailedFunc) workflow.FailureHook {
	return func(ctx context.Context, f workflow.Failure) error {
		var markErr error
		if mark != nil {
			if markErr = mark(ctx, f); markErr != nil {
				d.logger.ErrorContext(ctx, "mark record failed", "job_id", job.ID, "tenant_id", scope.TenantID(), "error", markErr)
			}
		}

		if d.failures.Enabled() {
			meta := map[string]string{"attempts": strconv.Itoa(job.RetryCount + 1)}
			if markErr != nil {
				meta["mark_failed_error"] = markErr.Error()
			}
			d.failures.NotifyJobFailure(ctx, notify.JobFailurePayload{
				JobID:     job.ID,
				TenantID:  scope.TenantID(),
				Kind:      string(job.Kind),
				Step:      f.Step,
				Error:     f.Message,
				ErrorKind: f.Kind,
				Metadata:  meta,
			})
		}

		if d.metrics != nil {
			result := metrics.ResultSuccess
			if markErr != nil {
				result = metrics.ResultError
			}
			d.metrics.Count("dispatcher.failure_hook", 1, map[string]string{
				"kind":       string(job.Kind),
				"result":     result,
				"error_kind": f.Kind,
			})
		}
		return markErr
	}
}

// failureMessage is the human readable text written onto failed records.
func failureMessage(f workflow.Failure) string {
	return fmt.Sprintf("%s (%s)", f.Message, f.Kind)
}
