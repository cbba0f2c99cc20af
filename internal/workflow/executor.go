package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
	obserrors "github.com/target/prepflow/internal/observability/errors"
	"github.com/target/prepflow/internal/observability/metrics"
	"github.com/target/prepflow/internal/observability/statsd"
	"github.com/target/prepflow/internal/tenant"
)

// Defaults applied by NewExecutor.
const (
	DefaultBackoff        = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultMaxInlineSleep = 30 * time.Second
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Options configures an Executor.
type Options struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
	Clock   Clock
	// Wait replaces the timer used for backoff and inline sleeps.
	Wait WaitFunc
	// MaxAttempts is the attempt budget of a whole job, first attempt included. A job's own
	// max_attempts takes precedence.
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles per retry up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// MaxInlineSleep is the longest sleep waited in-process; longer sleeps suspend the job.
	MaxInlineSleep time.Duration
}

// Executor runs workflow definitions against jobs.
type Executor struct {
	logger         *slog.Logger
	sink           statsd.Sink
	clock          Clock
	wait           WaitFunc
	maxAttempts    int
	backoff        time.Duration
	maxBackoff     time.Duration
	maxInlineSleep time.Duration
}

// NewExecutor creates an Executor, filling zero options with defaults.
func NewExecutor(opts Options) *Executor {
	e := &Executor{
		logger:         opts.Logger,
		sink:           opts.Metrics,
		clock:          opts.Clock,
		wait:           opts.Wait,
		maxAttempts:    opts.MaxAttempts,
		backoff:        opts.Backoff,
		maxBackoff:     opts.MaxBackoff,
		maxInlineSleep: opts.MaxInlineSleep,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "workflow")
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.wait == nil {
		e.wait = timerWait
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = model.DefaultMaxAttempts
	}
	if e.backoff <= 0 {
		e.backoff = DefaultBackoff
	}
	if e.maxBackoff <= 0 {
		e.maxBackoff = DefaultMaxBackoff
	}
	if e.maxInlineSleep <= 0 {
		e.maxInlineSleep = DefaultMaxInlineSleep
	}
	return e
}

func timerWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run holds the state of one Run call.
type run struct {
	scope    *tenant.Scope
	job      *model.Job
	def      Definition
	log      *slog.Logger
	out      *Outcome
	lastKind obserrors.Kind
	started  time.Time
}

// Run executes def for job. Completed and failed jobs are reported as stored and no step runs.
// A returned error means the run was interrupted (context done or store unreachable) and the job is
// left as is for a later run; workflow failures are reported through the Outcome.
func (e *Executor) Run(ctx context.Context, scope *tenant.Scope, job *model.Job, def Definition) (*Outcome, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	current, err := scope.Job(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", job.ID, err)
	}
	if def.Kind == "" {
		def.Kind = current.Kind
	}

	r := &run{
		scope:   scope,
		job:     current,
		def:     def,
		log:     e.logger.With("job_id", current.ID, "tenant_id", scope.TenantID(), "kind", string(current.Kind)),
		out:     &Outcome{JobID: current.ID, Status: current.Status, Attempts: current.RetryCount + 1},
		started: e.clock.Now(),
	}
	if current.ErrorKind != nil {
		r.lastKind = obserrors.ParseKind(*current.ErrorKind)
	}

	if done, err := e.start(ctx, r); done || err != nil {
		return r.out, err
	}

	var last json.RawMessage
	for _, step := range def.Steps {
		if step.isSleep {
			suspended, err := e.sleep(ctx, r, step)
			if err != nil || suspended {
				return r.out, err
			}
			continue
		}
		raw, failed, err := e.step(ctx, r, step)
		if err != nil || failed {
			return r.out, err
		}
		last = raw
	}
	return r.out, e.complete(ctx, r, last)
}

// start moves a pending job to processing. It reports done for jobs that must not run.
func (e *Executor) start(ctx context.Context, r *run) (bool, error) {
	switch r.job.Status {
	case model.JobStatusCompleted:
		r.out.Result = r.job.Result
		return true, nil
	case model.JobStatusFailed:
		r.out.Failure = storedFailure(r.job)
		return true, nil
	case model.JobStatusProcessing:
		r.log.Info("resuming job", "attempt", r.out.Attempts)
		return false, nil
	}

	updated, err := r.scope.Transition(ctx, model.TransitionRequest{JobID: r.job.ID, To: model.JobStatusProcessing})
	if apperrors.IsInvalidTransition(err) {
		// Another runner started the job first.
		reloaded, lerr := r.scope.Job(ctx, r.job.ID)
		if lerr != nil {
			return true, fmt.Errorf("reload job %s: %w", r.job.ID, lerr)
		}
		r.job = reloaded
		r.out.Status = reloaded.Status
		if reloaded.Status == model.JobStatusPending {
			return true, err
		}
		return e.start(ctx, r)
	}
	if err != nil {
		return true, fmt.Errorf("start job %s: %w", r.job.ID, err)
	}
	r.job = updated
	r.out.Status = updated.Status
	metrics.EmitJobLifecycle(e.sink, metrics.JobMetric{
		Kind:       string(r.def.Kind),
		Transition: "pending_to_processing",
		Result:     metrics.ResultSuccess,
	})
	r.log.Info("job started")
	return false, nil
}

func storedFailure(job *model.Job) *Failure {
	f := &Failure{Kind: string(obserrors.KindOther)}
	if job.Error != nil {
		f.Message = *job.Error
	}
	if job.ErrorKind != nil {
		f.Kind = *job.ErrorKind
	}
	return f
}

// step runs or replays one action step. failed reports a terminal failure already applied to the job.
func (e *Executor) step(ctx context.Context, r *run, step Step) (json.RawMessage, bool, error) {
	cp, err := r.scope.Checkpoint(ctx, r.job.ID, step.name)
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint %s: %w", step.name, err)
	}
	if cp != nil {
		if err := step.restore(cp.Output); err != nil {
			return nil, true, e.fail(ctx, r, step.name, err, obserrors.KindInvalidResponse)
		}
		r.out.Replayed = append(r.out.Replayed, step.name)
		metrics.EmitStep(e.sink, metrics.StepMetric{Kind: string(r.def.Kind), Step: step.name, Result: metrics.ResultReplay})
		return cp.Output, false, nil
	}

	for {
		began := e.clock.Now()
		raw, runErr := e.attempt(ctx, r, step)
		if runErr == nil {
			r.lastKind = ""
			r.out.Executed = append(r.out.Executed, step.name)
			metrics.EmitStep(e.sink, metrics.StepMetric{
				Kind:     string(r.def.Kind),
				Step:     step.name,
				Result:   metrics.ResultSuccess,
				Duration: e.clock.Now().Sub(began),
			})
			return raw, false, nil
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		kind := obserrors.ClassifyKind(runErr)
		retry, reason := e.retryable(r, runErr, kind)
		if !retry {
			r.log.Warn("step failed", "step", step.name, "error", runErr, "error_kind", string(kind), "reason", reason)
			metrics.EmitStep(e.sink, metrics.StepMetric{Kind: string(r.def.Kind), Step: step.name, Result: metrics.ResultError, Err: runErr})
			return nil, true, e.fail(ctx, r, step.name, runErr, kind)
		}

		n, err := r.scope.IncrementRetry(ctx, r.job.ID, string(kind))
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			return nil, true, e.fail(ctx, r, step.name, err, obserrors.ClassifyKind(err))
		}
		r.lastKind = kind
		metrics.EmitStep(e.sink, metrics.StepMetric{Kind: string(r.def.Kind), Step: step.name, Result: metrics.ResultRetry, Err: runErr})
		if n >= e.budget(r.job) {
			r.out.Attempts = n
			r.log.Warn("retries exhausted", "step", step.name, "error", runErr, "error_kind", string(kind), "attempt", n)
			return nil, true, e.fail(ctx, r, step.name, runErr, kind)
		}

		r.out.Attempts = n + 1
		delay := e.backoffFor(n)
		r.log.Info("retrying step", "step", step.name, "error", runErr, "error_kind", string(kind),
			"attempt", n+1, "backoff", delay)
		if err := e.wait(ctx, delay); err != nil {
			return nil, false, err
		}
	}
}

// attempt runs the action once and records its checkpoint. The checkpoint that won is returned so
// concurrent runners agree on one output.
func (e *Executor) attempt(ctx context.Context, r *run, step Step) (json.RawMessage, error) {
	v, err := step.run(ctx)
	if err != nil {
		return nil, err
	}
	cp, err := r.scope.RecordCheckpoint(ctx, r.job.ID, step.name, v)
	if err != nil {
		return nil, fmt.Errorf("record checkpoint %s: %w", step.name, err)
	}
	if err := step.restore(cp.Output); err != nil {
		return nil, err
	}
	return cp.Output, nil
}

// retryable applies the retry policy to one classified failure.
func (e *Executor) retryable(r *run, err error, kind obserrors.Kind) (bool, string) {
	switch {
	case apperrors.IsStoreFault(err):
		return false, "store fault"
	case !kind.Retryable():
		return false, "terminal kind"
	case kind == obserrors.KindOther && r.lastKind == obserrors.KindOther:
		return false, "repeated unclassified failure"
	default:
		return true, ""
	}
}

func (e *Executor) budget(job *model.Job) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	return e.maxAttempts
}

func (e *Executor) backoffFor(retry int) time.Duration {
	d := e.backoff
	for i := 1; i < retry && d < e.maxBackoff; i++ {
		d *= 2
	}
	if d > e.maxBackoff {
		d = e.maxBackoff
	}
	return d
}

// sleep waits out a delay step, recording when it ends so a resumed run only waits the remainder.
func (e *Executor) sleep(ctx context.Context, r *run, step Step) (bool, error) {
	if step.delay <= 0 {
		r.out.Skipped = append(r.out.Skipped, step.name)
		metrics.EmitStep(e.sink, metrics.StepMetric{Kind: string(r.def.Kind), Step: step.name, Result: metrics.ResultSkipped})
		return false, nil
	}

	cp, err := r.scope.Checkpoint(ctx, r.job.ID, step.name)
	if err != nil {
		return false, fmt.Errorf("load checkpoint %s: %w", step.name, err)
	}
	if cp == nil {
		cp, err = r.scope.RecordCheckpoint(ctx, r.job.ID, step.name, sleepCheckpoint{WakeAt: e.clock.Now().Add(step.delay)})
		if err != nil {
			return false, fmt.Errorf("record checkpoint %s: %w", step.name, err)
		}
		r.out.Executed = append(r.out.Executed, step.name)
	} else {
		r.out.Replayed = append(r.out.Replayed, step.name)
	}

	var state sleepCheckpoint
	if err := json.Unmarshal(cp.Output, &state); err != nil {
		return false, fmt.Errorf("decode checkpoint %s: %w", step.name, err)
	}
	remaining := state.WakeAt.Sub(e.clock.Now())
	if remaining <= 0 {
		return false, nil
	}
	if remaining > e.maxInlineSleep {
		r.out.Suspended = true
		r.out.ResumeAt = state.WakeAt
		r.log.Info("job suspended", "step", step.name, "resume_at", state.WakeAt)
		return true, nil
	}
	return false, e.wait(ctx, remaining)
}

// complete stores the result of the last action step.
func (e *Executor) complete(ctx context.Context, r *run, result json.RawMessage) error {
	if len(result) == 0 || string(result) == "null" {
		result = json.RawMessage(`{}`)
	}
	updated, err := r.scope.Transition(ctx, model.TransitionRequest{
		JobID:  r.job.ID,
		To:     model.JobStatusCompleted,
		Result: result,
	})
	if apperrors.IsInvalidTransition(err) {
		reloaded, lerr := r.scope.Job(ctx, r.job.ID)
		if lerr == nil && reloaded.Status == model.JobStatusCompleted {
			r.out.Status = reloaded.Status
			r.out.Result = reloaded.Result
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("complete job %s: %w", r.job.ID, err)
	}
	r.out.Status = updated.Status
	r.out.Result = updated.Result
	metrics.EmitJobLifecycle(e.sink, metrics.JobMetric{
		Kind:       string(r.def.Kind),
		Transition: "processing_to_completed",
		Result:     metrics.ResultSuccess,
		Duration:   e.clock.Now().Sub(r.started),
	})
	r.log.Info("job completed", "attempt", r.out.Attempts)
	return nil
}

// fail marks the job failed and runs the failure hook. The hook runs even when the transition fails.
func (e *Executor) fail(ctx context.Context, r *run, stepName string, cause error, kind obserrors.Kind) error {
	f := Failure{Step: stepName, Message: cause.Error(), Kind: string(kind)}
	r.out.Failure = &f
	r.out.Status = model.JobStatusFailed

	_, terr := r.scope.Transition(ctx, model.TransitionRequest{
		JobID:     r.job.ID,
		To:        model.JobStatusFailed,
		Error:     f.Message,
		ErrorKind: f.Kind,
	})
	if terr != nil {
		r.log.Error("mark job failed", "step", stepName, "error", terr)
	}
	metrics.EmitJobLifecycle(e.sink, metrics.JobMetric{
		Kind:       string(r.def.Kind),
		Transition: "processing_to_failed",
		Result:     metrics.ResultError,
		Duration:   e.clock.Now().Sub(r.started),
		Err:        cause,
	})
	r.log.Error("job failed", "step", stepName, "error", f.Message, "error_kind", f.Kind)

	if r.def.OnFailure != nil {
		if err := r.def.OnFailure(ctx, f); err != nil {
			r.log.Error("failure hook", "error", err)
		}
	}
	return nil
}

// Fail terminates a job that cannot be built into a workflow, such as one with an undecodable input.
// Terminal jobs are left unchanged.
func (e *Executor) Fail(ctx context.Context, scope *tenant.Scope, job *model.Job, hook FailureHook, cause error) (*Outcome, error) {
	if cause == nil {
		return nil, errors.New("failure cause is required")
	}
	current, err := scope.Job(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", job.ID, err)
	}
	r := &run{
		scope:   scope,
		job:     current,
		def:     Definition{Kind: current.Kind, OnFailure: hook},
		log:     e.logger.With("job_id", current.ID, "tenant_id", scope.TenantID(), "kind", string(current.Kind)),
		out:     &Outcome{JobID: current.ID, Status: current.Status, Attempts: current.RetryCount + 1},
		started: e.clock.Now(),
	}
	if done, err := e.start(ctx, r); done || err != nil {
		return r.out, err
	}
	return r.out, e.fail(ctx, r, "", cause, obserrors.ClassifyKind(cause))
}
