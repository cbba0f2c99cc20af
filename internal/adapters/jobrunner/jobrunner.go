// Package jobrunner reserves runnable jobs and executes them through the dispatcher.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/data"
	"github.com/target/prepflow/internal/domain/model"
	"github.com/target/prepflow/internal/observability/metrics"
	"github.com/target/prepflow/internal/observability/statsd"
	"github.com/target/prepflow/internal/service"
	"github.com/target/prepflow/internal/workflow"
)

// Executor runs one job through its workflow.
type Executor interface {
	Execute(ctx context.Context, job *model.Job) (*workflow.Outcome, error)
}

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Jobs     *service.JobService // Required: lease and scheduling operations
	Executor Executor            // Required: usually *service.Dispatcher

	Lock    core.JobLock      // Optional: guards against two runners executing one job
	Kinds   []model.JobKind   // Optional: defaults to every kind
	Owner   string            // Optional: lease owner, defaults to host name plus a random suffix
	Clock   data.TimeProvider // Optional: defaults to system time
	Logger  *slog.Logger      // Optional: structured logger
	Metrics statsd.Sink       // Optional: metrics sink

	Lease       time.Duration // per-job lease; defaults to the JobService's default lease
	Concurrency int           // number of worker goroutines; defaults to 1
	// RetryDelay postpones a job whose execution returned an infrastructure error; defaults to the lease.
	RetryDelay time.Duration
}

// Runner pulls jobs and executes them.
type Runner struct {
	jobs       *service.JobService
	executor   Executor
	lock       core.JobLock
	kinds      []model.JobKind
	owner      string
	clock      data.TimeProvider
	logger     *slog.Logger
	metrics    statsd.Sink
	lease      time.Duration
	workers    int
	retryDelay time.Duration
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job service is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}

	r := &Runner{
		jobs:       opts.Jobs,
		executor:   opts.Executor,
		lock:       opts.Lock,
		kinds:      opts.Kinds,
		owner:      opts.Owner,
		clock:      opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		lease:      opts.Jobs.ResolveLease(opts.Lease),
		workers:    opts.Concurrency,
		retryDelay: opts.RetryDelay,
	}
	for _, k := range r.kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("invalid job kind %q", k)
		}
	}
	if len(r.kinds) == 0 {
		r.kinds = model.AllJobKinds()
	}
	if r.owner == "" {
		r.owner = defaultOwner()
	}
	if r.clock == nil {
		r.clock = data.RealTimeProvider{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "job_runner", "owner", r.owner)
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.retryDelay <= 0 {
		r.retryDelay = r.lease
	}
	return r, nil
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "runner"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Owner reports the lease owner this runner reserves jobs as.
func (r *Runner) Owner() string { return r.owner }

// Run starts the workers and processes jobs until ctx is cancelled or a worker fails.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "kinds", r.kinds, "workers", r.workers, "lease", r.lease)

	g, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		unsub, ch := r.jobs.Subscribe(r.kinds...)
		g.Go(func() error {
			defer unsub()
			return r.workerLoop(gctx, ch)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context, wake <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.kinds, r.owner, r.lease)
		switch {
		case err == nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case _, ok := <-wake:
				if !ok {
					return nil
				}
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

// processJob executes one reserved job. The job's status is owned by the workflow; the runner only
// settles the lease afterwards.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	logger := r.logger.With("job_id", job.ID, "tenant_id", job.TenantID, "kind", job.Kind)
	// Settling the lease must survive shutdown.
	settleCtx := context.WithoutCancel(ctx)

	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx, job.ID, r.owner, r.lease)
		if err != nil || !ok {
			if err != nil {
				logger.WarnContext(ctx, "job lock unavailable", "error", err)
			} else {
				logger.InfoContext(ctx, "job is executing elsewhere")
			}
			r.deferJob(settleCtx, logger, job.ID, r.clock.Now().Add(r.retryDelay))
			r.emit(job, "locked", metrics.ResultSkipped, err, start)
			return
		}
		defer func() {
			if err := r.lock.Release(settleCtx, job.ID, r.owner); err != nil {
				logger.WarnContext(ctx, "release job lock", "error", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.heartbeat(runCtx, cancel, logger, job.ID)

	out, err := r.executor.Execute(runCtx, job)
	switch {
	case err != nil && ctx.Err() != nil:
		// Shutdown: the job stays where it is and is resumed from its checkpoints later.
		r.release(settleCtx, logger, job.ID)
		r.emit(job, "interrupted", metrics.ResultSkipped, err, start)
	case err != nil && runCtx.Err() != nil:
		// Lease lost; whoever holds it now settles the job.
		logger.WarnContext(ctx, "job abandoned after losing its lease", "error", err)
		r.emit(job, "interrupted", metrics.ResultError, err, start)
	case err != nil:
		logger.ErrorContext(ctx, "job execution error", "error", err)
		r.deferJob(settleCtx, logger, job.ID, r.clock.Now().Add(r.retryDelay))
		r.emit(job, "execute", metrics.ResultError, err, start)
	case out.Suspended:
		r.deferJob(settleCtx, logger, job.ID, out.ResumeAt)
		r.emit(job, "suspended", metrics.ResultSuccess, nil, start)
	default:
		r.release(settleCtx, logger, job.ID)
		result := metrics.ResultSuccess
		var ferr error
		if out.Status == model.JobStatusFailed {
			result = metrics.ResultError
			if out.Failure != nil {
				ferr = errors.New(out.Failure.Message)
			}
		}
		logger.InfoContext(ctx, "job finished", "status", out.Status, "attempts", out.Attempts)
		r.emit(job, string(out.Status), result, ferr, start)
	}
}

// heartbeat extends the lease until ctx ends and cancels the run when the lease is lost.
func (r *Runner) heartbeat(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, jobID string) {
	ticker := time.NewTicker(max(r.lease/3, 100*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ok, err := r.jobs.Heartbeat(ctx, jobID, r.owner, r.lease)
		if err != nil {
			if ctx.Err() == nil {
				logger.WarnContext(ctx, "heartbeat failed", "error", err)
			}
			continue
		}
		if !ok {
			cancel()
			return
		}
		if r.lock != nil {
			if _, err := r.lock.Acquire(ctx, jobID, r.owner, r.lease); err != nil && ctx.Err() == nil {
				logger.WarnContext(ctx, "refresh job lock", "error", err)
			}
		}
	}
}

func (r *Runner) deferJob(ctx context.Context, logger *slog.Logger, jobID string, until time.Time) {
	if err := r.jobs.Defer(ctx, jobID, until); err != nil {
		logger.ErrorContext(ctx, "defer job", "error", err)
	}
}

func (r *Runner) release(ctx context.Context, logger *slog.Logger, jobID string) {
	if err := r.jobs.Release(ctx, jobID); err != nil {
		logger.ErrorContext(ctx, "release job", "error", err)
	}
}

func (r *Runner) emit(job *model.Job, transition, result string, err error, start time.Time) {
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Kind:       string(job.Kind),
		Transition: transition,
		Result:     result,
		Duration:   time.Since(start),
		Err:        err,
	})
}
