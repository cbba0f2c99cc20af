package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/prepflow/internal/core"
	domainjob "github.com/target/prepflow/internal/domain/job"
	"github.com/target/prepflow/internal/domain/model"
	"github.com/target/prepflow/internal/observability/statsd"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required unless LeasePolicy is set: lease for reservations
	LeasePolicy     *domainjob.LeasePolicy    // Optional: overrides DefaultLease
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure the default notifier
	Logger          *slog.Logger              // Optional: structured logger
	Metrics         statsd.Sink               // Optional: metrics sink
}

// JobService exposes the lease and scheduling operations the runner needs. It never changes a
// job's status; lifecycle transitions belong to the workflow executor.
type JobService struct {
	repo     core.JobRepository
	policy   *domainjob.LeasePolicy
	notifier domainjob.Notifier
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	policy := opts.LeasePolicy
	if policy == nil {
		if opts.DefaultLease <= 0 {
			return nil, errors.New("DefaultLease must be positive")
		}
		var err error
		if policy, err = domainjob.NewLeasePolicy(opts.DefaultLease); err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		nopts := opts.NotifierOptions
		if nopts.Waiter == nil {
			nopts.Waiter = opts.Repo
		}
		var err error
		if notifier, err = domainjob.NewNotifier(nopts); err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_service")
	logger.Debug("JobService initialized", "default_lease", policy.Default())

	return &JobService{
		repo:     opts.Repo,
		policy:   policy,
		notifier: notifier,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// DefaultLease reports the lease used when callers pass zero.
func (s *JobService) DefaultLease() time.Duration { return s.policy.Default() }

// ResolveLease applies the lease policy to a requested duration.
func (s *JobService) ResolveLease(requested time.Duration) time.Duration {
	decision := s.policy.Resolve(requested)
	if decision.Clamped() {
		s.logger.Debug("lease clamped",
			"requested", decision.Requested,
			"lease", decision.Lease,
		)
	}
	return decision.Lease
}

// ReserveNext leases the next runnable job of any of kinds for owner. It returns
// model.ErrNoJobsAvailable when nothing is runnable.
func (s *JobService) ReserveNext(
	ctx context.Context,
	kinds []model.JobKind,
	owner string,
	lease time.Duration,
) (*model.Job, error) {
	job, err := s.repo.ReserveNext(ctx, core.ReserveParams{
		Kinds: kinds,
		Owner: owner,
		Lease: s.ResolveLease(lease),
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve job: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Count("job.reserved", 1, map[string]string{"kind": string(job.Kind)})
	}
	s.logger.DebugContext(ctx, "job reserved",
		"job_id", job.ID,
		"tenant_id", job.TenantID,
		"kind", job.Kind,
		"status", job.Status,
		"owner", owner,
	)
	return job, nil
}

// Heartbeat extends owner's lease. It reports false when the lease was lost.
func (s *JobService) Heartbeat(ctx context.Context, id, owner string, lease time.Duration) (bool, error) {
	ok, err := s.repo.Heartbeat(ctx, id, owner, s.ResolveLease(lease))
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "job lease lost", "job_id", id, "owner", owner)
	}
	return ok, nil
}

// Defer releases the lease and schedules the job to run again at until.
func (s *JobService) Defer(ctx context.Context, id string, until time.Time) error {
	if err := s.repo.Defer(ctx, id, until); err != nil {
		return fmt.Errorf("defer job %s: %w", id, err)
	}
	s.logger.DebugContext(ctx, "job deferred", "job_id", id, "run_after", until)
	return nil
}

// Release drops the lease so another runner may pick the job up.
func (s *JobService) Release(ctx context.Context, id string) error {
	if err := s.repo.Release(ctx, id); err != nil {
		return fmt.Errorf("release job %s: %w", id, err)
	}
	return nil
}

// Subscribe returns a channel signalled when a job of any of kinds may be runnable.
func (s *JobService) Subscribe(kinds ...model.JobKind) (func(), <-chan struct{}) {
	return s.notifier.Subscribe(kinds...)
}

// StopAllListeners stops the notifier's background listeners.
func (s *JobService) StopAllListeners() {
	s.notifier.StopAll()
}
