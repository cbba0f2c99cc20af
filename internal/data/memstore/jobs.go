package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// JobRepo is the in-memory core.JobRepository.
type JobRepo struct {
	s *Store
}

// Create stores a pending job.
func (r *JobRepo) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job request")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := r.s.jobs[id]; ok {
		return nil, &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "job already exists", Field: "id"}
	}

	now := r.s.now()
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = model.DefaultMaxAttempts
	}
	runAfter := now
	if req.RunAfter != nil {
		runAfter = req.RunAfter.UTC()
	}
	job := &model.Job{
		ID:          id,
		TenantID:    req.TenantID,
		Kind:        req.Kind,
		Status:      model.JobStatusPending,
		Input:       cloneRaw(req.Input),
		MaxAttempts: maxAttempts,
		RunAfter:    runAfter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.s.jobs[id] = &jobRow{job: job, seq: r.s.next()}
	r.s.notifyLocked(req.Kind)
	return cloneJob(job), nil
}

// lookup returns the tenant's job or NotFound; jobs of other tenants are indistinguishable from absent ones.
func (r *JobRepo) lookup(tenantID, id string) (*model.Job, error) {
	row, ok := r.s.jobs[id]
	if !ok || row.job.TenantID != tenantID {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return row.job, nil
}

// Get returns a job of tenantID.
func (r *JobRepo) Get(_ context.Context, tenantID, id string) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	job, err := r.lookup(tenantID, id)
	if err != nil {
		return nil, err
	}
	return cloneJob(job), nil
}

// Transition applies one lifecycle edge if the job is still in the edge's source status.
func (r *JobRepo) Transition(_ context.Context, req model.TransitionRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid transition request")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	job, err := r.lookup(req.TenantID, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != req.From() || !model.CanTransition(job.Status, req.To) {
		return nil, apperrors.InvalidTransitionf("job %s cannot move from %s to %s", job.ID, job.Status, req.To)
	}

	job.Status = req.To
	job.UpdatedAt = r.s.now()
	switch req.To {
	case model.JobStatusCompleted:
		job.Result = cloneRaw(req.Result)
	case model.JobStatusFailed:
		msg := req.Error
		job.Error = &msg
		if req.ErrorKind != "" {
			kind := req.ErrorKind
			job.ErrorKind = &kind
		}
	}
	if req.To.Terminal() {
		job.LeaseOwner = nil
		job.LeaseExpiresAt = nil
	}
	return cloneJob(job), nil
}

// IncrementRetry bumps the retry count of a processing job.
func (r *JobRepo) IncrementRetry(_ context.Context, tenantID, id, kind string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	job, err := r.lookup(tenantID, id)
	if err != nil {
		return 0, err
	}
	if job.Status != model.JobStatusProcessing {
		return 0, apperrors.InvalidTransitionf("job %s is %s, not processing", id, job.Status)
	}
	job.RetryCount++
	if kind != "" {
		k := kind
		job.ErrorKind = &k
	}
	job.UpdatedAt = r.s.now()
	return job.RetryCount, nil
}

// Stats counts the tenant's jobs per status.
func (r *JobRepo) Stats(_ context.Context, tenantID string) (*model.JobStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var stats model.JobStats
	for _, row := range r.s.jobs {
		if row.job.TenantID != tenantID {
			continue
		}
		switch row.job.Status {
		case model.JobStatusPending:
			stats.Pending++
		case model.JobStatusProcessing:
			stats.Processing++
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusFailed:
			stats.Failed++
		}
	}
	return &stats, nil
}

// ReserveNext leases the oldest runnable job of the given kinds.
func (r *JobRepo) ReserveNext(_ context.Context, params core.ReserveParams) (*model.Job, error) {
	if params.Owner == "" || params.Lease <= 0 {
		return nil, apperrors.Validation("owner and lease are required")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var candidates []*jobRow
	for _, row := range r.s.jobs {
		j := row.job
		if j.Status.Terminal() || j.RunAfter.After(now) {
			continue
		}
		if len(params.Kinds) > 0 && !slices.Contains(params.Kinds, j.Kind) {
			continue
		}
		if j.LeaseExpiresAt != nil && j.LeaseExpiresAt.After(now) {
			continue
		}
		candidates = append(candidates, row)
	}
	if len(candidates) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	sort.Slice(candidates, func(a, b int) bool {
		ja, jb := candidates[a].job, candidates[b].job
		if !ja.RunAfter.Equal(jb.RunAfter) {
			return ja.RunAfter.Before(jb.RunAfter)
		}
		return candidates[a].seq < candidates[b].seq
	})

	job := candidates[0].job
	owner := params.Owner
	expires := now.Add(params.Lease)
	job.LeaseOwner = &owner
	job.LeaseExpiresAt = &expires
	return cloneJob(job), nil
}

// Heartbeat extends a lease still held by owner.
func (r *JobRepo) Heartbeat(_ context.Context, id, owner string, lease time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.jobs[id]
	if !ok || row.job.LeaseOwner == nil || *row.job.LeaseOwner != owner || row.job.Status.Terminal() {
		return false, nil
	}
	expires := r.s.now().Add(lease)
	row.job.LeaseExpiresAt = &expires
	return true, nil
}

// Defer releases the lease and makes the job runnable again at until.
func (r *JobRepo) Defer(_ context.Context, id string, until time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.jobs[id]
	if !ok {
		return apperrors.NotFoundf("job %s not found", id)
	}
	row.job.LeaseOwner = nil
	row.job.LeaseExpiresAt = nil
	row.job.RunAfter = until.UTC()
	return nil
}

// Release clears the lease.
func (r *JobRepo) Release(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.jobs[id]
	if !ok {
		return apperrors.NotFoundf("job %s not found", id)
	}
	row.job.LeaseOwner = nil
	row.job.LeaseExpiresAt = nil
	return nil
}

// WaitForNotification blocks until a job of kind is created or ctx is done.
func (r *JobRepo) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	r.s.mu.Lock()
	ch, ok := r.s.wake[kind]
	if !ok {
		ch = make(chan struct{})
		r.s.wake[kind] = ch
	}
	r.s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (s *Store) notifyLocked(kind model.JobKind) {
	if ch, ok := s.wake[kind]; ok {
		close(ch)
		delete(s.wake, kind)
	}
}

// DeleteTerminalBefore removes up to limit terminal jobs updated before cutoff, with their step results.
func (r *JobRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var victims []*jobRow
	for _, row := range r.s.jobs {
		if row.job.Status.Terminal() && row.job.UpdatedAt.Before(cutoff) {
			victims = append(victims, row)
		}
	}
	sort.Slice(victims, func(a, b int) bool { return victims[a].job.UpdatedAt.Before(victims[b].job.UpdatedAt) })
	if len(victims) > limit {
		victims = victims[:limit]
	}
	for _, row := range victims {
		delete(r.s.jobs, row.job.ID)
		delete(r.s.steps, row.job.ID)
	}
	return int64(len(victims)), nil
}
