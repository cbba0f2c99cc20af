package memstore

import (
	"context"
	"sort"

	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// StepResultRepo is the in-memory core.StepResultRepository.
type StepResultRepo struct {
	s *Store
}

func cloneStep(res *model.StepResult) *model.StepResult {
	cp := *res
	cp.Output = cloneRaw(res.Output)
	return &cp
}

func (r *StepResultRepo) owned(tenantID, jobID string) bool {
	row, ok := r.s.jobs[jobID]
	return ok && row.job.TenantID == tenantID
}

// Get returns the checkpoint of a step, or nil.
func (r *StepResultRepo) Get(_ context.Context, tenantID, jobID, step string) (*model.StepResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.owned(tenantID, jobID) {
		return nil, nil
	}
	row, ok := r.s.steps[jobID][step]
	if !ok {
		return nil, nil
	}
	return cloneStep(row.res), nil
}

// Record stores a checkpoint unless one exists and returns the stored one.
func (r *StepResultRepo) Record(_ context.Context, res *model.StepResult) (*model.StepResult, error) {
	if res == nil || res.JobID == "" || res.StepName == "" || len(res.Output) == 0 {
		return nil, apperrors.Validation("job id, step name and output are required")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.owned(res.TenantID, res.JobID) {
		return nil, apperrors.NotFoundf("job %s not found", res.JobID)
	}
	byStep, ok := r.s.steps[res.JobID]
	if !ok {
		byStep = make(map[string]*stepRow)
		r.s.steps[res.JobID] = byStep
	}
	if existing, ok := byStep[res.StepName]; ok {
		return cloneStep(existing.res), nil
	}
	stored := cloneStep(res)
	stored.CreatedAt = r.s.now()
	byStep[res.StepName] = &stepRow{res: stored, seq: r.s.next()}
	return cloneStep(stored), nil
}

// List returns every checkpoint of a job in recording order.
func (r *StepResultRepo) List(_ context.Context, tenantID, jobID string) ([]*model.StepResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.owned(tenantID, jobID) {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	rows := make([]*stepRow, 0, len(r.s.steps[jobID]))
	for _, row := range r.s.steps[jobID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].seq < rows[b].seq })

	out := make([]*model.StepResult, len(rows))
	for i, row := range rows {
		out[i] = cloneStep(row.res)
	}
	return out, nil
}
