package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// StepResultRepo persists workflow step checkpoints.
type StepResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.StepResultRepository = (*StepResultRepo)(nil)

// NewStepResultRepo constructs a StepResultRepo.
func NewStepResultRepo(db *sql.DB, tp TimeProvider) *StepResultRepo {
	return &StepResultRepo{DB: db, timeProvider: resolveTimeProvider(tp)}
}

func scanStepResult(scanner jobRowScanner) (*model.StepResult, error) {
	var res model.StepResult
	var output []byte
	if err := scanner.Scan(&res.JobID, &res.TenantID, &res.StepName, &output, &res.CreatedAt); err != nil {
		return nil, err
	}
	res.Output = cloneJSON(output)
	res.CreatedAt = res.CreatedAt.UTC()
	return &res, nil
}

// Get returns the checkpoint of a step, or nil when the step has not completed.
func (r *StepResultRepo) Get(ctx context.Context, tenantID, jobID, step string) (*model.StepResult, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT job_id, tenant_id, step_name, output, created_at
		FROM job_step_results
		WHERE job_id = $1 AND tenant_id = $2 AND step_name = $3`, jobID, tenantID, step)
	res, err := scanStepResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get step result: %w", err))
	}
	return res, nil
}

// Record inserts a checkpoint unless one exists and returns the stored checkpoint. The insert only
// succeeds when the job exists in the same tenant.
func (r *StepResultRepo) Record(ctx context.Context, res *model.StepResult) (*model.StepResult, error) {
	if res == nil || res.JobID == "" || res.StepName == "" || len(res.Output) == 0 {
		return nil, apperrors.Validation("job id, step name and output are required")
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_step_results (job_id, tenant_id, step_name, output, created_at)
		SELECT id, tenant_id, $3, $4, $5
		FROM jobs
		WHERE id = $1 AND tenant_id = $2
		ON CONFLICT (job_id, step_name) DO NOTHING`,
		res.JobID, res.TenantID, res.StepName, []byte(res.Output), r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("record step result: %w", err))
	}

	stored, err := r.Get(ctx, res.TenantID, res.JobID, res.StepName)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, apperrors.NotFoundf("job %s not found", res.JobID)
	}
	return stored, nil
}

// List returns every checkpoint of a job in recording order.
func (r *StepResultRepo) List(ctx context.Context, tenantID, jobID string) ([]*model.StepResult, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT job_id, tenant_id, step_name, output, created_at
		FROM job_step_results
		WHERE job_id = $1 AND tenant_id = $2
		ORDER BY created_at, step_name`, jobID, tenantID)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list step results: %w", err))
	}
	defer rows.Close()

	var out []*model.StepResult
	for rows.Next() {
		res, err := scanStepResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step results: %w", err)
	}
	return out, nil
}
