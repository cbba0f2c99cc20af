package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/data/pgxutil"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for job management.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		timeProvider: resolveTimeProvider(cfg.TimeProvider),
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  tenant_id,
  kind,
  status,
  input,
  result,
  error,
  error_kind,
  retry_count,
  max_attempts,
  run_after,
  lease_owner,
  lease_expires_at,
  created_at,
  updated_at
`

// notifyChannel is the LISTEN/NOTIFY channel announcing new jobs of kind.
func notifyChannel(kind model.JobKind) string {
	return "job_added_" + string(kind)
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	input, result               []byte
	errMsg, errKind, leaseOwner sql.NullString
	leaseExpiresAt              sql.NullTime
}

func scanJob(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var d jobRowData
	if err := scanner.Scan(
		&job.ID,
		&job.TenantID,
		&job.Kind,
		&job.Status,
		&d.input,
		&d.result,
		&d.errMsg,
		&d.errKind,
		&job.RetryCount,
		&job.MaxAttempts,
		&job.RunAfter,
		&d.leaseOwner,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Input = cloneJSON(d.input)
	if len(d.result) > 0 {
		job.Result = cloneJSON(d.result)
	}
	job.Error = cloneNullableString(d.errMsg)
	job.ErrorKind = cloneNullableString(d.errKind)
	job.LeaseOwner = cloneNullableString(d.leaseOwner)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	job.RunAfter = job.RunAfter.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts a pending job and announces it on the kind's notification channel.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job request")
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = model.DefaultMaxAttempts
	}
	now := r.timeProvider.Now().UTC()
	runAfter := now
	if req.RunAfter != nil {
		runAfter = req.RunAfter.UTC()
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			row := tx.QueryRow(ctx, `
				INSERT INTO jobs (id, tenant_id, kind, status, input, max_attempts, run_after, created_at, updated_at)
				VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $7)
				RETURNING `+jobColumns,
				id, req.TenantID, req.Kind, []byte(req.Input), maxAttempts, runAfter, now,
			)
			created, err := scanJob(row)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel(req.Kind), created.ID); err != nil {
				return fmt.Errorf("send job notification: %w", err)
			}
			job = created
			return nil
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// Get returns a job of tenantID. Jobs of other tenants are reported as not found.
func (r *JobRepo) Get(ctx context.Context, tenantID, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get job: %w", err))
	}
	return job, nil
}

// Transition applies one lifecycle edge as a single UPDATE conditional on the edge's source status, so
// two concurrent runners can never both complete a job.
func (r *JobRepo) Transition(ctx context.Context, req model.TransitionRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid transition request")
	}

	var result any
	if req.To == model.JobStatusCompleted {
		result = []byte(req.Result)
	}
	now := r.timeProvider.Now().UTC()

	row := r.DB.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = $3,
		    result = $4,
		    error = $5,
		    error_kind = COALESCE($6, error_kind),
		    lease_owner = CASE WHEN $3 IN ('completed', 'failed') THEN NULL ELSE lease_owner END,
		    lease_expires_at = CASE WHEN $3 IN ('completed', 'failed') THEN NULL ELSE lease_expires_at END,
		    updated_at = $7
		WHERE id = $1 AND tenant_id = $2 AND status = $8
		RETURNING `+jobColumns,
		req.JobID, req.TenantID, req.To, result, nullIfEmpty(req.Error), nullIfEmpty(req.ErrorKind), now, req.From(),
	)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.MapDBError(fmt.Errorf("transition job: %w", err))
	}
	return nil, r.explainMiss(ctx, req.TenantID, req.JobID, req.To)
}

// explainMiss tells a missing job apart from one in the wrong status after a conditional update matched nothing.
func (r *JobRepo) explainMiss(ctx context.Context, tenantID, id string, to model.JobStatus) error {
	var status model.JobStatus
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("load job status: %w", err))
	}
	return apperrors.InvalidTransitionf("job %s cannot move from %s to %s", id, status, to)
}

// IncrementRetry bumps retry_count of a processing job and records the classified failure kind.
func (r *JobRepo) IncrementRetry(ctx context.Context, tenantID, id, kind string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		UPDATE jobs
		SET retry_count = retry_count + 1,
		    error_kind = COALESCE($3, error_kind),
		    updated_at = $4
		WHERE id = $1 AND tenant_id = $2 AND status = 'processing'
		RETURNING retry_count`,
		id, tenantID, nullIfEmpty(kind), r.timeProvider.Now().UTC(),
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, r.explainMiss(ctx, tenantID, id, model.JobStatusProcessing)
	}
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("increment retry: %w", err))
	}
	return n, nil
}

// Stats returns the tenant's job counts per status.
func (r *JobRepo) Stats(ctx context.Context, tenantID string) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM jobs
  WHERE tenant_id = $1
  `, tenantID).Scan(
		&s.Pending,
		&s.Processing,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}
