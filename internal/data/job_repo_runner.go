package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/data/pgxutil"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// SQL used by ReserveNext to lease the next runnable job. Pending jobs and processing jobs whose lease
// lapsed (a crashed runner) are both runnable; the status column is never touched here.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE kind = ANY($1)
      AND status IN ('pending', 'processing')
      AND run_after <= $2
      AND (lease_expires_at IS NULL OR lease_expires_at < $2)
    ORDER BY run_after ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET lease_owner = $3,
      lease_expires_at = $4
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.tenant_id, j.kind, j.status, j.input, j.result, j.error, j.error_kind, j.retry_count,
    j.max_attempts, j.run_after, j.lease_owner, j.lease_expires_at, j.created_at, j.updated_at`

// ReserveNext leases the oldest runnable job of the given kinds.
func (r *JobRepo) ReserveNext(ctx context.Context, params core.ReserveParams) (*model.Job, error) {
	if params.Owner == "" || params.Lease <= 0 {
		return nil, apperrors.Validation("owner and a positive lease are required")
	}
	kinds := make([]string, 0, len(params.Kinds))
	for _, k := range params.Kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("invalid job kind: %s", k)
		}
		kinds = append(kinds, string(k))
	}
	if len(kinds) == 0 {
		for _, k := range model.AllJobKinds() {
			kinds = append(kinds, string(k))
		}
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			row := tx.QueryRow(ctx, reserveNextUpdateSQL, kinds, now, params.Owner, now.Add(params.Lease))
			j, err := scanJob(row)
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if err != nil {
				return fmt.Errorf("reserve job: %w", err)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// Heartbeat extends the lease of a job still held by owner.
func (r *JobRepo) Heartbeat(ctx context.Context, id, owner string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, errors.New("lease must be positive")
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $3
		WHERE id = $1 AND lease_owner = $2 AND status IN ('pending', 'processing')
	`, id, owner, r.timeProvider.Now().UTC().Add(lease))
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return n > 0, nil
}

// Defer releases the lease and makes the job runnable again at until.
func (r *JobRepo) Defer(ctx context.Context, id string, until time.Time) error {
	return r.clearLease(ctx, id, &until)
}

// Release clears the lease of a job.
func (r *JobRepo) Release(ctx context.Context, id string) error {
	return r.clearLease(ctx, id, nil)
}

func (r *JobRepo) clearLease(ctx context.Context, id string, runAfter *time.Time) error {
	var ra any
	if runAfter != nil {
		ra = runAfter.UTC()
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_owner = NULL,
		    lease_expires_at = NULL,
		    run_after = COALESCE($2, run_after)
		WHERE id = $1
	`, id, ra)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("release job: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFoundf("job %s not found", id)
	}
	return nil
}

// WaitForNotification waits for a PostgreSQL notification announcing a new job of kind.
func (r *JobRepo) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			r.logger.Debug("close listen connection", "error", cerr)
		}
	}()

	channel := notifyChannel(kind)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			r.logger.Debug("unlisten", "channel", channel, "error", execErr)
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
