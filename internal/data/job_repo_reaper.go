package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/target/prepflow/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations. Two-arg pg_try_advisory_xact_lock(major, minor) keeps
// concurrent reaper instances from deleting the same batch.
const (
	advisoryLockReaperMajor  = 1000
	advisoryLockReaperDelete = 1
)

// DeleteTerminalBefore deletes up to limit completed or failed jobs last updated before cutoff. Step
// results go with them through the foreign key cascade.
func (r *JobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status IN ('completed', 'failed')
					  AND updated_at < $1
					ORDER BY updated_at
					LIMIT $2
				)
			`, cutoff.UTC(), limit)
			if err != nil {
				return fmt.Errorf("delete terminal jobs: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
