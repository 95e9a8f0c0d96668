package postgres

import (
	"context"
	"time"
)

// FailInterrupted marks scans left pending or running by a previous process
// as failed. Work queued in memory does not survive a restart, so those scans
// would otherwise never reach a terminal state.
func (db *DB) FailInterrupted(ctx context.Context, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := db.Pool.Exec(ctx, `
		UPDATE scans SET status = 'failed', progress = 0, end_time = $1
		WHERE status IN ('pending', 'running')
	`, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
