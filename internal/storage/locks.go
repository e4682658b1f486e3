package db

import (
	"context"
	"fmt"
)

// Advisory lock IDs used outside migrations.
const (
	BatchLockID int64 = 2001
)

// TryAcquireAdvisoryLock takes a session-level advisory lock on a dedicated
// connection. The returned release func unlocks and returns the connection.
func (db *DB) TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (bool, func(), error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool

	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Release()

		return false, nil, fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return false, nil, nil
	}

	release := func() {
		//nolint:errcheck,contextcheck // unlock is best-effort, lock dies with the session anyway
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID)
		conn.Release()
	}

	return true, release, nil
}
