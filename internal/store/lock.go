package store

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// syncLockKey is the advisory-lock key shared by every sync entry point
// (CLI scripts and the API trigger) so overlapping runs exclude each other
// across processes.
const syncLockKey = 0x46494E53 // "FINS"

var ErrSyncAlreadyRunning = errors.New("a sync run is already in progress")

type lockStore struct {
	db *sqlx.DB
}

// AcquireSyncLock takes a session-level Postgres advisory lock on a
// dedicated connection. The returned release func unlocks and returns the
// connection to the pool; the lock also dies with the session if the
// process crashes.
func (s *lockStore) AcquireSyncLock(ctx context.Context) (func(), error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}

	var acquired bool
	if err := conn.GetContext(ctx, &acquired,
		`SELECT pg_try_advisory_lock($1)`, syncLockKey); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !acquired {
		_ = conn.Close()
		return nil, ErrSyncAlreadyRunning
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, syncLockKey)
		_ = conn.Close()
	}
	return release, nil
}
