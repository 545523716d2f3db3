package storage

import (
	"context"
	"fmt"
)

// stationLockClass namespaces station advisory locks away from other
// advisory-lock users of the same database (the migration runner holds its
// own constant key).
const stationLockClass = 7201

// stationLockKey derives the 64-bit advisory lock key for a station: the
// class sits in the high bits and the full station id is mixed in below, so
// no two stations can ever share a key. The two-argument lock form would
// truncate the id to 32 bits.
func stationLockKey(stationID int64) int64 {
	return (stationLockClass << 32) ^ stationID
}

// TryStationLock attempts a transaction-scoped advisory lock for one
// station without blocking. When acquired it returns a release func that
// must be called once the refresh work is done; the lock is held by an open
// transaction on a dedicated connection and released by rolling it back.
// When the lock is already held elsewhere, acquired is false and there is
// nothing to release: the concurrent holder is doing the work.
func (s *Store) TryStationLock(ctx context.Context, stationID int64) (release func(), acquired bool, err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("begin lock transaction: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`SELECT pg_try_advisory_xact_lock($1)`,
		stationLockKey(stationID)).Scan(&acquired); err != nil {
		_ = tx.Rollback(ctx)
		conn.Release()
		return nil, false, fmt.Errorf("try station lock: %w", err)
	}

	if !acquired {
		_ = tx.Rollback(ctx)
		conn.Release()
		return nil, false, nil
	}

	release = func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		conn.Release()
	}
	return release, true, nil
}
