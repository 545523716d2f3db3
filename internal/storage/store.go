// Package storage implements the PostgreSQL persistence layer on pgx.
//
// All ingestion writes are conflict-aware upserts: station identity hangs on
// the unique external id, rivers on their unique name, and measurements on
// the (ts, station_id) composite key. Correctness under concurrent writers
// is enforced by those constraints, not by application-level locking.
package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with the queries the service needs.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a Store to the given database URL.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool (used by integration tests).
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
