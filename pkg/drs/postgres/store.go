// Package postgres implements [drs.Store] over PostgreSQL using pgx/v5,
// grounded on the same pool-and-migrate wiring used throughout the rest of
// the persistence layer.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenforge/tutorcore/pkg/drs"
)

var _ drs.Store = (*Store)(nil)

// Store is the PostgreSQL-backed durable record store. All methods are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, runs [Migrate], and returns a ready [Store].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("drs store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("drs store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewStoreFromPool wraps an already-migrated pool, useful for tests that
// share a pool across multiple store-like packages.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }
