// Package repository provides the PostgreSQL-backed identity store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database access methods for user accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// PoolOptions sizes the connection pool. Postgres only serves account
// operations and identity cache misses, so the pool stays small and
// holds no idle connections by default.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// DefaultPoolOptions returns the pool sizing used when nothing is configured.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:        4,
		MinConns:        0,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// ErrInvalidPoolOptions is returned for a pool that could never hold a connection.
var ErrInvalidPoolOptions = errors.New("invalid connection pool options")

func poolConfig(databaseURL string, opts PoolOptions) (*pgxpool.Config, error) {
	if opts.MaxConns < 1 || opts.MinConns < 0 || opts.MinConns > opts.MaxConns {
		return nil, fmt.Errorf("%w: max %d, min %d", ErrInvalidPoolOptions, opts.MaxConns, opts.MinConns)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = opts.MaxConns
	config.MinConns = opts.MinConns
	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	return config, nil
}

// New creates a new Repository with a connection pool.
func New(ctx context.Context, databaseURL string, opts PoolOptions) (*Repository, error) {
	config, err := poolConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool.
// Use sparingly - prefer adding methods to Repository.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}
