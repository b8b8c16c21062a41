package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is the query surface shared by pgxpool.Pool, pgx.Tx and Manager.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is a Conn that owns connections and must be closed.
type Pool interface {
	Conn
	Close()
}

// Dialer opens a new pool against the backing store.
type Dialer interface {
	Dial(ctx context.Context) (Pool, error)
}

// PostgresDialer opens pgx pools for a DSN.
type PostgresDialer struct {
	DSN      string
	MaxConns int32
}

// Dial creates a new PostgreSQL connection pool. The pool connects lazily;
// Manager verifies it with a read before reporting it usable.
func (d PostgresDialer) Dial(ctx context.Context) (Pool, error) {
	config, err := pgxpool.ParseConfig(d.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if d.MaxConns > 0 {
		config.MaxConns = d.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}
	return pool, nil
}
