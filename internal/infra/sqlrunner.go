package infra

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor defines the contract required by storage-backed components for
// executing SQL queries.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// SQLRunner wraps a pgx pool and logs every statement it executes.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	tag, err := r.Pool.Exec(ctx, query, args...)
	if err != nil {
		r.Logger.Error().Err(err).Msg("sql exec")
		return tag, err
	}
	r.Logger.Debug().Str("command", tag.String()).Msg("sql exec ok")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	r.Logger.Debug().Msg("sql query_row")
	return r.Pool.QueryRow(ctx, query, args...)
}

var _ SQLExecutor = (*SQLRunner)(nil)
