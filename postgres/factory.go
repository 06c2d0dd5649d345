// Package postgres adapts pgx connections to the pgpool core.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"

	"github.com/coachpo/pgpool"
	"github.com/coachpo/pgpool/errs"
)

const readyMaxInterval = 5 * time.Second

// NewFactory validates the DSN once and returns a factory that dials one pgx
// connection per invocation. *pgx.Conn satisfies pgpool.Conn directly.
func NewFactory(dsn string) (pgpool.Factory, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errs.New("postgres", errs.CodeInvalid,
			errs.WithMessage("parse dsn"), errs.WithCause(err))
	}
	return func(ctx context.Context) (pgpool.Conn, error) {
		conn, err := pgx.ConnectConfig(ctx, connCfg.Copy())
		if err != nil {
			return nil, errs.New("postgres", errs.CodeConnection,
				errs.WithMessage("connect"),
				errs.WithRemediation("verify the DSN and database availability"),
				errs.WithCause(err))
		}
		return conn, nil
	}, nil
}

// NewPool builds an eagerly filled pool of pgx connections against dsn.
func NewPool(ctx context.Context, name, dsn string, opts ...pgpool.Option) (*pgpool.Pool, error) {
	factory, err := NewFactory(dsn)
	if err != nil {
		return nil, err
	}
	return pgpool.New(ctx, name, factory, opts...)
}

// Conn unwraps the pgx connection held by a lease. It panics when the lease
// was not produced by a pool built through this package.
func Conn(l *pgpool.Lease) *pgx.Conn {
	conn, ok := l.Conn().(*pgx.Conn)
	if !ok {
		panic(fmt.Sprintf("postgres: lease holds %T, not *pgx.Conn", l.Conn()))
	}
	return conn
}

// WaitReady blocks until the database behind dsn accepts connections,
// retrying with exponential backoff, or until ctx ends. Pool construction
// itself never retries; callers use this before building the pool.
func WaitReady(ctx context.Context, dsn string) error {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return errs.New("postgres", errs.CodeInvalid,
			errs.WithMessage("parse dsn"), errs.WithCause(err))
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = readyMaxInterval

	for {
		select {
		case <-ctx.Done():
			return errs.New("postgres", errs.CodeTimeout,
				errs.WithMessage("database not ready"), errs.WithCause(ctx.Err()))
		default:
		}

		conn, dialErr := pgx.ConnectConfig(ctx, connCfg.Copy())
		if dialErr == nil {
			pingErr := conn.Ping(ctx)
			_ = conn.Close(ctx)
			if pingErr == nil {
				return nil
			}
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = readyMaxInterval
		}
		select {
		case <-ctx.Done():
			return errs.New("postgres", errs.CodeTimeout,
				errs.WithMessage("database not ready"), errs.WithCause(ctx.Err()))
		case <-time.After(sleep):
		}
	}
}
