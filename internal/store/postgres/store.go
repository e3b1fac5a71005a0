// Package postgres implements core.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DefaultTxTimeout bounds a transaction whose context has no deadline.
const DefaultTxTimeout = 15 * time.Minute

// Store is a core.Store backed by a connection pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

var (
	_ core.Store = (*Store)(nil)
	_ core.Tx    = (*tx)(nil)
)

// New returns a store using pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken through
// GetPersonForUpdate and the optimistic version check in UpdatePerson
// serialize concurrent writers of the same person.
func (s *Store) RunInTx(ctx context.Context, fn func(tx core.Tx) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTxTimeout)
		defer cancel()
	}

	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify("begin transaction", err)
	}
	defer pgTx.Rollback(ctx) // no-op after commit

	if err := fn(&tx{queries: queries{db: pgTx}}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

// Postgres error codes the registry distinguishes.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

const rollbackOfConstraint = "change_sources_rollback_of_key"

// classify turns driver errors into typed core errors where the caller can
// act on them. Anything else is returned wrapped with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := core.AsError(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == rollbackOfConstraint {
				return core.Conflict(op, core.CodeAlreadyRolledBack, "change source is already rolled back")
			}
			return core.Conflict(op, core.CodeDuplicateKey, "duplicate key: "+pgErr.ConstraintName)
		case pgSerializationFailure, pgDeadlockDetected:
			return core.Conflict(op, core.CodeConcurrentWrite, "concurrent write detected, retry the operation")
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// notFound maps pgx.ErrNoRows to a typed not-found error.
func notFound(op, resource, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NotFound(op, resource, id)
	}
	return classify(op, err)
}
