package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool and pgx.Tx used by the PG stores.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxKey struct{}

// db returns the transaction carried by ctx, or pool when there is none.
func db(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(pgTxKey{}).(pgx.Tx)
	return ok
}

// PGTxManager implements TxManager with read-committed PostgreSQL transactions.
type PGTxManager struct {
	pool *pgxpool.Pool
}

// NewPGTxManager creates a PGTxManager on pool.
func NewPGTxManager(pool *pgxpool.Pool) *PGTxManager {
	return &PGTxManager{pool: pool}
}

// RunInTx begins a transaction, injects it into the context passed to fn and
// commits when fn returns nil. Nested calls join the outer transaction.
func (m *PGTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isDuplicateError reports a unique_violation.
func isDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// constraintName returns the violated constraint, or "" for non-pg errors.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// filterQuery accumulates WHERE clauses with positional arguments.
type filterQuery struct {
	sql  string
	args []any
}

func (q *filterQuery) where(clause string, arg any) {
	q.args = append(q.args, arg)
	q.sql += fmt.Sprintf(" AND "+clause, len(q.args))
}

// page appends ORDER BY and LIMIT/OFFSET.
func (q *filterQuery) page(orderBy string, p Pagination) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	q.args = append(q.args, limit, p.Offset)
	q.sql += fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", orderBy, len(q.args)-1, len(q.args))
}

// collect scans every row with scan.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// one maps pgx.ErrNoRows to ErrNotFound.
func one[T any](row pgx.Row, scan func(pgx.Row) (*T, error)) (*T, error) {
	v, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}
