package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves an open transaction from context, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the tenant-scoped connection in ctx and
// returns the transaction together with a derived context that carries it,
// so that repositories resolve their queries against the transaction.
// The caller owns commit/rollback.
func WithTx(ctx context.Context) (pgx.Tx, context.Context, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return nil, ctx, errors.New("no database connection in context")
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, ctx, fmt.Errorf("begin transaction: %w", err)
	}

	return tx, context.WithValue(ctx, DBTxKey, tx), nil
}

// InTx runs fn inside a transaction on the tenant-scoped connection in ctx.
// fn receives a context carrying the transaction; returning an error rolls
// back, returning nil commits.
func InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, txCtx, err := WithTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
