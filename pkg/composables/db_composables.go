package composables

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNoTx   = errors.New("no transaction found in context")
	ErrNoPool = errors.New("no database pool found in context")
)

type ctxKey string

const (
	txKey     ctxKey = "tx"
	poolKey   ctxKey = "pool"
	loggerKey ctxKey = "logger"
	hooksKey  ctxKey = "commit_hooks"
)

// Tx is the query surface shared by pgx.Tx and *pgxpool.Pool.
type Tx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// UseTx returns the transaction in ctx, falling back to the pool so that
// read paths can run without one.
func UseTx(ctx context.Context) (Tx, error) {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok && tx != nil {
		return tx, nil
	}
	pool, err := UsePool(ctx)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func HasTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return ok && tx != nil
}

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, poolKey, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, ok := ctx.Value(poolKey).(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, ErrNoPool
	}
	return pool, nil
}

// InTx runs fn inside a transaction. When ctx already carries one, fn joins it
// and the outer owner decides on commit.
func InTx(ctx context.Context, fn func(context.Context) error) error {
	if HasTx(ctx) {
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx, runHooks := WithCommitHooks(WithTx(ctx, tx))
	if err := fn(txCtx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			return errors.Join(err, rErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	runHooks()
	return nil
}

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

// WithCommitHooks marks ctx as running inside a transaction owned by the
// caller. The returned function runs every hook registered through
// AfterCommit, in order, and must only be called once the transaction has
// committed.
func WithCommitHooks(ctx context.Context) (context.Context, func()) {
	hooks := &commitHooks{}
	run := func() {
		hooks.mu.Lock()
		fns := hooks.fns
		hooks.fns = nil
		hooks.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
	return context.WithValue(ctx, hooksKey, hooks), run
}

// AfterCommit queues fn until the outermost transaction in ctx commits. It
// reports false when ctx carries no commit scope. A rollback discards fn.
func AfterCommit(ctx context.Context, fn func()) bool {
	hooks, ok := ctx.Value(hooksKey).(*commitHooks)
	if !ok || hooks == nil {
		return false
	}
	hooks.mu.Lock()
	hooks.fns = append(hooks.fns, fn)
	hooks.mu.Unlock()
	return true
}

// InCommitScope reports whether ctx runs inside a transaction that has not
// committed yet.
func InCommitScope(ctx context.Context) bool {
	hooks, ok := ctx.Value(hooksKey).(*commitHooks)
	return ok && hooks != nil
}
