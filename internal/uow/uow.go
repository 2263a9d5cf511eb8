// Package uow provides a unit of work over a database transaction with
// post-commit hooks: functions registered during the transaction that run
// only after a successful commit, and are discarded on rollback. The enqueue
// path uses this to defer worker dispatch until the run record is durable.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// UnitOfWork wraps one transaction and its deferred post-commit hooks.
type UnitOfWork struct {
	tx     *sql.Tx
	hooks  []func(context.Context)
	logger *slog.Logger
}

// Tx exposes the underlying transaction for repository calls.
func (u *UnitOfWork) Tx() *sql.Tx {
	return u.tx
}

// OnCommit registers fn to run after the transaction commits. Hooks run in
// registration order. If the transaction rolls back, fn never runs.
func (u *UnitOfWork) OnCommit(fn func(context.Context)) {
	u.hooks = append(u.hooks, fn)
}

// Runner begins units of work on a database handle.
type Runner struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// NewRunner creates a Runner for the given handle.
func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	return &Runner{DB: db, Logger: logger}
}

// Do runs fn inside a transaction. If fn returns nil the transaction commits
// and the registered post-commit hooks run, in order, with the same context.
// Any error from fn rolls the transaction back and discards the hooks.
func (r *Runner) Do(ctx context.Context, fn func(*UnitOfWork) error) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	u := &UnitOfWork{tx: tx, logger: r.Logger}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()

	if err = fn(u); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	// The write is durable from here on: hook panics must not unwind into
	// the caller as if the commit had failed.
	for _, hook := range u.hooks {
		r.runHook(ctx, hook)
	}
	return nil
}

func (r *Runner) runHook(ctx context.Context, hook func(context.Context)) {
	defer func() {
		if rec := recover(); rec != nil && r.Logger != nil {
			r.Logger.ErrorContext(ctx, "post-commit hook panicked", "panic", rec)
		}
	}()
	hook(ctx)
}
