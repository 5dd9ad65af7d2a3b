package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/port"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// txState is the unit of work carried in a context
type txState struct {
	tx    *sql.Tx
	mu    sync.Mutex
	hooks []func(ctx context.Context)
}

// DB wraps sql.DB and implements TransactionManager
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction runs fn inside a transaction. A transaction already carried by
// ctx is reused; AfterCommit hooks run once the outermost call commits.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if state := extractState(ctx); state != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	state := &txState{tx: tx}
	txCtx := context.WithValue(ctx, txKey, state)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.runHooks(ctx, state)
	return nil
}

// AfterCommit implements port.TransactionManager
func (db *DB) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if state := extractState(ctx); state != nil {
		state.mu.Lock()
		state.hooks = append(state.hooks, fn)
		state.mu.Unlock()
		return
	}
	db.safeHook(ctx, fn)
}

// InTransaction implements port.TransactionManager
func (db *DB) InTransaction(ctx context.Context) bool {
	return extractState(ctx) != nil
}

func (db *DB) runHooks(ctx context.Context, state *txState) {
	state.mu.Lock()
	hooks := state.hooks
	state.hooks = nil
	state.mu.Unlock()

	for _, hook := range hooks {
		db.safeHook(ctx, hook)
	}
}

// safeHook keeps a failing hook from surfacing after the data is committed
func (db *DB) safeHook(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if p := recover(); p != nil {
			db.logger.Error("After-commit hook panicked", zap.Any("panic", p))
		}
	}()
	fn(ctx)
}

func extractState(ctx context.Context) *txState {
	if state, ok := ctx.Value(txKey).(*txState); ok {
		return state
	}
	return nil
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction carried by ctx, or fallback when there is none
func GetExecutor(ctx context.Context, fallback *sql.DB) Executor {
	if state := extractState(ctx); state != nil {
		return state.tx
	}
	return fallback
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
