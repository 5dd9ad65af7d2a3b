// Package postgres implements the workflow stores and the transaction manager on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/port"
)

type contextKey string

const txKey contextKey = "pgtx"

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

type txState struct {
	tx    pgx.Tx
	mu    sync.Mutex
	hooks []func(ctx context.Context)
}

// Querier is the subset of pgx shared by the pool and a transaction
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager implements port.TransactionManager on a pgx pool
type TxManager struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewTxManager creates a new transaction manager
func NewTxManager(pool *pgxpool.Pool, logger *zap.Logger) *TxManager {
	return &TxManager{pool: pool, logger: logger}
}

// WithTransaction runs fn in a transaction, joining one already carried by ctx
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if extractState(ctx) != nil {
		return fn(ctx)
	}

	state := &txState{}
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		state.tx = tx
		return fn(context.WithValue(ctx, txKey, state))
	})
	if err != nil {
		return err
	}

	state.mu.Lock()
	hooks := state.hooks
	state.hooks = nil
	state.mu.Unlock()
	for _, hook := range hooks {
		m.safeHook(ctx, hook)
	}
	return nil
}

// AfterCommit implements port.TransactionManager
func (m *TxManager) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if state := extractState(ctx); state != nil {
		state.mu.Lock()
		state.hooks = append(state.hooks, fn)
		state.mu.Unlock()
		return
	}
	m.safeHook(ctx, fn)
}

// InTransaction implements port.TransactionManager
func (m *TxManager) InTransaction(ctx context.Context) bool {
	return extractState(ctx) != nil
}

func (m *TxManager) safeHook(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("After-commit hook panicked", zap.Any("panic", p))
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

// querier returns the transaction carried by ctx, or the pool
func querier(ctx context.Context, pool *pgxpool.Pool) Querier {
	if state := extractState(ctx); state != nil {
		return state.tx
	}
	return pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func wrapCreate(err error, what string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", what, port.ErrDuplicate, err)
	}
	return fmt.Errorf("failed to create %s: %w", what, err)
}

func noLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

// Verify interface compliance
var _ port.TransactionManager = (*TxManager)(nil)
