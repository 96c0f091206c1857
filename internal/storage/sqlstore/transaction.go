package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/cutover/internal/storage"
)

// Verify queries implements storage.Transaction at compile time
var _ storage.Transaction = (*queries)(nil)

// beginMaxElapsed bounds how long opening a transaction may retry on lock
// contention or a dropped connection.
const beginMaxElapsed = 10 * time.Second

func newBeginBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = beginMaxElapsed
	return bo
}

// withRetry runs op, retrying transient errors with exponential backoff.
// Non-retryable errors stop immediately.
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newBeginBackoff(), ctx))
}

// maxTransactionRetries bounds how often a MySQL transaction chosen as a
// deadlock victim is run again.
const maxTransactionRetries = 5

// RunInTransaction executes fn within a database transaction.
//
// SQLite transactions begin IMMEDIATE so the write lock is taken up front.
// MySQL transactions run at READ COMMITTED so reads made after LockPlan or
// LockScope see rows committed by the writer that held the lock; a
// transaction the server rolls back as a deadlock victim is run again with
// backoff. Either way:
//  1. Acquire a dedicated connection from the pool
//  2. Begin with retry on busy/transient errors
//  3. Run fn against a Transaction bound to that connection
//  4. COMMIT on nil, ROLLBACK on error or panic
//
// fn may therefore run more than once on MySQL and must only assign the
// values it produces, not accumulate them.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	if s.backend != BackendMySQL {
		return s.runTransactionOnce(ctx, fn)
	}
	bo := backoff.WithMaxRetries(newBeginBackoff(), maxTransactionRetries)
	return backoff.Retry(func() error {
		err := s.runTransactionOnce(ctx, fn)
		if err != nil && !isDeadlockError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

// runTransactionOnce executes a single transaction attempt. A panicking fn
// is rolled back by the deferred ROLLBACK and the panic keeps unwinding.
func (s *Store) runTransactionOnce(ctx context.Context, fn func(tx storage.Transaction) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	mysqlTx := s.backend == BackendMySQL
	if err := withRetry(ctx, func() error {
		if !mysqlTx {
			_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
			return err
		}
		// Applies to the next transaction on this connection only.
		if _, err := conn.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL READ COMMITTED"); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, "START TRANSACTION")
		return err
	}); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even if ctx is cancelled
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&queries{q: conn, rowLocks: mysqlTx}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// querier is satisfied by *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements storage.Queries over a querier, so the same code
// serves autocommit calls on the Store and calls inside a transaction.
type queries struct {
	q querier
	// rowLocks is set inside MySQL transactions, where LockPlan and
	// LockScope take row locks. SQLite's IMMEDIATE transactions already
	// hold the database write lock.
	rowLocks bool
}
