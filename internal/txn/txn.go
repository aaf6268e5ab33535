// Package txn runs units of work against a transactional resource,
// retrying work whose commit lost a race with a concurrent writer.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Defaults applied when Manager fields are zero.
const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 10 * time.Millisecond
)

var (
	// ErrConflict marks a transient failure. Work failing with it is
	// retried in a fresh transaction.
	ErrConflict = errors.New("transaction conflict")

	// ErrReadOnly is returned for a write inside a read-only transaction.
	ErrReadOnly = errors.New("write in read-only transaction")
)

// Tx is an open transaction.
type Tx interface {
	Commit() error
	Rollback()
}

// Resource opens transactions.
type Resource interface {
	Begin(ctx context.Context, readOnly bool) (Tx, error)
}

// Manager runs work in transactions opened on Resource.
type Manager struct {
	Resource    Resource
	MaxAttempts int
	Backoff     time.Duration // multiplied by the attempt number
	Logger      *slog.Logger
}

type txKey struct{}

// FromContext returns the transaction work is running in.
func FromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok
}

// RunInTransaction runs work in a new transaction and commits it. Work that
// fails with ErrConflict, or whose commit does, is run again up to
// MaxAttempts times. When ctx already carries a transaction, work joins it
// and is run once.
func (m *Manager) RunInTransaction(ctx context.Context, readOnly bool, work func(ctx context.Context) error) error {
	if _, ok := FromContext(ctx); ok {
		return work(ctx)
	}

	maxAttempts := m.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	backoff := m.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("tx_id", uuid.New().String(), "read_only", readOnly)

	for attempt := 1; ; attempt++ {
		err := m.runOnce(ctx, readOnly, work)
		if err == nil {
			if attempt > 1 {
				logger.Debug("transaction committed after retry", "attempts", attempt)
			}
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		logger.Debug("retrying transaction", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
}

func (m *Manager) runOnce(ctx context.Context, readOnly bool, work func(ctx context.Context) error) error {
	if m.Resource == nil {
		return work(ctx)
	}
	tx, err := m.Resource.Begin(ctx, readOnly)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := work(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	committed = true
	return nil
}
