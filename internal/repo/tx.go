package repo

import (
	"context"
	"fmt"

	"github.com/deixis/scriptconsole/internal/txn"
)

// tx stages writes until commit. A commit fails with txn.ErrConflict when
// any other write reached the repository after the transaction began.
type tx struct {
	repo     *Repository
	readOnly bool
	base     uint64
	writes   map[string]*record // nil value: removed
}

// Begin opens a transaction.
func (r *Repository) Begin(_ context.Context, readOnly bool) (txn.Tx, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &tx{
		repo:     r,
		readOnly: readOnly,
		base:     r.version,
		writes:   make(map[string]*record),
	}, nil
}

func (t *tx) Commit() error {
	if len(t.writes) == 0 {
		return nil
	}
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.version != t.base {
		return fmt.Errorf("repository changed during transaction: %w", txn.ErrConflict)
	}
	for ref, rec := range t.writes {
		if rec == nil {
			delete(r.nodes, ref)
		} else {
			r.nodes[ref] = rec
		}
	}
	r.version++
	t.writes = nil
	return nil
}

func (t *tx) Rollback() {
	t.writes = nil
}

func (r *Repository) txOf(ctx context.Context) *tx {
	t, ok := txn.FromContext(ctx)
	if !ok {
		return nil
	}
	if rt, ok := t.(*tx); ok && rt.repo == r && rt.writes != nil {
		return rt
	}
	return nil
}
