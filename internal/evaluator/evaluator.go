// Package evaluator provides the default evaluation strategy: serialized
// state wins. Updates are reconciled into the live store and orphaned live
// items are deleted.
package evaluator

import (
	"context"
	"log/slog"

	"github.com/roach88/arbor/internal/formatter"
	"github.com/roach88/arbor/internal/item"
	"github.com/roach88/arbor/internal/store"
)

// SyncEvaluator applies serialized state over live state.
type SyncEvaluator struct {
	store     *store.Store
	formatter *formatter.Formatter
	log       *slog.Logger

	// AllowMissingFields tolerates serialized fields the target template
	// does not define instead of failing the item.
	AllowMissingFields bool
}

// New creates a SyncEvaluator. A nil logger falls back to slog.Default.
func New(st *store.Store, f *formatter.Formatter, log *slog.Logger) *SyncEvaluator {
	if log == nil {
		log = slog.Default()
	}
	return &SyncEvaluator{store: st, formatter: f, log: log}
}

// EvaluateNewSerializedItem creates the live counterpart of a serialized
// item that has none yet.
func (e *SyncEvaluator) EvaluateNewSerializedItem(ctx context.Context, it *item.Item) (*store.Item, error) {
	return e.formatter.Reconcile(ctx, it, e.AllowMissingFields)
}

// EvaluateUpdate reconciles a serialized item over its existing live node.
// Serialized state wins unconditionally, so the existing snapshot does not
// change the outcome; the merge re-reads live state itself.
func (e *SyncEvaluator) EvaluateUpdate(ctx context.Context, it *item.Item, existing *store.Item) (*store.Item, error) {
	return e.formatter.Reconcile(ctx, it, e.AllowMissingFields)
}

// EvaluateOrphans deletes live items that have no serialized counterpart.
func (e *SyncEvaluator) EvaluateOrphans(ctx context.Context, partition string, orphans []*store.Item) error {
	for _, orphan := range orphans {
		if err := e.store.DeleteItem(ctx, partition, orphan.ID); err != nil {
			return err
		}
		e.log.Info("orphaned item deleted",
			"partition", partition,
			"item", orphan.ID,
			"name", orphan.Name,
		)
	}
	return nil
}
