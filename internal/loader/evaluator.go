package loader

import (
	"context"

	"github.com/roach88/arbor/internal/item"
	"github.com/roach88/arbor/internal/store"
)

// Evaluator decides how serialized state is applied to the live store. The
// loader finds the work and resolves the existing live node; the evaluator
// performs it. Either item path may return nil to mean "no replacement
// produced", in which case the loader keeps the pre-existing node.
type Evaluator interface {
	// EvaluateNewSerializedItem handles a serialized item with no live
	// counterpart, returning the live node it produced.
	EvaluateNewSerializedItem(ctx context.Context, it *item.Item) (*store.Item, error)

	// EvaluateUpdate reconciles a serialized item over its existing live
	// node and returns the resulting live snapshot.
	EvaluateUpdate(ctx context.Context, it *item.Item, existing *store.Item) (*store.Item, error)

	// EvaluateOrphans handles live items that have no serialized
	// counterpart under their parent.
	EvaluateOrphans(ctx context.Context, partition string, orphans []*store.Item) error
}
