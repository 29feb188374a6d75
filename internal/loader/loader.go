package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/arbor/internal/formatter"
	"github.com/roach88/arbor/internal/item"
	"github.com/roach88/arbor/internal/predicate"
	"github.com/roach88/arbor/internal/serial"
	"github.com/roach88/arbor/internal/store"
)

// DefaultMaxDepth bounds the tree walk. Serialized trees deeper than this
// are almost certainly a cycle on disk.
const DefaultMaxDepth = 64

// Loader is the tree synchronization engine.
type Loader struct {
	source   *serial.Source
	store    *store.Store
	scope    predicate.Oracle
	eval     Evaluator
	log      *slog.Logger
	maxDepth int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithMaxDepth overrides the walk depth bound.
func WithMaxDepth(depth int) Option {
	return func(l *Loader) { l.maxDepth = depth }
}

// New creates a Loader over one serialized source.
func New(src *serial.Source, st *store.Store, scope predicate.Oracle, eval Evaluator, opts ...Option) *Loader {
	l := &Loader{
		source:   src,
		store:    st,
		scope:    scope,
		eval:     eval,
		log:      slog.Default(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// run carries the mutable state of one load run. admitted tracks the
// serialized files already past the consistency check, so a deferred replay
// of the same file is not mistaken for a second claim on its identity.
type run struct {
	retries   *RetryQueue
	checker   ConsistencyChecker
	admitted  map[string]bool
	processed int
}

func newRun(retries *RetryQueue, checker ConsistencyChecker) *run {
	return &run{retries: retries, checker: checker, admitted: make(map[string]bool)}
}

// result is the outcome of loading a single item.
type result struct {
	skipped bool
	reason  string
	live    *store.Item
}

// LoadAll synchronizes every serialized tree under the source root, calling
// onRootLoaded (when non-nil) after each root completes. Change feedback is
// suppressed for the whole batch; each touched partition gets a completion
// notification at the end.
func (l *Loader) LoadAll(ctx context.Context, retries *RetryQueue, checker ConsistencyChecker, onRootLoaded func(*serial.Ref)) error {
	if retries == nil {
		return errors.New("retry queue is required")
	}
	if checker == nil {
		return errors.New("consistency checker is required")
	}

	roots, err := l.source.Roots()
	if err != nil {
		return err
	}

	restore := l.store.Quiet()
	defer restore()

	r := newRun(retries, checker)
	partitions := make(map[string]bool)

	l.log.Info("loading all serialized trees", "root", l.source.Root(), "trees", len(roots))

	for _, root := range roots {
		partitions[root.Partition] = true
		if err := l.loadTree(ctx, r, root); err != nil {
			return err
		}
		if onRootLoaded != nil {
			onRootLoaded(root)
		}
	}

	return l.finish(ctx, r, partitions)
}

// LoadTree synchronizes the subtree rooted at one serialized item.
func (l *Loader) LoadTree(ctx context.Context, root *serial.Ref, retries *RetryQueue, checker ConsistencyChecker) error {
	if root == nil {
		return errors.New("root reference is required")
	}
	if retries == nil {
		return errors.New("retry queue is required")
	}
	if checker == nil {
		return errors.New("consistency checker is required")
	}

	restore := l.store.Quiet()
	defer restore()

	r := newRun(retries, checker)

	l.log.Info("loading tree", "partition", root.Partition, "path", root.Path)

	if err := l.loadTree(ctx, r, root); err != nil {
		return err
	}
	return l.finish(ctx, r, map[string]bool{root.Partition: true})
}

// LoadItem synchronizes a single serialized item, without descending into
// its children or touching its siblings.
func (l *Loader) LoadItem(ctx context.Context, ref *serial.Ref) error {
	restore := l.store.Quiet()
	defer restore()

	r := newRun(&RetryQueue{}, NewDuplicateIDChecker())
	res, err := l.doLoadItem(ctx, r, ref)
	if err != nil {
		return err
	}
	if res.skipped {
		l.log.Info("item excluded by scope",
			"partition", ref.Partition,
			"path", ref.Path,
			"reason", res.reason,
		)
		return nil
	}
	l.store.DeserializationComplete(ctx, ref.Partition)
	return nil
}

// loadTree merges the root item, then walks its subtree. An excluded root
// skips the whole tree with a single log line.
func (l *Loader) loadTree(ctx context.Context, r *run, root *serial.Ref) error {
	res, err := l.doLoadItem(ctx, r, root)
	if err != nil {
		if IsConsistencyError(err) {
			return err
		}
		// The whole subtree depends on the root; re-walk it in the final
		// replay pass.
		r.retries.Add(root, RetryTree, "", err)
		l.log.Warn("tree root failed, queued for retry",
			"partition", root.Partition,
			"path", root.Path,
			"error", err,
		)
		return nil
	}
	if res.skipped {
		l.log.Info("tree excluded by scope",
			"partition", root.Partition,
			"path", root.Path,
			"reason", res.reason,
		)
		return nil
	}

	return l.loadTreeRecursive(ctx, r, root, 0)
}

// loadTreeRecursive walks one already-merged node: merge its child level,
// then descend into children that have serialized children of their own.
func (l *Loader) loadTreeRecursive(ctx context.Context, r *run, node *serial.Ref, depth int) error {
	if depth > l.maxDepth {
		return fmt.Errorf("max tree depth %d exceeded at %s", l.maxDepth, node.Path)
	}

	if d := l.scope.Includes(node.Partition, node.Path); !d.Included {
		// The parent level already logged the skip at info.
		l.log.Debug("subtree excluded by scope",
			"partition", node.Partition,
			"path", node.Path,
			"reason", d.Reason,
		)
		return nil
	}

	if err := l.loadOneLevel(ctx, r, node, depth); err != nil {
		return err
	}

	children, err := node.Children(false)
	if err != nil {
		return err
	}
	for _, child := range orderSiblings(children) {
		if !child.HasChildren() {
			continue
		}
		// Structural subtrees were already descended during the level pass
		// or its replay.
		if item.IsTemplatesSegment(child.Path) {
			continue
		}
		if err := l.loadTreeRecursive(ctx, r, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// loadOneLevel merges the serialized children of one node, replays the
// level's deferred items, and removes orphaned live children. Structural
// subtrees among the children are walked to completion immediately, so
// their type definitions exist before regular siblings merge.
func (l *Loader) loadOneLevel(ctx context.Context, r *run, node *serial.Ref, depth int) error {
	children, err := node.Children(false)
	if err != nil {
		return err
	}

	serialized := make(map[item.ID]bool, len(children))
	for _, child := range children {
		serialized[child.ID] = true
	}

	for _, child := range orderSiblings(children) {
		res, err := l.doLoadItem(ctx, r, child)
		if err != nil {
			if err := l.deferOrAbort(r, child, node.Path, err); err != nil {
				return err
			}
			continue
		}
		if res.skipped {
			l.log.Info("item excluded by scope",
				"partition", child.Partition,
				"path", child.Path,
				"reason", res.reason,
			)
			continue
		}
		if item.IsTemplatesSegment(child.Path) && child.HasChildren() {
			if err := l.loadTreeRecursive(ctx, r, child, depth+1); err != nil {
				return err
			}
			continue
		}
		// A leaf serialized child is never descended into, so its live
		// children get their orphan verdict here: none of them has a
		// serialized counterpart.
		if !child.HasChildren() {
			if err := l.removeOrphans(ctx, r, child, nil); err != nil {
				return err
			}
		}
	}

	if err := l.replayLevel(ctx, r, node.Path); err != nil {
		return err
	}

	return l.removeOrphans(ctx, r, node, serialized)
}

// removeOrphans deletes live children of node that no serialized child
// claims. Out-of-scope children and template default records are left
// alone.
func (l *Loader) removeOrphans(ctx context.Context, r *run, node *serial.Ref, serialized map[item.ID]bool) error {
	liveNode, err := l.store.GetItem(ctx, node.Partition, node.ID)
	if err != nil {
		return err
	}
	if liveNode == nil {
		// Node itself is still deferred; its orphans get no verdict yet.
		return nil
	}

	liveChildren, err := l.store.Children(ctx, node.Partition, node.ID)
	if err != nil {
		return err
	}

	var orphans []*store.Item
	for _, lc := range liveChildren {
		if serialized[lc.ID] {
			continue
		}
		if item.IsDefaultsRecord(lc.Name) {
			continue
		}
		path := item.ChildPath(node.Path, lc.Name)
		if d := l.scope.Includes(node.Partition, path); !d.Included {
			continue
		}
		l.log.Info("orphaned item detected",
			"partition", node.Partition,
			"item", lc.ID,
			"path", path,
		)
		orphans = append(orphans, lc)
	}

	if len(orphans) == 0 {
		return nil
	}
	return l.eval.EvaluateOrphans(ctx, node.Partition, orphans)
}

// doLoadItem loads one serialized item: materialization, consistency check,
// scope check, then evaluation. The consistency check runs before the scope
// check so a duplicate identity is caught even when one of the claimants is
// excluded; each file is admitted at most once per run, so replays of a
// deferred file do not trip the checker.
func (l *Loader) doLoadItem(ctx context.Context, r *run, ref *serial.Ref) (result, error) {
	it, err := ref.Item()
	if err != nil {
		return result{}, err
	}
	if it == nil {
		l.log.Warn("serialized item vanished before load",
			"partition", ref.Partition,
			"path", ref.Path,
			"file", ref.File,
		)
		return result{skipped: true, reason: "file no longer exists"}, nil
	}

	if !r.admitted[ref.File] {
		if ok, reason := r.checker.IsConsistent(it); !ok {
			return result{}, &ConsistencyError{ItemID: it.ID, Path: it.Path, Reason: reason}
		}
		r.checker.AddProcessedItem(it)
		r.admitted[ref.File] = true
	}

	if d := l.scope.Includes(ref.Partition, ref.Path); !d.Included {
		return result{skipped: true, reason: d.Reason}, nil
	}

	existing, err := l.store.GetItem(ctx, it.Partition, it.ID)
	if err != nil {
		return result{}, err
	}

	var live *store.Item
	if existing == nil {
		live, err = l.eval.EvaluateNewSerializedItem(ctx, it)
	} else {
		live, err = l.eval.EvaluateUpdate(ctx, it, existing)
	}
	if err != nil {
		return result{}, err
	}
	if live == nil {
		live = existing
	}
	r.processed++

	l.log.Debug("item loaded", "partition", it.Partition, "path", it.Path, "item", it.ID)
	return result{live: live}, nil
}

// deferOrAbort queues a failed item for the appropriate retry, or returns
// the error when it must abort the run.
func (l *Loader) deferOrAbort(r *run, ref *serial.Ref, level string, err error) error {
	if IsConsistencyError(err) {
		return err
	}

	if formatter.IsStructuralPrerequisite(err) {
		r.retries.Add(ref, RetryPrerequisite, level, err)
		l.log.Debug("structural prerequisite missing, deferred to end of level",
			"partition", ref.Partition,
			"path", ref.Path,
			"error", err,
		)
		return nil
	}

	r.retries.Add(ref, RetryItem, "", err)
	l.log.Warn("item failed, queued for retry",
		"partition", ref.Partition,
		"path", ref.Path,
		"error", err,
	)
	return nil
}

// replayLevel retries the prerequisite entries deferred for one level.
func (l *Loader) replayLevel(ctx context.Context, r *run, level string) error {
	entries := r.retries.TakeLevel(level)
	if len(entries) == 0 {
		return nil
	}

	l.log.Debug("replaying deferred items for level", "level", level, "count", len(entries))

	for _, e := range entries {
		if err := l.retryItem(ctx, r, e.Ref); err != nil {
			if IsConsistencyError(err) {
				return err
			}
			r.retries.Add(e.Ref, RetryItem, "", err)
			l.log.Warn("deferred item failed again, queued for final retry",
				"partition", e.Ref.Partition,
				"path", e.Ref.Path,
				"error", err,
			)
		}
	}
	return nil
}

// retryItem replays one deferred item. A structural subtree that only merged
// now still needs its descendants walked, and a leaf that only merged now
// still needs its live children given an orphan verdict; neither happened
// during the regular level pass.
func (l *Loader) retryItem(ctx context.Context, r *run, ref *serial.Ref) error {
	res, err := l.doLoadItem(ctx, r, ref)
	if err != nil || res.skipped {
		return err
	}
	if item.IsTemplatesSegment(ref.Path) && ref.HasChildren() {
		return l.loadTreeRecursive(ctx, r, ref, 0)
	}
	if !ref.HasChildren() {
		return l.removeOrphans(ctx, r, ref, nil)
	}
	return nil
}

// finish runs the final replay pass, reports leftovers, and fires the
// per-partition completion notifications.
func (l *Loader) finish(ctx context.Context, r *run, partitions map[string]bool) error {
	if err := l.replayRetries(ctx, r); err != nil {
		return err
	}

	leftovers := r.retries.Drain()
	for _, e := range leftovers {
		l.log.Error("item failed to load",
			"partition", e.Ref.Partition,
			"path", e.Ref.Path,
			"error", e.Err,
		)
	}

	names := make([]string, 0, len(partitions))
	for p := range partitions {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		l.store.DeserializationComplete(ctx, p)
	}

	l.log.Info("load complete", "processed", r.processed, "failed", len(leftovers))

	if len(leftovers) > 0 {
		return fmt.Errorf("%d serialized items failed to load", len(leftovers))
	}
	return nil
}

// replayRetries gives everything still queued one more chance. Failures
// re-queue and surface as leftovers in finish; a consistency violation
// aborts even here.
func (l *Loader) replayRetries(ctx context.Context, r *run) error {
	entries := r.retries.Drain()
	if len(entries) == 0 {
		return nil
	}

	l.log.Info("replaying failed items", "count", len(entries))

	for _, e := range entries {
		var err error
		switch e.Class {
		case RetryTree:
			err = l.retryTree(ctx, r, e.Ref)
		default:
			err = l.retryItem(ctx, r, e.Ref)
		}
		if err != nil {
			if IsConsistencyError(err) {
				return err
			}
			q := e
			q.Attempts++
			q.Err = err
			r.retries.entries = append(r.retries.entries, q)
		}
	}
	return nil
}

// retryTree re-walks a subtree whose root failed on first contact.
func (l *Loader) retryTree(ctx context.Context, r *run, root *serial.Ref) error {
	res, err := l.doLoadItem(ctx, r, root)
	if err != nil {
		return err
	}
	if res.skipped {
		return nil
	}
	return l.loadTreeRecursive(ctx, r, root, 0)
}

// orderSiblings arranges one sibling level for merging: structural subtrees
// first, template default records last, everything else in between. Order
// within each group is preserved (file-name order).
func orderSiblings(refs []*serial.Ref) []*serial.Ref {
	if len(refs) < 2 {
		return refs
	}
	ordered := make([]*serial.Ref, 0, len(refs))
	for _, ref := range refs {
		if item.IsTemplatesSegment(ref.Path) {
			ordered = append(ordered, ref)
		}
	}
	for _, ref := range refs {
		if !item.IsTemplatesSegment(ref.Path) && !item.IsDefaultsRecord(ref.Name) {
			ordered = append(ordered, ref)
		}
	}
	for _, ref := range refs {
		if !item.IsTemplatesSegment(ref.Path) && item.IsDefaultsRecord(ref.Name) {
			ordered = append(ordered, ref)
		}
	}
	return ordered
}
