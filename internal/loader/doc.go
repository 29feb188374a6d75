// Package loader walks serialized trees and drives them into the live
// store.
//
// ARCHITECTURE
//
// The walk is level by level. For each node the loader merges the node's
// serialized children in sibling order - structural subtrees first (walked
// to completion so their type definitions exist before anything needs
// them), then regular items, then template default records - and compares
// the node's live children against the serialized set to find orphans,
// which the evaluator removes. Live children of a serialized leaf get the
// same verdict, since the walk never descends below a leaf. Each item is
// checked for run-wide consistency before anything else, then dispatched
// to the evaluator's new-item or update path depending on whether a live
// counterpart exists. Items whose structural prerequisites (parent or
// template) are not live yet are deferred and replayed once the rest of
// their level has been merged, which resolves ordinary sibling ordering
// problems without a fixed global order; a structural subtree that only
// merges on replay is descended at that point.
//
// Whatever is still failing after its level gets one more chance in a
// final replay pass at the end of the run. Items left over after that are
// logged and reported as a load failure. Only a consistency violation -
// the same identity appearing twice in one run - aborts a run outright.
//
// Change feedback is suppressed for the duration of a load: the store's
// journal still records every mutation, but handlers only hear the final
// batch-complete notification per partition.
package loader
