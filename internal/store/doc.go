// Package store is the live content store adapter: a SQLite-backed,
// hierarchical, versioned item tree that the loader mutates until it matches
// the serialized tree.
//
// ARCHITECTURE:
//
// Items form a tree per partition. Each item has shared field values
// (language-independent) and versioned field values scoped to one
// language/revision. Templates are registered separately and define which
// fields an item may carry, whether each is shared, and its default value.
//
// Every mutation goes through a method on Store. A mutation that would not
// change anything is a no-op: it executes no write, appends nothing to the
// change journal, and notifies no handler. This is what makes a repeated
// sync run byte-identical and event-free.
//
// Change handlers receive notifications for actual mutations unless the
// store is quiet. Quiet() returns a scoped restore func: the loader holds
// quiet around its own writes so external listeners do not react to the
// sync's own feedback, and restores the prior state on every exit path.
// The journal is always appended regardless of quiet; it backs cache
// invalidation checks and tests, not external feedback.
//
// Item reads are cached per (partition, id). Every mutation invalidates the
// touched identity, because batch mutations run with notifications
// suppressed and nothing else would keep the cache honest mid-run.
package store
