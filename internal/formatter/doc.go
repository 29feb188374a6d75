// Package formatter reconciles one serialized item description into one
// live item.
//
// Reconcile works in two phases. Structural changes come first: create the
// item if it is missing, move it if its parent changed, retemplate it if
// its type changed, rename it if its name or branch changed. Field patching
// follows on a freshly re-read item, because structural operations can
// stale a cached snapshot: shared fields, then each serialized version,
// then removal of live versions absent from the desired state.
//
// Patching is idempotent. A text field is only written when the live bytes
// differ; binary content is always rewritten but still records no change
// when the bytes match. Fields the scope excludes are never read or
// written. Fields the target template does not define fail the item unless
// the caller opted into tolerating schema drift.
//
// A failure while creating a brand new item deletes the partial item
// before surfacing the error - a failed create never leaves a half-built
// node behind.
package formatter
