// Package item defines the value types shared by the serialized-tree reader,
// the live store adapter, and the reconciliation engines.
//
// A serialized Item is the fully materialized desired state of one node:
// identity, location, template, shared fields, and per-language versions.
// Items are immutable once read; the serial package re-reads them fresh on
// every traversal.
//
// Template schemas describe which fields a structural type defines, whether
// each field is shared or versioned, and its default value. Template
// definitions travel inside the serialized tree as ordinary items carrying a
// Schema section, so a sync run can create types and the content that depends
// on them in one pass.
package item
