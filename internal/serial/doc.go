// Package serial reads the on-disk serialized tree: the durable description
// of desired state that the loader reconciles the live store against.
//
// LAYOUT:
//
// The tree mirrors logical item paths. Each item is one YAML file; its
// children live in a sibling directory with the same base name:
//
//	<root>/content.yaml
//	<root>/content/home.yaml
//	<root>/content/home/about.yaml
//
// A reference (Ref) knows an item's identity, logical path, and partition
// from a cheap header parse. Full materialization (Item) re-reads the file
// on every call - nothing is cached across traversals, so a run always sees
// the current on-disk state.
//
// Child enumeration is ordered by file name for deterministic walks.
package serial
