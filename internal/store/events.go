package store

import (
	"fmt"

	"github.com/roach88/arbor/internal/item"
)

// Op categorizes a change to the live store.
type Op string

const (
	OpItemCreated    Op = "item-created"
	OpItemDeleted    Op = "item-deleted"
	OpItemMoved      Op = "item-moved"
	OpItemRenamed    Op = "item-renamed"
	OpBranchChanged  Op = "branch-changed"
	OpRetemplated    Op = "retemplated"
	OpTemplateStored Op = "template-stored"
	OpVersionAdded   Op = "version-added"
	OpVersionRemoved Op = "version-removed"
	OpFieldWritten   Op = "field-written"
	OpFieldReset     Op = "field-reset"
	OpBatchComplete  Op = "batch-complete"
)

// Change records one actual mutation. Writes that leave the store
// byte-identical never produce a Change.
type Change struct {
	Op        Op
	Partition string
	ItemID    item.ID
	FieldID   item.ID         // field ops only
	Version   item.VersionKey // version-scoped ops only
	Detail    string          // human-readable: new name, target parent, etc.
}

// String renders the change as one canonical line, stable across runs for
// identical mutations. Used by golden tests and verbose output.
func (c Change) String() string {
	out := fmt.Sprintf("%s partition=%s item=%s", c.Op, c.Partition, c.ItemID)
	if c.FieldID != (item.ID{}) {
		out += fmt.Sprintf(" field=%s", c.FieldID)
	}
	if c.Version.Language != "" {
		out += fmt.Sprintf(" version=%s", c.Version)
	}
	if c.Detail != "" {
		out += fmt.Sprintf(" detail=%q", c.Detail)
	}
	return out
}

// ChangeHandler observes store mutations. Handlers run synchronously on the
// mutating goroutine and are skipped while the store is quiet.
type ChangeHandler func(Change)

// OnChange registers a change handler.
func (s *Store) OnChange(h ChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Changes returns a copy of the journal of actual mutations recorded since
// the store was opened or the journal was last reset.
func (s *Store) Changes() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Change, len(s.journal))
	copy(out, s.journal)
	return out
}

// ResetJournal clears the change journal. Handlers are unaffected.
func (s *Store) ResetJournal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = nil
}

// record appends a change to the journal and notifies handlers unless the
// store is quiet. Must be called only after a write actually happened.
func (s *Store) record(c Change) {
	s.mu.Lock()
	s.journal = append(s.journal, c)
	var handlers []ChangeHandler
	if !s.quiet {
		handlers = make([]ChangeHandler, len(s.handlers))
		copy(handlers, s.handlers)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(c)
	}
}
