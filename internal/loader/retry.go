package loader

import (
	"github.com/roach88/arbor/internal/serial"
)

// RetryClass says how a queued entry should be replayed.
type RetryClass int

const (
	// RetryItem replays the single serialized item.
	RetryItem RetryClass = iota

	// RetryTree re-walks the whole subtree rooted at the entry.
	RetryTree

	// RetryPrerequisite replays the item once its sibling level has been
	// merged; a missing parent or template is expected to exist by then.
	RetryPrerequisite
)

// Entry is one deferred item.
type Entry struct {
	Ref      *serial.Ref
	Class    RetryClass
	Level    string
	Err      error
	Attempts int
}

// RetryQueue collects items that could not be merged on first contact.
// Not safe for concurrent use; a run owns its queue.
type RetryQueue struct {
	entries []Entry
}

// Add queues a failed item. Level is the logical path of the parent node
// whose sibling pass should trigger the replay; it is only meaningful for
// RetryPrerequisite entries.
func (q *RetryQueue) Add(ref *serial.Ref, class RetryClass, level string, err error) {
	q.entries = append(q.entries, Entry{Ref: ref, Class: class, Level: level, Err: err})
}

// Len reports how many entries are queued.
func (q *RetryQueue) Len() int {
	return len(q.entries)
}

// TakeLevel removes and returns the prerequisite entries queued for one
// level, preserving queue order. Other entries stay queued.
func (q *RetryQueue) TakeLevel(level string) []Entry {
	var taken []Entry
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.Class == RetryPrerequisite && e.Level == level {
			taken = append(taken, e)
		} else {
			kept = append(kept, e)
		}
	}
	// Zero the freed tail so dropped refs are not pinned.
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = Entry{}
	}
	q.entries = kept
	return taken
}

// Drain removes and returns every queued entry.
func (q *RetryQueue) Drain() []Entry {
	entries := q.entries
	q.entries = nil
	return entries
}
