package loader

import (
	"fmt"

	"github.com/roach88/arbor/internal/item"
)

// ConsistencyChecker validates each item against everything the current run
// has already processed. A failed check aborts the run.
type ConsistencyChecker interface {
	// IsConsistent reports whether the item may be processed; when it may
	// not, the reason describes the conflict.
	IsConsistent(it *item.Item) (ok bool, reason string)

	// AddProcessedItem records a successfully processed item.
	AddProcessedItem(it *item.Item)
}

// DuplicateIDChecker rejects any identity seen more than once in a run.
// Two serialized files claiming the same ID would otherwise silently
// overwrite each other's merge.
type DuplicateIDChecker struct {
	seen map[item.ID]string
}

// NewDuplicateIDChecker creates an empty checker for one run.
func NewDuplicateIDChecker() *DuplicateIDChecker {
	return &DuplicateIDChecker{seen: make(map[item.ID]string)}
}

// IsConsistent implements ConsistencyChecker.
func (c *DuplicateIDChecker) IsConsistent(it *item.Item) (bool, string) {
	if prior, ok := c.seen[it.ID]; ok {
		return false, fmt.Sprintf("duplicate id: already processed at %s", prior)
	}
	return true, ""
}

// AddProcessedItem implements ConsistencyChecker.
func (c *DuplicateIDChecker) AddProcessedItem(it *item.Item) {
	c.seen[it.ID] = it.Path
}
