package loader

import (
	"errors"
	"fmt"

	"github.com/roach88/arbor/internal/item"
)

// ConsistencyError reports a violation of run-wide consistency, such as the
// same item identity appearing in two serialized files. It is the only
// error class that aborts a load run instead of being retried.
type ConsistencyError struct {
	ItemID item.ID
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation at %s (item=%s): %s", e.Path, e.ItemID, e.Reason)
}

// IsConsistencyError reports whether err is, or wraps, a consistency
// violation.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
