package formatter

import (
	"errors"
	"fmt"

	"github.com/roach88/arbor/internal/item"
)

// MergeErrorCode categorizes reconciliation failures.
type MergeErrorCode string

const (
	// ErrCodeParentNotFound indicates the serialized parent of a new item
	// does not resolve to a live item yet.
	ErrCodeParentNotFound MergeErrorCode = "PARENT_NOT_FOUND"

	// ErrCodeMovedParentNotFound indicates an existing live item whose
	// serialized parent is unresolvable - it moved to a parent that is
	// still missing. Distinct from the create case.
	ErrCodeMovedParentNotFound MergeErrorCode = "MOVED_PARENT_NOT_FOUND"

	// ErrCodeTemplateNotFound indicates the serialized template identity
	// has no definition in the live store yet.
	ErrCodeTemplateNotFound MergeErrorCode = "TEMPLATE_NOT_FOUND"

	// ErrCodeMissingTemplateField indicates a serialized field the target
	// template does not define, with missing-field tolerance off.
	ErrCodeMissingTemplateField MergeErrorCode = "MISSING_TEMPLATE_FIELD"

	// ErrCodeReconcileFailed wraps any other reconciliation failure.
	ErrCodeReconcileFailed MergeErrorCode = "RECONCILE_FAILED"
)

// MergeError is a reconciliation failure with enough structure for callers
// to pattern-match on the kind instead of catching concrete types.
type MergeError struct {
	Code     MergeErrorCode
	ItemID   item.ID
	ParentID item.ID
	Path     string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	msg := fmt.Sprintf("%s: %s (item=%s, path=%s)", e.Code, e.Message, e.ItemID, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *MergeError) Unwrap() error {
	return e.Err
}

// IsStructuralPrerequisite reports whether the error denotes a missing
// parent or template - a failure expected to resolve once a sibling
// materializes the prerequisite, so the loader defers it instead of
// counting it as a hard failure.
func IsStructuralPrerequisite(err error) bool {
	var me *MergeError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Code {
	case ErrCodeParentNotFound, ErrCodeMovedParentNotFound, ErrCodeTemplateNotFound:
		return true
	}
	return false
}

// IsMissingTemplateField reports whether the error is a schema-drift
// failure. Uses errors.As to handle wrapped errors.
func IsMissingTemplateField(err error) bool {
	var me *MergeError
	return errors.As(err, &me) && me.Code == ErrCodeMissingTemplateField
}

// newMergeError builds a MergeError for the serialized item being
// reconciled; the failed item's path is always included.
func newMergeError(code MergeErrorCode, it *item.Item, message string, cause error) *MergeError {
	return &MergeError{
		Code:     code,
		ItemID:   it.ID,
		ParentID: it.Parent,
		Path:     it.Path,
		Message:  message,
		Err:      cause,
	}
}

// wrapFailure wraps an arbitrary error as a generic reconciliation failure,
// leaving existing MergeErrors untouched.
func wrapFailure(it *item.Item, err error) error {
	var me *MergeError
	if errors.As(err, &me) {
		return err
	}
	return newMergeError(ErrCodeReconcileFailed, it, "reconciliation failed", err)
}
