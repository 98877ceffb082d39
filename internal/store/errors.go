package store

import "errors"

// Sentinel errors for the capture store. Callers match with errors.Is.
var (
	// ErrNotFound indicates a missing hash, call, snapshot, session, or
	// identity. Also returned for hashes that have been garbage collected.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates a call lifecycle violation, such as closing
	// a call twice, appending a snapshot to a closed call, or deleting an
	// already-deleted call.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidNesting indicates a call-tree invariant violation: a child
	// call whose time interval cannot be encompassed by its parent's, or a
	// parent that has been deleted.
	ErrInvalidNesting = errors.New("invalid nesting")
)
