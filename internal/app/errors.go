package app

import "errors"

// Caller-error taxonomy. The HTTP layer maps these onto status codes; any
// other error from an operation is transient and safe to retry.
var (
	// ErrNotFound indicates the referenced book or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate active request, an exhausted copy
	// count, or a user at the active-borrow limit.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState indicates a transition attempted from the wrong status.
	ErrInvalidState = errors.New("invalid state")
)
