package event

import "errors"

// Error taxonomy shared by the journal, policy engine, selector, and
// registry. Upstream store/retriever failures are propagated unwrapped so
// callers can tell infrastructure trouble from logical errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrConflict         = errors.New("conflict")
)
