package storage

import "errors"

// Errors returned by index consistency checks and scope registration.
var (
	ErrIndexMismatch   = errors.New("storage: orderings disagree")
	ErrEmptyLevel      = errors.New("storage: empty level persisted")
	ErrCardinality     = errors.New("storage: cardinality does not match leaf count")
	ErrUnknownScope    = errors.New("storage: unknown scope")
	ErrScopeRegistered = errors.New("storage: scope already registered")
)
