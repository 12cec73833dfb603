package runtime

import "errors"

// Errors returned by the evaluation driver.
var (
	// ErrFixpointLimit is returned in strict mode when a fixpoint is still
	// changing after the configured number of rounds.
	ErrFixpointLimit = errors.New("runtime: evaluation failed to fixpoint")

	// ErrDatabaseRegistered is returned when a database name is reused.
	ErrDatabaseRegistered = errors.New("runtime: database name already registered")

	// ErrUnknownDatabase is returned for names no database is registered
	// under.
	ErrUnknownDatabase = errors.New("runtime: unknown database")

	// ErrNotRegistered is returned when a database is detached from an
	// evaluation it does not belong to.
	ErrNotRegistered = errors.New("runtime: evaluation is not registered with this database")
)
