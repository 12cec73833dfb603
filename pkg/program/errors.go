package program

import "errors"

var (
	// ErrInvalidProgram is returned for documents that do not decode.
	ErrInvalidProgram = errors.New("program: invalid document")

	// ErrInvalidMatch is returned for a match entry that sets no provider
	// or more than one.
	ErrInvalidMatch = errors.New("program: match entry must set exactly one provider")

	// ErrInvalidAction is returned for an action entry that sets no action
	// or more than one.
	ErrInvalidAction = errors.New("program: action entry must set exactly one action")

	// ErrNotVariable is returned where only variables are allowed.
	ErrNotVariable = errors.New("program: expected a variable")
)
