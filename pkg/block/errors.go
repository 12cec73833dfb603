package block

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoName is returned when a block is built without a name.
var ErrNoName = errors.New("block: name is required")

// BuildError ties a planning error to the block it came from.
type BuildError struct {
	Block string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("block %q: %v", e.Block, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// BatchError collects the errors of several blocks so that every problem
// is reported at once.
type BatchError struct {
	Errors []error
}

// Error returns the single error, or a count with the first error.
func (e *BatchError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "block: batch error with no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v (and %d more)", len(e.Errors), e.Errors[0], len(e.Errors)-1)
	}
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error { return e.Errors }

// ErrorList returns every error, one per line.
func (e *BatchError) ErrorList() string {
	var b strings.Builder
	for i, err := range e.Errors {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}
