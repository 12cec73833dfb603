package join

import "errors"

var (
	// ErrStratificationCycle is returned when provider levels do not
	// settle, which happens when an aggregate depends on its own output.
	ErrStratificationCycle = errors.New("join: stratification cycle")
	// ErrUnsupported marks an operation a provider can never perform. The
	// join never asks for it unless the plan is broken.
	ErrUnsupported = errors.New("join: unsupported provider operation")
)
