package providers

import "errors"

var (
	ErrUnknownOp = errors.New("providers: unknown function")
	ErrArity     = errors.New("providers: wrong number of arguments")
)
