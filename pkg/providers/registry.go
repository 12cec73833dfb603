// Package providers is the function library available to blocks: math,
// comparison, logic, string, conversion and id generation constraints, plus
// the aggregates (sum, count, average, sort).
//
// Functions are registered by name in init and instantiated per use with
// NewConstraint. Arity is checked when the constraint is built, so a block
// that calls a function with the wrong number of arguments fails to build
// instead of silently matching nothing.
package providers

import (
	"fmt"
	"slices"

	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

// Factory creates the function for one constraint instance. id is the
// constraint's identifier and returns the number of return positions.
type Factory func(id string, returns int) join.Function

// Definition describes a registered function. A negative MaxArgs means
// unbounded.
type Definition struct {
	Name       string
	MinArgs    int
	MaxArgs    int
	MinReturns int
	MaxReturns int
	New        Factory
}

var registry = make(map[string]Definition)

// Register adds or replaces a function definition.
func Register(d Definition) {
	registry[d.Name] = d
}

// Get returns the definition registered under name.
func Get(name string) (Definition, bool) {
	d, ok := registry[name]
	return d, ok
}

// Names lists every registered function and aggregate in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry)+len(aggregateOps)+1)
	for n := range registry {
		names = append(names, n)
	}
	for n := range aggregateOps {
		names = append(names, n)
	}
	names = append(names, SortOp)
	slices.Sort(names)
	return names
}

// NewConstraint instantiates the function name over args and returns.
func NewConstraint(id, name string, args, returns []join.Term) (*join.Constraint, error) {
	d, ok := registry[name]
	if !ok {
		if _, agg := aggregateOps[name]; agg || name == SortOp {
			return nil, fmt.Errorf("%w: %q must be used as an aggregate", ErrUnknownOp, name)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, name)
	}
	if len(args) < d.MinArgs || (d.MaxArgs >= 0 && len(args) > d.MaxArgs) {
		return nil, fmt.Errorf("%w: %s takes %s args, got %d", ErrArity, name, span(d.MinArgs, d.MaxArgs), len(args))
	}
	if len(returns) < d.MinReturns || len(returns) > d.MaxReturns {
		return nil, fmt.Errorf("%w: %s takes %s returns, got %d", ErrArity, name, span(d.MinReturns, d.MaxReturns), len(returns))
	}
	return join.NewConstraint(id, name, d.New(id, len(returns)), args, returns), nil
}

func span(lo, hi int) string {
	switch {
	case hi < 0:
		return fmt.Sprintf("at least %d", lo)
	case lo == hi:
		return fmt.Sprint(lo)
	default:
		return fmt.Sprintf("%d to %d", lo, hi)
	}
}

func single(v storage.Value) [][]storage.Value {
	return [][]storage.Value{{v}}
}

func num(v storage.Value) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// pure wraps a function of its args that yields exactly one value.
func pure(fn func(args []storage.Value) (storage.Value, bool)) Factory {
	return func(string, int) join.Function {
		return join.FunctionFunc(func(args []storage.Value) ([][]storage.Value, bool) {
			v, ok := fn(args)
			if !ok {
				return nil, false
			}
			return single(v), true
		})
	}
}

func unary(fn func(float64) (float64, bool)) Factory {
	return pure(func(args []storage.Value) (storage.Value, bool) {
		a, ok := num(args[0])
		if !ok {
			return nil, false
		}
		r, ok := fn(a)
		return r, ok
	})
}

func binaryOp(fn func(a, b float64) (float64, bool)) Factory {
	return pure(func(args []storage.Value) (storage.Value, bool) {
		a, ok1 := num(args[0])
		b, ok2 := num(args[1])
		if !ok1 || !ok2 {
			return nil, false
		}
		r, ok := fn(a, b)
		return r, ok
	})
}
