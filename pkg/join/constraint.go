package join

import (
	"slices"

	"github.com/orneryd/eavdb/pkg/storage"
)

// Function computes the return tuples of a constraint for bound arguments.
// Each tuple has one value per return position. ok is false when the
// arguments are ill-typed for the function. A filter with no returns
// reports success with a single empty tuple and failure with none.
type Function interface {
	Apply(args []storage.Value) (tuples [][]storage.Value, ok bool)
}

// FunctionFunc adapts a plain function to Function.
type FunctionFunc func(args []storage.Value) ([][]storage.Value, bool)

// Apply calls f.
func (f FunctionFunc) Apply(args []storage.Value) ([][]storage.Value, bool) {
	return f(args)
}

// Pass is the result of a filter that holds.
var Pass = [][]storage.Value{{}}

// Constraint binds its returns from its args through a Function, or tests
// the relation when everything is bound.
type Constraint struct {
	id      string
	Name    string
	Args    []Term
	Returns []Term
	fn      Function
	vars    []*Variable
	argVars []*Variable
	retVars []*Variable
}

// NewConstraint creates a constraint named name for diagnostics.
func NewConstraint(id, name string, fn Function, args, returns []Term) *Constraint {
	c := &Constraint{
		id:      id,
		Name:    name,
		Args:    args,
		Returns: returns,
		fn:      fn,
		argVars: VarsOf(args...),
		retVars: VarsOf(returns...),
	}
	c.vars = MergeVars(slices.Clone(c.argVars), c.retVars)
	return c
}

func (c *Constraint) ID() string        { return c.id }
func (c *Constraint) Kind() Kind        { return KindConstraint }
func (c *Constraint) Vars() []*Variable { return c.vars }

// ArgVars returns the variables the constraint depends on.
func (c *Constraint) ArgVars() []*Variable { return c.argVars }

// ReturnVars returns the variables the constraint can provide.
func (c *Constraint) ReturnVars() []*Variable { return c.retVars }

// Propose binds every unbound return once all args are bound. Tuples that
// disagree with already bound returns are dropped.
func (c *Constraint) Propose(idx *storage.MultiIndex, prefix Prefix) Proposal {
	args := ResolveTerms(c.Args, prefix, nil)
	if !AllBound(args) {
		return nil
	}
	rets := ResolveTerms(c.Returns, prefix, nil)
	if AllBound(rets) {
		return nil
	}
	p := &ValuesProposal{}
	var positions []int
	for i, t := range c.Returns {
		if rets[i] != nil {
			continue
		}
		if v, ok := AsVariable(t); ok && !HasVar(p.Vars, v) {
			p.Vars = append(p.Vars, v)
			positions = append(positions, i)
		}
	}
	tuples, ok := c.fn.Apply(args)
	if !ok {
		return p
	}
	p.Values = projectTuples(tuples, c.Returns, rets, p.Vars, positions)
	p.Card = len(p.Values) / len(p.Vars)
	return p
}

// projectTuples keeps the tuples consistent with bound returns and with
// repeated return variables, projects them onto positions and drops
// duplicates.
func projectTuples(tuples [][]storage.Value, returns []Term, bound []storage.Value, vars []*Variable, positions []int) []storage.Value {
	var out []storage.Value
	var seen map[string]struct{}
	if len(tuples) > 1 {
		seen = make(map[string]struct{}, len(tuples))
	}
	for _, tup := range tuples {
		if len(tup) != len(returns) || !consistent(tup, returns, bound) {
			continue
		}
		start := len(out)
		for _, pos := range positions {
			out = append(out, tup[pos])
		}
		if seen == nil {
			continue
		}
		key := TupleKey(out[start:])
		if _, dup := seen[key]; dup {
			out = out[:start]
			continue
		}
		seen[key] = struct{}{}
	}
	return out
}

func consistent(tup []storage.Value, returns []Term, bound []storage.Value) bool {
	for i, v := range tup {
		if v == nil {
			return false
		}
		if bound[i] != nil && bound[i] != v {
			return false
		}
		rv, ok := AsVariable(returns[i])
		if !ok {
			continue
		}
		for j := i + 1; j < len(returns); j++ {
			if other, ok := AsVariable(returns[j]); ok && other.ID == rv.ID && tup[j] != v {
				return false
			}
		}
	}
	return true
}

// Resolve returns the candidates computed by Propose.
func (c *Constraint) Resolve(p Proposal, prefix Prefix) []storage.Value {
	return valuesOf(p)
}

// Accept tests the relation once args and returns are all bound.
func (c *Constraint) Accept(idx *storage.MultiIndex, prefix Prefix, solvingFor *Variable, force, prejoin bool) bool {
	if !force && !HasVar(c.vars, solvingFor) {
		return true
	}
	args := ResolveTerms(c.Args, prefix, nil)
	rets := ResolveTerms(c.Returns, prefix, nil)
	if !AllBound(args) || !AllBound(rets) {
		return true
	}
	return c.Test(args, rets)
}

// Test reports whether rets is among the tuples the function produces for
// args.
func (c *Constraint) Test(args, rets []storage.Value) bool {
	tuples, ok := c.fn.Apply(args)
	if !ok {
		return false
	}
	for _, tup := range tuples {
		if slices.Equal(tup, rets) {
			return true
		}
	}
	return false
}
