package providers

import (
	"fmt"
	"slices"

	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

type group struct {
	seen  map[string]struct{}
	sum   float64
	count int
}

type reducer func(g *group, v storage.Value)

type finalizer func(g *group) storage.Value

type aggregateOp struct {
	reduce     reducer
	finalize   finalizer
	needsValue bool
}

var aggregateOps = map[string]aggregateOp{
	"sum": {
		reduce: func(g *group, v storage.Value) {
			if f, ok := num(v); ok {
				g.sum += f
				g.count++
			}
		},
		finalize:   func(g *group) storage.Value { return g.sum },
		needsValue: true,
	},
	"count": {
		reduce:   func(g *group, v storage.Value) { g.count++ },
		finalize: func(g *group) storage.Value { return float64(g.count) },
	},
	"average": {
		reduce: func(g *group, v storage.Value) {
			if f, ok := num(v); ok {
				g.sum += f
				g.count++
			}
		},
		finalize: func(g *group) storage.Value {
			if g.count == 0 {
				return nil
			}
			return g.sum / float64(g.count)
		},
		needsValue: true,
	},
}

// Aggregate folds the rows of the previous stratum into one value per
// group. Rows are grouped by the values of per; within a group a
// contribution is counted once per distinct projection onto given, or once
// per distinct row when given is empty.
type Aggregate struct {
	id      string
	Op      string
	Value   join.Term
	Given   []join.Term
	Per     []join.Term
	Return  join.Term
	op      aggregateOp
	inputs  []*join.Variable
	outputs []*join.Variable
	vars    []*join.Variable
	results map[string]storage.Value
}

// NewAggregate creates the aggregate named op ("sum", "count" or
// "average").
func NewAggregate(id, op string, value join.Term, given, per, returns []join.Term) (*Aggregate, error) {
	impl, ok := aggregateOps[op]
	if !ok {
		return nil, fmt.Errorf("%w: aggregate %q", ErrUnknownOp, op)
	}
	if len(returns) != 1 {
		return nil, fmt.Errorf("%w: %s takes 1 return, got %d", ErrArity, op, len(returns))
	}
	if impl.needsValue && value == nil {
		return nil, fmt.Errorf("%w: %s needs a value", ErrArity, op)
	}
	a := &Aggregate{
		id:      id,
		Op:      op,
		Value:   value,
		Given:   given,
		Per:     per,
		Return:  returns[0],
		op:      impl,
		results: make(map[string]storage.Value),
	}
	terms := append([]join.Term{value}, given...)
	a.inputs = join.VarsOf(append(terms, per...)...)
	a.outputs = join.VarsOf(returns[0])
	a.vars = join.MergeVars(slices.Clone(a.inputs), a.outputs)
	return a, nil
}

// Verify Aggregate and Sort implement join.Aggregator
var (
	_ join.Aggregator = (*Aggregate)(nil)
	_ join.Aggregator = (*Sort)(nil)
)

func (a *Aggregate) ID() string                { return a.id }
func (a *Aggregate) Kind() join.Kind           { return join.KindAggregate }
func (a *Aggregate) Vars() []*join.Variable    { return a.vars }
func (a *Aggregate) Inputs() []*join.Variable  { return a.inputs }
func (a *Aggregate) Outputs() []*join.Variable { return a.outputs }

// Aggregate recomputes every group from rows.
func (a *Aggregate) Aggregate(rows []join.Prefix) {
	groups := make(map[string]*group)
	var scratch []storage.Value
	for _, row := range rows {
		scratch = join.ResolveTerms(a.Per, row, scratch)
		gkey := join.TupleKey(scratch)
		g, ok := groups[gkey]
		if !ok {
			g = &group{seen: make(map[string]struct{})}
			groups[gkey] = g
		}
		var pkey string
		if len(a.Given) == 0 {
			pkey = join.TupleKey(row)
		} else {
			scratch = join.ResolveTerms(a.Given, row, scratch)
			pkey = join.TupleKey(scratch)
		}
		if _, dup := g.seen[pkey]; dup {
			continue
		}
		g.seen[pkey] = struct{}{}
		a.op.reduce(g, join.ToValue(a.Value, row))
	}
	a.results = make(map[string]storage.Value, len(groups))
	for k, g := range groups {
		if v := a.op.finalize(g); v != nil {
			a.results[k] = v
		}
	}
}

// Result returns the folded value for the group of prefix.
func (a *Aggregate) Result(prefix join.Prefix) (storage.Value, bool) {
	per := join.ResolveTerms(a.Per, prefix, nil)
	if !join.AllBound(per) {
		return nil, false
	}
	v, ok := a.results[join.TupleKey(per)]
	return v, ok
}

// Propose offers the group's result for the return variable.
func (a *Aggregate) Propose(idx *storage.MultiIndex, prefix join.Prefix) join.Proposal {
	ret, ok := join.AsVariable(a.Return)
	if !ok || prefix.Get(ret) != nil {
		return nil
	}
	per := join.ResolveTerms(a.Per, prefix, nil)
	if !join.AllBound(per) {
		return nil
	}
	p := &join.ValuesProposal{Vars: []*join.Variable{ret}}
	if v, ok := a.results[join.TupleKey(per)]; ok {
		p.Values = []storage.Value{v}
		p.Card = 1
	}
	return p
}

// Resolve returns the group's result.
func (a *Aggregate) Resolve(p join.Proposal, prefix join.Prefix) []storage.Value {
	if vp, ok := p.(*join.ValuesProposal); ok {
		return vp.Values
	}
	return nil
}

// Accept checks a bound return against the group's result.
func (a *Aggregate) Accept(idx *storage.MultiIndex, prefix join.Prefix, solvingFor *join.Variable, force, prejoin bool) bool {
	if !force && !join.HasVar(a.vars, solvingFor) {
		return true
	}
	ret := join.ToValue(a.Return, prefix)
	per := join.ResolveTerms(a.Per, prefix, nil)
	if ret == nil || !join.AllBound(per) {
		return true
	}
	v, ok := a.results[join.TupleKey(per)]
	return ok && v == ret
}
