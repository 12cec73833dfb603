package providers

import (
	"fmt"
	"slices"

	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

// SortOp is the name the sort aggregate is registered under.
const SortOp = "sort"

// Sort ranks the distinct value tuples of each group. Direction terms are
// "up" (the default) or "down" per position; the rank is 1-based.
type Sort struct {
	id        string
	Value     []join.Term
	Direction []join.Term
	Per       []join.Term
	Return    join.Term
	inputs    []*join.Variable
	outputs   []*join.Variable
	vars      []*join.Variable
	ranks     map[string]map[string]float64
}

// NewSort creates a sort aggregate.
func NewSort(id string, value, direction, per, returns []join.Term) (*Sort, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: sort needs at least one value", ErrArity)
	}
	if len(returns) != 1 {
		return nil, fmt.Errorf("%w: sort takes 1 return, got %d", ErrArity, len(returns))
	}
	s := &Sort{
		id:        id,
		Value:     value,
		Direction: direction,
		Per:       per,
		Return:    returns[0],
		ranks:     make(map[string]map[string]float64),
	}
	terms := append(slices.Clone(value), direction...)
	s.inputs = join.VarsOf(append(terms, per...)...)
	s.outputs = join.VarsOf(returns[0])
	s.vars = join.MergeVars(slices.Clone(s.inputs), s.outputs)
	return s, nil
}

func (s *Sort) ID() string                { return s.id }
func (s *Sort) Kind() join.Kind           { return join.KindAggregate }
func (s *Sort) Vars() []*join.Variable    { return s.vars }
func (s *Sort) Inputs() []*join.Variable  { return s.inputs }
func (s *Sort) Outputs() []*join.Variable { return s.outputs }

type sortGroup struct {
	values    [][]storage.Value
	keys      []string
	seen      map[string]struct{}
	direction []storage.Value
}

// Aggregate ranks every group's distinct value tuples.
func (s *Sort) Aggregate(rows []join.Prefix) {
	groups := make(map[string]*sortGroup)
	var scratch []storage.Value
	for _, row := range rows {
		scratch = join.ResolveTerms(s.Per, row, scratch)
		gkey := join.TupleKey(scratch)
		g, ok := groups[gkey]
		if !ok {
			// The first row of a group fixes its direction.
			g = &sortGroup{
				seen:      make(map[string]struct{}),
				direction: join.ResolveTerms(s.Direction, row, nil),
			}
			groups[gkey] = g
		}
		value := join.ResolveTerms(s.Value, row, nil)
		vkey := join.TupleKey(value)
		if _, dup := g.seen[vkey]; dup {
			continue
		}
		g.seen[vkey] = struct{}{}
		g.values = append(g.values, value)
		g.keys = append(g.keys, vkey)
	}

	s.ranks = make(map[string]map[string]float64, len(groups))
	for gkey, g := range groups {
		order := make([]int, len(g.values))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(i, j int) int {
			return compareTuples(g.values[i], g.values[j], g.direction)
		})
		ranks := make(map[string]float64, len(order))
		for rank, i := range order {
			ranks[g.keys[i]] = float64(rank + 1)
		}
		s.ranks[gkey] = ranks
	}
}

func compareTuples(a, b []storage.Value, direction []storage.Value) int {
	mult := 1
	for i := range a {
		if i < len(direction) && direction[i] != nil {
			mult = 1
			if direction[i] == "down" {
				mult = -1
			}
		}
		if c := compareValues(a[i], b[i]); c != 0 {
			return c * mult
		}
	}
	return 0
}

// Rank returns the position of prefix's value tuple within its group.
func (s *Sort) Rank(prefix join.Prefix) (float64, bool) {
	per := join.ResolveTerms(s.Per, prefix, nil)
	value := join.ResolveTerms(s.Value, prefix, nil)
	if !join.AllBound(per) || !join.AllBound(value) {
		return 0, false
	}
	r, ok := s.ranks[join.TupleKey(per)][join.TupleKey(value)]
	return r, ok
}

// Propose offers the rank of the bound value tuple.
func (s *Sort) Propose(idx *storage.MultiIndex, prefix join.Prefix) join.Proposal {
	ret, ok := join.AsVariable(s.Return)
	if !ok || prefix.Get(ret) != nil {
		return nil
	}
	per := join.ResolveTerms(s.Per, prefix, nil)
	value := join.ResolveTerms(s.Value, prefix, nil)
	if !join.AllBound(per) || !join.AllBound(value) {
		return nil
	}
	p := &join.ValuesProposal{Vars: []*join.Variable{ret}}
	if r, ok := s.ranks[join.TupleKey(per)][join.TupleKey(value)]; ok {
		p.Values = []storage.Value{r}
		p.Card = 1
	}
	return p
}

// Resolve returns the proposed rank.
func (s *Sort) Resolve(p join.Proposal, prefix join.Prefix) []storage.Value {
	if vp, ok := p.(*join.ValuesProposal); ok {
		return vp.Values
	}
	return nil
}

// Accept checks a bound rank.
func (s *Sort) Accept(idx *storage.MultiIndex, prefix join.Prefix, solvingFor *join.Variable, force, prejoin bool) bool {
	if !force && !join.HasVar(s.vars, solvingFor) {
		return true
	}
	ret := join.ToValue(s.Return, prefix)
	per := join.ResolveTerms(s.Per, prefix, nil)
	value := join.ResolveTerms(s.Value, prefix, nil)
	if ret == nil || !join.AllBound(per) || !join.AllBound(value) {
		return true
	}
	r, ok := s.Rank(prefix)
	return ok && r == ret
}
