package join

import (
	"slices"

	"github.com/orneryd/eavdb/pkg/storage"
)

// IfBranch is one alternative of an IfScan. Outputs are terms resolved
// against each row the branch produces.
type IfBranch struct {
	id             string
	Strata         []*Stratum
	Outputs        []Term
	Exclusive      bool
	variables      []*Variable
	constantReturn bool
}

// NewIfBranch creates a branch.
func NewIfBranch(id string, strata []*Stratum, outputs []Term, exclusive bool) *IfBranch {
	b := &IfBranch{
		id:             id,
		Strata:         strata,
		Outputs:        outputs,
		Exclusive:      exclusive,
		constantReturn: true,
	}
	b.variables = StrataVars(strata)
	if vars := VarsOf(outputs...); len(vars) > 0 {
		b.constantReturn = false
		b.variables = MergeVars(b.variables, vars)
	}
	return b
}

// ID returns the branch identifier.
func (b *IfBranch) ID() string { return b.id }

// seed copies the branch's variables out of prefix into a fresh row.
func (b *IfBranch) seed(prefix Prefix) Prefix {
	row := NewPrefix(PrefixSize(b.variables))
	for _, v := range b.variables {
		row.Set(v, prefix.Get(v))
	}
	return row
}

// Execute runs the branch strata starting from the given rows.
func (b *IfBranch) Execute(idx *storage.MultiIndex, rows []Prefix) []Prefix {
	return ExecuteStrata(idx, b.Strata, rows, b.constantReturn)
}

// IfScan binds its outputs from the first branch (when exclusive) or every
// branch that produces rows.
type IfScan struct {
	id           string
	Args         []*Variable
	Outputs      []*Variable
	Branches     []*IfBranch
	exclusive    bool
	hasAggregate bool
	vars         []*Variable
}

// NewIfScan creates a choice. hasAggregate forces the scan into a later
// stratum than its inputs.
func NewIfScan(id string, args, outputs []*Variable, branches []*IfBranch, hasAggregate bool) *IfScan {
	s := &IfScan{
		id:           id,
		Args:         args,
		Outputs:      outputs,
		Branches:     branches,
		hasAggregate: hasAggregate,
	}
	for _, b := range branches {
		if b.Exclusive {
			s.exclusive = true
		}
		if len(b.Strata) > 1 {
			s.hasAggregate = true
		}
		for _, st := range b.Strata {
			if len(st.Aggregates) > 0 {
				s.hasAggregate = true
			}
		}
	}
	s.vars = MergeVars(slices.Clone(args), outputs)
	return s
}

func (s *IfScan) ID() string        { return s.id }
func (s *IfScan) Kind() Kind        { return KindIf }
func (s *IfScan) Vars() []*Variable { return s.vars }

// HasAggregate reports whether the choice must run after its inputs are
// complete.
func (s *IfScan) HasAggregate() bool { return s.hasAggregate }

// Propose runs the branches once args are bound and some output is not.
// Only unbound outputs are provided; rows that disagree with bound outputs
// are dropped.
func (s *IfScan) Propose(idx *storage.MultiIndex, prefix Prefix) Proposal {
	if !prefix.Bound(s.Args) || prefix.Bound(s.Outputs) {
		return nil
	}
	p := &ValuesProposal{}
	var positions []int
	for i, o := range s.Outputs {
		if prefix.Get(o) == nil && !HasVar(p.Vars, o) {
			p.Vars = append(p.Vars, o)
			positions = append(positions, i)
		}
	}
	seen := make(map[string]struct{})
	out := make([]storage.Value, len(s.Outputs))
	for _, b := range s.Branches {
		rows := b.Execute(idx, []Prefix{b.seed(prefix)})
		if len(rows) == 0 {
			continue
		}
		for _, row := range rows {
			if !s.outputRow(b, prefix, row, out) {
				continue
			}
			start := len(p.Values)
			for _, pos := range positions {
				p.Values = append(p.Values, out[pos])
			}
			key := TupleKey(p.Values[start:])
			if _, dup := seen[key]; dup {
				p.Values = p.Values[:start]
				continue
			}
			seen[key] = struct{}{}
			p.Card++
		}
		if s.exclusive {
			break
		}
	}
	return p
}

// outputRow resolves the branch outputs for row into out and reports
// whether they agree with the outputs already bound in prefix.
func (s *IfScan) outputRow(b *IfBranch, prefix, row Prefix, out []storage.Value) bool {
	if len(b.Outputs) != len(s.Outputs) {
		return false
	}
	for i, t := range b.Outputs {
		v := ToValue(t, row)
		if v == nil {
			return false
		}
		if bound := prefix.Get(s.Outputs[i]); bound != nil && bound != v {
			return false
		}
		out[i] = v
	}
	for i, o := range s.Outputs {
		for j := i + 1; j < len(s.Outputs); j++ {
			if s.Outputs[j].ID == o.ID && out[j] != out[i] {
				return false
			}
		}
	}
	return true
}

// Resolve returns the candidates computed by Propose.
func (s *IfScan) Resolve(p Proposal, prefix Prefix) []storage.Value {
	return valuesOf(p)
}

// Accept checks that some branch can still produce the bound outputs. With
// every output bound the branches are run; otherwise each branch stratum
// only has to accept the bound variables.
func (s *IfScan) Accept(idx *storage.MultiIndex, prefix Prefix, solvingFor *Variable, force, prejoin bool) bool {
	if (!force && !HasVar(s.vars, solvingFor)) || !prefix.Bound(s.Args) {
		return true
	}
	if prefix.Bound(s.Outputs) {
		out := make([]storage.Value, len(s.Outputs))
		for _, b := range s.Branches {
			rows := b.Execute(idx, []Prefix{b.seed(prefix)})
			for _, row := range rows {
				if s.outputRow(b, prefix, row, out) {
					return true
				}
			}
			if len(rows) > 0 && s.exclusive {
				return false
			}
		}
		return false
	}
	for _, b := range s.Branches {
		for _, st := range b.Strata {
			if ok, _ := PreJoinAccept(idx, st.Providers, st.Vars, prefix); ok {
				return true
			}
		}
	}
	return false
}
