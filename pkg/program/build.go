package program

import (
	"errors"
	"fmt"
	"strings"

	"github.com/orneryd/eavdb/pkg/actions"
	"github.com/orneryd/eavdb/pkg/block"
	"github.com/orneryd/eavdb/pkg/config"
	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/providers"
	"github.com/orneryd/eavdb/pkg/storage"
)

// SeedID is the action ID, and default node, of seed facts.
const SeedID = "program|facts"

// Build compiles every block and turns the seed facts into insert
// actions. Blocks that fail to compile are left out; their errors are
// returned together as a *block.BatchError next to the blocks that built.
func (p *Program) Build(cfg *config.Config) ([]*block.Block, []actions.Action, error) {
	if cfg == nil {
		cfg = config.LoadDefaults()
	}
	scope := cfg.Evaluation.DefaultScope
	if scope == "" {
		scope = storage.DefaultScope
	}

	var errs []error
	defs := make([]block.Definition, 0, len(p.Blocks))
	for _, spec := range p.Blocks {
		def, err := compileBlock(spec, scope)
		if err != nil {
			errs = append(errs, &block.BuildError{Block: spec.Name, Err: err})
			continue
		}
		defs = append(defs, def)
	}
	blocks, err := block.BuildAll(defs)
	if err != nil {
		var batch *block.BatchError
		if errors.As(err, &batch) {
			errs = append(errs, batch.Errors...)
		} else {
			errs = append(errs, err)
		}
	}

	seeds := make([]actions.Action, 0, len(p.Facts))
	for i, f := range p.Facts {
		if f.E == nil || f.A == nil || f.V == nil {
			errs = append(errs, fmt.Errorf("%w: fact %d needs e, a and v", ErrInvalidProgram, i))
			continue
		}
		s := f.Scope
		if s == "" {
			s = scope
		}
		n := f.N
		if n == "" {
			n = storage.DefaultNode
		}
		seeds = append(seeds, actions.New(actions.Insert, SeedID, storage.Normalize(f.E), storage.Normalize(f.A), storage.Normalize(f.V), n, s))
	}

	if len(errs) > 0 {
		return blocks, seeds, &block.BatchError{Errors: errs}
	}
	return blocks, seeds, nil
}

// compiler translates one block. Variables are shared by name across the
// block, nested bodies included.
type compiler struct {
	block string
	scope string
	vars  map[string]*join.Variable
	next  int
	ids   int
}

func compileBlock(spec BlockSpec, scope string) (block.Definition, error) {
	c := &compiler{block: spec.Name, scope: scope, vars: make(map[string]*join.Variable)}
	def := block.Definition{Name: spec.Name}
	var err error
	if def.Providers, err = c.providers(spec.Match); err != nil {
		return def, err
	}
	if def.Commit, err = c.actions(spec.Commit); err != nil {
		return def, err
	}
	if def.Bind, err = c.actions(spec.Bind); err != nil {
		return def, err
	}
	return def, nil
}

func (c *compiler) id(kind string) string {
	c.ids++
	return fmt.Sprintf("%s|%s%d", c.block, kind, c.ids)
}

func (c *compiler) variable(name string) *join.Variable {
	if v, ok := c.vars[name]; ok {
		return v
	}
	v := &join.Variable{ID: c.next, Name: name}
	c.next++
	c.vars[name] = v
	return v
}

// anonymous returns a fresh variable no name refers to.
func (c *compiler) anonymous() *join.Variable {
	v := &join.Variable{ID: c.next, Name: "_"}
	c.next++
	return v
}

func (c *compiler) term(x any) join.Term {
	if s, ok := x.(string); ok && len(s) > 1 && s[0] == '?' {
		return c.variable(s[1:])
	}
	return storage.Normalize(x)
}

func (c *compiler) terms(xs []any) []join.Term {
	out := make([]join.Term, len(xs))
	for i, x := range xs {
		out[i] = c.term(x)
	}
	return out
}

// orAny is term, with an anonymous variable for an omitted position.
func (c *compiler) orAny(x any) join.Term {
	if x == nil {
		return c.anonymous()
	}
	return c.term(x)
}

// variables resolves names given with or without the leading "?".
func (c *compiler) variables(names []string) ([]*join.Variable, error) {
	out := make([]*join.Variable, 0, len(names))
	for _, n := range names {
		n = strings.TrimPrefix(n, "?")
		if n == "" {
			return nil, ErrNotVariable
		}
		out = append(out, c.variable(n))
	}
	return out, nil
}

func (c *compiler) scopes(s []string) []string {
	if len(s) == 0 {
		return []string{c.scope}
	}
	return s
}

func (c *compiler) providers(ms []MatchSpec) ([]join.Provider, error) {
	out := make([]join.Provider, 0, len(ms))
	for i, m := range ms {
		p, err := c.provider(m)
		if err != nil {
			return nil, fmt.Errorf("match %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *compiler) provider(m MatchSpec) (join.Provider, error) {
	set := 0
	for _, ok := range []bool{m.Scan != nil, m.Fn != nil, m.Agg != nil, m.Sort != nil, m.Not != nil, m.If != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, ErrInvalidMatch
	}

	switch {
	case m.Scan != nil:
		s := m.Scan
		return join.NewScan(c.id("scan"), c.orAny(s.E), c.orAny(s.A), c.orAny(s.V), c.term(s.N), c.scopes(s.Scopes)...), nil
	case m.Fn != nil:
		f, err := providers.NewConstraint(c.id(m.Fn.Op), m.Fn.Op, c.terms(m.Fn.Args), c.terms(m.Fn.Returns))
		if err != nil {
			return nil, err
		}
		return f, nil
	case m.Agg != nil:
		a := m.Agg
		agg, err := providers.NewAggregate(c.id(a.Op), a.Op, c.term(a.Value), c.terms(a.Given), c.terms(a.Per), c.terms(a.Returns))
		if err != nil {
			return nil, err
		}
		return agg, nil
	case m.Sort != nil:
		s := m.Sort
		srt, err := providers.NewSort(c.id(providers.SortOp), c.terms(s.Value), c.terms(s.Direction), c.terms(s.Per), c.terms(s.Returns))
		if err != nil {
			return nil, err
		}
		return srt, nil
	case m.Not != nil:
		return c.not(m.Not)
	default:
		return c.choice(m.If)
	}
}

func (c *compiler) body(ms []MatchSpec) ([]*join.Stratum, error) {
	ps, err := c.providers(ms)
	if err != nil {
		return nil, err
	}
	return join.Stratify(ps)
}

func (c *compiler) not(n *NotSpec) (join.Provider, error) {
	id := c.id("not")
	args, err := c.variables(n.Args)
	if err != nil {
		return nil, err
	}
	strata, err := c.body(n.Match)
	if err != nil {
		return nil, fmt.Errorf("not: %w", err)
	}
	return join.NewNotScan(id, args, strata), nil
}

func (c *compiler) choice(s *IfSpec) (join.Provider, error) {
	id := c.id("if")
	args, err := c.variables(s.Args)
	if err != nil {
		return nil, err
	}
	outputs, err := c.variables(s.Outputs)
	if err != nil {
		return nil, err
	}
	branches := make([]*join.IfBranch, 0, len(s.Branches))
	for i, b := range s.Branches {
		strata, err := c.body(b.Match)
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}
		if len(b.Outputs) != len(outputs) {
			return nil, fmt.Errorf("%w: branch %d has %d outputs, want %d", providers.ErrArity, i, len(b.Outputs), len(outputs))
		}
		branches = append(branches, join.NewIfBranch(fmt.Sprintf("%s|branch%d", id, i), strata, c.terms(b.Outputs), s.Exclusive))
	}
	return join.NewIfScan(id, args, outputs, branches, false), nil
}

func (c *compiler) actions(as []ActionSpec) ([]actions.Action, error) {
	out := make([]actions.Action, 0, len(as))
	for i, a := range as {
		act, err := c.action(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, act)
	}
	return out, nil
}

func (c *compiler) action(a ActionSpec) (actions.Action, error) {
	var (
		typ  actions.Type
		args *ActionArgs
		set  int
	)
	for _, candidate := range []struct {
		typ  actions.Type
		args *ActionArgs
	}{
		{actions.Insert, a.Insert},
		{actions.Remove, a.Remove},
		{actions.RemoveSupport, a.RemoveSupport},
		{actions.Set, a.Set},
		{actions.Erase, a.Erase},
	} {
		if candidate.args != nil {
			typ, args = candidate.typ, candidate.args
			set++
		}
	}
	if set != 1 {
		return nil, ErrInvalidAction
	}
	if args.E == nil || (typ != actions.Erase && (args.A == nil || args.V == nil)) {
		return nil, fmt.Errorf("%w: %s needs e, a and v", ErrInvalidAction, typ)
	}
	return actions.New(typ, c.id(typ.String()), c.term(args.E), c.term(args.A), c.term(args.V), args.Node, c.scopes(args.Scopes)...), nil
}
