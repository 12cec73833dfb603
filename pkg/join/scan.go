package join

import "github.com/orneryd/eavdb/pkg/storage"

// Scan matches facts (e, a, v[, n]) in one or more scopes. Each position is
// a constant or a variable. A nil N means the scan has no node position and
// matches facts from any node.
type Scan struct {
	id     string
	E      Term
	A      Term
	V      Term
	N      Term
	Scopes []string
	vars   []*Variable
}

// NewScan creates a scan. Without scopes it reads storage.DefaultScope.
func NewScan(id string, e, a, v, n Term, scopes ...string) *Scan {
	if len(scopes) == 0 {
		scopes = []string{storage.DefaultScope}
	}
	return &Scan{
		id:     id,
		E:      e,
		A:      a,
		V:      v,
		N:      n,
		Scopes: scopes,
		vars:   VarsOf(e, a, v, n),
	}
}

func (s *Scan) ID() string        { return s.id }
func (s *Scan) Kind() Kind        { return KindScan }
func (s *Scan) Vars() []*Variable { return s.vars }

// EAVVars returns the variables in the entity, attribute and value
// positions. The node position never provides to other providers.
func (s *Scan) EAVVars() []*Variable {
	return VarsOf(s.E, s.A, s.V)
}

func (s *Scan) terms() [4]Term {
	return [4]Term{s.E, s.A, s.V, s.N}
}

func (s *Scan) resolve(prefix Prefix) [4]storage.Value {
	return [4]storage.Value{
		ToValue(s.E, prefix),
		ToValue(s.A, prefix),
		ToValue(s.V, prefix),
		ToValue(s.N, prefix),
	}
}

// ScanProposal is a scan's offer: either the child keys of the levels found
// by an index lookup, or a full walk of the scoped indexes.
type ScanProposal struct {
	providing   []*Variable
	cardinality int
	levels      []storage.Level
	fullScan    bool
	indexes     []*storage.TripleIndex
	bound       [4]storage.Value
	positions   []int
}

func (p *ScanProposal) Providing() []*Variable { return p.providing }
func (p *ScanProposal) Cardinality() int       { return p.cardinality }

// Propose returns nil once e, a and v (and n, if the scan has a node
// position) are bound.
func (s *Scan) Propose(idx *storage.MultiIndex, prefix Prefix) Proposal {
	r := s.resolve(prefix)
	if r[0] != nil && r[1] != nil && r[2] != nil && (r[3] != nil || s.N == nil) {
		return nil
	}
	return s.proposal(idx, r)
}

func (s *Scan) proposal(idx *storage.MultiIndex, r [4]storage.Value) *ScanProposal {
	e, a, v, n := r[0], r[1], r[2], r[3]
	var provide Term
	var levels []storage.Level
	switch {
	case e != nil && a == nil && v == nil && n == nil:
		provide, levels = s.A, idx.Lookup(s.Scopes, e, nil, nil, nil)
	case e != nil && a != nil && v == nil && n == nil:
		provide, levels = s.V, idx.Lookup(s.Scopes, e, a, nil, nil)
	case e != nil && a != nil && v != nil && n == nil:
		provide, levels = s.N, idx.Lookup(s.Scopes, e, a, v, nil)
	case e == nil && a != nil && v == nil && n == nil:
		provide, levels = s.V, idx.ALookup(s.Scopes, a, nil, nil, nil)
	case e == nil && a != nil && v != nil && n == nil:
		provide, levels = s.E, idx.ALookup(s.Scopes, a, v, nil, nil)
	case e == nil && a == nil && v == nil && n != nil:
		provide, levels = s.E, idx.NodeLookup(s.Scopes, n, nil, nil, nil)
	case e != nil && a == nil && v == nil && n != nil:
		provide, levels = s.A, idx.NodeLookup(s.Scopes, n, e, nil, nil)
	case e != nil && a != nil && v == nil && n != nil:
		provide, levels = s.V, idx.NodeLookup(s.Scopes, n, e, a, nil)
	}
	if pv, ok := AsVariable(provide); ok && s.occurrences(pv) == 1 {
		p := &ScanProposal{providing: []*Variable{pv}, levels: levels}
		for _, l := range levels {
			p.cardinality += l.Cardinality()
		}
		return p
	}
	return s.fullScanProposal(idx, r)
}

func (s *Scan) occurrences(v *Variable) int {
	n := 0
	for _, t := range s.terms() {
		if tv, ok := AsVariable(t); ok && tv.ID == v.ID {
			n++
		}
	}
	return n
}

func (s *Scan) fullScanProposal(idx *storage.MultiIndex, r [4]storage.Value) *ScanProposal {
	p := &ScanProposal{
		fullScan:    true,
		bound:       r,
		indexes:     idx.Indexes(s.Scopes),
		cardinality: idx.CardinalityEstimate(s.Scopes),
	}
	terms := s.terms()
	for pos := 0; pos < s.depth(); pos++ {
		if r[pos] != nil {
			continue
		}
		if v, ok := AsVariable(terms[pos]); ok && !HasVar(p.providing, v) {
			p.providing = append(p.providing, v)
			p.positions = append(p.positions, pos)
		}
	}
	return p
}

func (s *Scan) depth() int {
	if s.N == nil {
		return 3
	}
	return 4
}

// Resolve expands a proposal into candidate values.
func (s *Scan) Resolve(p Proposal, prefix Prefix) []storage.Value {
	sp, ok := p.(*ScanProposal)
	if !ok {
		return nil
	}
	if sp.fullScan {
		return s.walkAll(sp)
	}
	if len(sp.levels) == 1 {
		return sp.levels[0].Keys()
	}
	var out []storage.Value
	seen := make(map[storage.Value]struct{})
	for _, l := range sp.levels {
		for _, k := range l.Keys() {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

var (
	eavOrder = [4]int{0, 1, 2, 3}
	aveOrder = [4]int{1, 2, 0, 3}
)

type scanWalk struct {
	terms     [4]Term
	order     [4]int
	depth     int
	slots     [4]storage.Value
	positions []int
	out       []storage.Value
	seen      map[string]struct{}
}

func (s *Scan) walkAll(p *ScanProposal) []storage.Value {
	w := &scanWalk{terms: s.terms(), depth: s.depth(), positions: p.positions}
	useAVE := p.bound[1] != nil
	w.order = eavOrder
	if useAVE {
		w.order = aveOrder
	}
	if len(p.indexes) > 1 {
		w.seen = make(map[string]struct{})
	}
	for _, t := range p.indexes {
		w.slots = p.bound
		root := t.EAV()
		if useAVE {
			root = t.AVE()
		}
		w.visit(root, 0)
	}
	return w.out
}

func (w *scanWalk) visit(l storage.Level, i int) {
	if i == w.depth {
		w.emit()
		return
	}
	pos := w.order[i]
	if key := w.slots[pos]; key != nil {
		if child, ok := l.Child(key); ok {
			w.visit(child, i+1)
		}
		return
	}
	v, _ := AsVariable(w.terms[pos])
	for _, key := range l.Keys() {
		child, _ := l.Child(key)
		var set [4]bool
		for q := range w.slots {
			if w.slots[q] != nil {
				continue
			}
			if tv, ok := AsVariable(w.terms[q]); ok && v != nil && tv.ID == v.ID {
				w.slots[q] = key
				set[q] = true
			}
		}
		if !set[pos] {
			w.slots[pos] = key
			set[pos] = true
		}
		w.visit(child, i+1)
		for q, ok := range set {
			if ok {
				w.slots[q] = nil
			}
		}
	}
}

func (w *scanWalk) emit() {
	start := len(w.out)
	for _, pos := range w.positions {
		w.out = append(w.out, w.slots[pos])
	}
	if w.seen == nil {
		return
	}
	key := TupleKey(w.out[start:])
	if _, dup := w.seen[key]; dup {
		w.out = w.out[:start]
		return
	}
	w.seen[key] = struct{}{}
}

// Accept checks that the bound positions can still match a stored fact.
func (s *Scan) Accept(idx *storage.MultiIndex, prefix Prefix, solvingFor *Variable, force, prejoin bool) bool {
	if !force && !HasVar(s.vars, solvingFor) {
		return true
	}
	r := s.resolve(prefix)
	if r[0] != nil && r[1] != nil && r[2] != nil {
		return idx.Contains(s.Scopes, r[0], r[1], r[2], r[3])
	}
	return s.proposal(idx, r).Cardinality() > 0
}
