package join

import (
	"fmt"

	"github.com/orneryd/eavdb/pkg/storage"
)

// NotScan accepts a prefix only when its inner strata produce no rows for
// the bound args. It never proposes.
type NotScan struct {
	id       string
	Args     []*Variable
	Strata   []*Stratum
	internal []*Variable
}

// NewNotScan creates a negation over strata, correlated with the outer
// query through args.
func NewNotScan(id string, args []*Variable, strata []*Stratum) *NotScan {
	return &NotScan{
		id:       id,
		Args:     args,
		Strata:   strata,
		internal: StrataVars(strata),
	}
}

func (n *NotScan) ID() string        { return n.id }
func (n *NotScan) Kind() Kind        { return KindNot }
func (n *NotScan) Vars() []*Variable { return n.Args }

// Propose never offers anything.
func (n *NotScan) Propose(idx *storage.MultiIndex, prefix Prefix) Proposal { return nil }

// Resolve panics: a negation never proposes, so there is nothing to resolve.
func (n *NotScan) Resolve(p Proposal, prefix Prefix) []storage.Value {
	panic(fmt.Errorf("%w: resolve on negation %s", ErrUnsupported, n.id))
}

// Accept evaluates the inner strata. It accepts blindly while some arg is
// still unbound, and when the variable being solved is unrelated to the
// negation. Arg-less negations are evaluated in the prejoin pass.
func (n *NotScan) Accept(idx *storage.MultiIndex, prefix Prefix, solvingFor *Variable, force, prejoin bool) bool {
	unrelated := !force && !HasVar(n.internal, solvingFor) && len(n.internal) > 0
	if ((!prejoin || len(n.Args) > 0) && unrelated) || !prefix.Bound(n.Args) {
		return true
	}
	size := PrefixSize(n.internal)
	if s := PrefixSize(n.Args); s > size {
		size = s
	}
	seed := NewPrefix(size)
	for _, a := range n.Args {
		seed.Set(a, prefix.Get(a))
	}
	rows := ExecuteStrata(idx, n.Strata, []Prefix{seed}, true)
	return len(rows) == 0
}
