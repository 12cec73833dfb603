package join

import "github.com/orneryd/eavdb/pkg/storage"

// Kind identifies the concrete family of a provider. The set is closed:
// the stratifier and the dependency checker switch over it exhaustively.
type Kind int

const (
	KindScan Kind = iota
	KindConstraint
	KindAggregate
	KindNot
	KindIf
)

func (k Kind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindConstraint:
		return "constraint"
	case KindAggregate:
		return "aggregate"
	case KindNot:
		return "not"
	case KindIf:
		return "if"
	default:
		return "unknown"
	}
}

// Provider takes part in a join.
//
// Propose returns nil when the provider cannot bind anything for prefix.
// Resolve expands a proposal returned by the same provider into candidate
// values, flattened: a proposal providing n variables yields n values per
// candidate. Accept checks a prefix in which solvingFor was just bound;
// force makes the provider check even if solvingFor is not one of its
// variables, and prejoin marks the check run before any round.
type Provider interface {
	ID() string
	Kind() Kind
	Vars() []*Variable
	Propose(idx *storage.MultiIndex, prefix Prefix) Proposal
	Resolve(p Proposal, prefix Prefix) []storage.Value
	Accept(idx *storage.MultiIndex, prefix Prefix, solvingFor *Variable, force, prejoin bool) bool
}

// Proposal is a provider's offer to bind variables.
type Proposal interface {
	Providing() []*Variable
	Cardinality() int
}

// Aggregator is a provider that folds the rows of the previous stratum
// before the join of its own stratum runs.
type Aggregator interface {
	Provider
	Inputs() []*Variable
	Outputs() []*Variable
	Aggregate(rows []Prefix)
}

// ValuesProposal carries precomputed candidates.
type ValuesProposal struct {
	Vars   []*Variable
	Values []storage.Value
	Card   int
}

func (p *ValuesProposal) Providing() []*Variable { return p.Vars }
func (p *ValuesProposal) Cardinality() int       { return p.Card }

func valuesOf(p Proposal) []storage.Value {
	if vp, ok := p.(*ValuesProposal); ok {
		return vp.Values
	}
	return nil
}

// Verify every provider family implements Provider.
var (
	_ Provider = (*Scan)(nil)
	_ Provider = (*Constraint)(nil)
	_ Provider = (*NotScan)(nil)
	_ Provider = (*IfScan)(nil)
	_ Proposal = (*ScanProposal)(nil)
	_ Proposal = (*ValuesProposal)(nil)
)
