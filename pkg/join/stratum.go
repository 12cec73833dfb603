package join

import "github.com/orneryd/eavdb/pkg/storage"

// Stratum is a group of providers joined together. Its aggregates fold the
// input rows before the join runs.
type Stratum struct {
	Providers  []Provider
	Aggregates []Aggregator
	Vars       []*Variable
	// SolverInfo counts, per provider, how often it ended a branch of the
	// search. It is reset on every Execute.
	SolverInfo []int
	// Results holds the rows produced by the last Execute.
	Results []Prefix
}

// NewStratum builds a stratum. Aggregates must also appear in providers.
func NewStratum(providers []Provider, aggregates []Aggregator) *Stratum {
	s := &Stratum{Providers: providers, Aggregates: aggregates}
	for _, p := range providers {
		s.Vars = MergeVars(s.Vars, p.Vars())
	}
	s.SolverInfo = make([]int, len(providers))
	return s
}

// Execute extends every input row through the stratum's join.
func (s *Stratum) Execute(idx *storage.MultiIndex, rows []Prefix, opts Options) []Prefix {
	for i := range s.SolverInfo {
		s.SolverInfo[i] = 0
	}
	for _, agg := range s.Aggregates {
		agg.Aggregate(rows)
	}
	opts.SolverInfo = s.SolverInfo
	var results []Prefix
	for _, row := range rows {
		opts.Rows = results
		results = Join(idx, s.Providers, s.Vars, row, opts)
		if opts.Single && len(results) > 0 {
			break
		}
	}
	s.Results = results
	return results
}

// ExecuteStrata runs strata in order starting from rows, stopping early
// when a stratum produces nothing. A lone stratum is run in single mode
// when single is set.
func ExecuteStrata(idx *storage.MultiIndex, strata []*Stratum, rows []Prefix, single bool) []Prefix {
	if single && len(strata) == 1 {
		return strata[0].Execute(idx, rows, Options{Single: true})
	}
	for _, s := range strata {
		rows = s.Execute(idx, rows, Options{})
		if len(rows) == 0 {
			break
		}
	}
	return rows
}

// StrataVars returns every variable used by the strata.
func StrataVars(strata []*Stratum) []*Variable {
	var vars []*Variable
	for _, s := range strata {
		vars = MergeVars(vars, s.Vars)
	}
	return vars
}
