package join

import (
	"math"

	"github.com/orneryd/eavdb/pkg/storage"
)

// Options tunes a join.
type Options struct {
	// Single stops the join at the first row.
	Single bool
	// Rows is appended to and returned.
	Rows []Prefix
	// SolverInfo, when long enough, counts per provider how often it
	// rejected or starved a branch of the search.
	SolverInfo []int
}

func (o *Options) blocked(i int) {
	if i >= 0 && i < len(o.SolverInfo) {
		o.SolverInfo[i]++
	}
}

// Join extends prefix with every binding of vars accepted by all providers
// and returns the rows appended to opts.Rows. The input prefix is never
// modified.
func Join(idx *storage.MultiIndex, providers []Provider, vars []*Variable, prefix Prefix, opts Options) []Prefix {
	size := PrefixSize(vars)
	for _, p := range providers {
		if s := PrefixSize(p.Vars()); s > size {
			size = s
		}
	}
	scratch := prefix.Grow(size)
	rows := opts.Rows
	accepted, presolved := PreJoinAccept(idx, providers, vars, scratch)
	if !accepted {
		return rows
	}
	rounds := len(vars) - presolved
	switch {
	case presolved > 0 && rounds == 0:
		rows = append(rows, scratch)
	case rounds == 0:
		for _, p := range providers {
			if !p.Accept(idx, scratch, nil, true, false) {
				return rows
			}
		}
		rows = append(rows, scratch)
	default:
		opts.Rows = rows
		joinRound(idx, providers, scratch, rounds, &opts)
		rows = opts.Rows
	}
	return rows
}

// PreJoinAccept asks every provider to accept each variable already bound
// in prefix, then gives negations and providers without variables a chance
// to reject the whole join. It returns whether the prefix survived and how
// many of vars were bound.
func PreJoinAccept(idx *storage.MultiIndex, providers []Provider, vars []*Variable, prefix Prefix) (bool, int) {
	presolved := 0
	for _, v := range vars {
		if prefix.Get(v) == nil {
			continue
		}
		presolved++
		for _, p := range providers {
			if !p.Accept(idx, prefix, v, false, true) {
				return false, presolved
			}
		}
	}
	for _, p := range providers {
		switch {
		case p.Kind() == KindNot:
			if !p.Accept(idx, prefix, nil, false, true) {
				return false, presolved
			}
		case len(p.Vars()) == 0:
			// Constant positions are never proposed nor solved for.
			if !p.Accept(idx, prefix, nil, true, true) {
				return false, presolved
			}
		}
	}
	return true, presolved
}

func joinRound(idx *storage.MultiIndex, providers []Provider, prefix Prefix, rounds int, opts *Options) {
	var best Proposal
	bestIx := -1
	bestCard := math.MaxInt
	for i, p := range providers {
		proposed := p.Propose(idx, prefix)
		if proposed != nil && proposed.Cardinality() < bestCard {
			best, bestIx, bestCard = proposed, i, proposed.Cardinality()
		}
	}
	if best == nil || bestCard == 0 {
		opts.blocked(bestIx)
		return
	}

	providing := best.Providing()
	n := len(providing)
	if n == 0 {
		return
	}
	values := providers[bestIx].Resolve(best, prefix)
	for i := 0; i+n <= len(values); i += n {
		for j, v := range providing {
			prefix[v.ID] = values[i+j]
		}
		accepted := true
	check:
		for pi, p := range providers {
			if pi == bestIx {
				continue
			}
			for _, v := range providing {
				if !p.Accept(idx, prefix, v, false, false) {
					opts.blocked(pi)
					accepted = false
					break check
				}
			}
		}
		if accepted && rounds-n > 0 {
			joinRound(idx, providers, prefix, rounds-n, opts)
		} else if accepted {
			opts.Rows = append(opts.Rows, prefix.Clone())
		}
		if opts.Single && len(opts.Rows) > 0 {
			return
		}
		for _, v := range providing {
			prefix[v.ID] = nil
		}
	}
}
