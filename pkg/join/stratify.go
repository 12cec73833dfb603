package join

import (
	"fmt"
	"slices"
)

type varLevel struct {
	providers []Provider
	level     int
}

// isAggregate reports whether p must sit one level above its inputs.
func isAggregate(p Provider) bool {
	switch p.Kind() {
	case KindAggregate:
		return true
	case KindIf:
		return p.(*IfScan).HasAggregate()
	case KindNot:
		return len(p.(*NotScan).Strata) > 1
	default:
		return false
	}
}

// dependencies returns the variables p reads and the variables it can bind.
func dependencies(p Provider) (deps, returns []*Variable) {
	switch p.Kind() {
	case KindScan:
		s := p.(*Scan)
		return s.EAVVars(), s.EAVVars()
	case KindConstraint:
		c := p.(*Constraint)
		return c.ArgVars(), c.ReturnVars()
	case KindAggregate:
		if a, ok := p.(Aggregator); ok {
			return a.Inputs(), a.Outputs()
		}
		return p.Vars(), nil
	case KindNot:
		return p.(*NotScan).Args, nil
	case KindIf:
		s := p.(*IfScan)
		return s.Args, s.Outputs
	default:
		return p.Vars(), nil
	}
}

// Stratify assigns every provider a level so that aggregates run strictly
// after everything their inputs depend on, and groups the providers into
// strata ordered by level. An empty provider list yields one empty stratum.
func Stratify(providers []Provider) ([]*Stratum, error) {
	if len(providers) == 0 {
		return []*Stratum{NewStratum(nil, nil)}, nil
	}

	vars := make(map[int]*varLevel)
	levels := make(map[string]int)
	provide := func(v *Variable, p Provider) {
		info, ok := vars[v.ID]
		if !ok {
			info = &varLevel{}
			vars[v.ID] = info
		}
		info.providers = append(info.providers, p)
	}
	// A variable settles at the lowest level of any of its providers.
	settle := func(v *Variable, level int) {
		info, ok := vars[v.ID]
		if !ok {
			return
		}
		for _, p := range info.providers {
			level = min(level, levels[p.ID()])
		}
		info.level = level
	}

	var aggregates []Provider
	for _, p := range providers {
		if p.Kind() == KindAggregate {
			aggregates = append(aggregates, p)
			levels[p.ID()] = 1
		}
		_, returns := dependencies(p)
		for _, v := range returns {
			provide(v, p)
		}
	}
	for _, p := range aggregates {
		_, returns := dependencies(p)
		for _, v := range returns {
			settle(v, levels[p.ID()])
		}
	}

	changed := true
	for round := 0; changed; round++ {
		if round > len(providers) {
			return nil, fmt.Errorf("%w: %d providers did not settle", ErrStratificationCycle, len(providers))
		}
		changed = false
		for _, p := range providers {
			agg := isAggregate(p)
			deps, returns := dependencies(p)
			levelMax := 0
			for _, v := range deps {
				l := 0
				if info, ok := vars[v.ID]; ok {
					l = info.level
				}
				if agg {
					l++
				}
				levelMax = max(levelMax, l)
			}
			if levelMax > levels[p.ID()] {
				changed = true
				levels[p.ID()] = levelMax
				for _, v := range returns {
					settle(v, levelMax)
				}
			}
		}
	}

	grouped := make(map[int][]Provider)
	for _, p := range providers {
		grouped[levels[p.ID()]] = append(grouped[levels[p.ID()]], p)
	}
	order := make([]int, 0, len(grouped))
	for l := range grouped {
		order = append(order, l)
	}
	slices.Sort(order)

	strata := make([]*Stratum, 0, len(order))
	for _, l := range order {
		var aggs []Aggregator
		for _, p := range grouped[l] {
			if a, ok := p.(Aggregator); ok && p.Kind() == KindAggregate {
				aggs = append(aggs, a)
			}
		}
		strata = append(strata, NewStratum(grouped[l], aggs))
	}
	return strata, nil
}
