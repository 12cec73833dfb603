package block

import (
	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

// TagAttribute is the attribute the dependency checker buckets entities by.
const TagAttribute = "tag"

// attrDeps is the set of values a block filters an attribute on. any means
// every value matters.
type attrDeps struct {
	any    bool
	values map[storage.Value]struct{}
}

func (d *attrDeps) matches(v storage.Value) bool {
	if d.any {
		return true
	}
	_, ok := d.values[v]
	return ok
}

// entityInfo collects what the scans on one entity variable look at.
type entityInfo struct {
	any        bool
	attributes map[storage.Value]*attrInfo
	order      []storage.Value
}

type attrInfo struct {
	any    bool
	values []storage.Value
}

// DependencyChecker decides whether a committed change can affect a block.
//
// It is built once from the block's scans, including the bodies of
// negations and choices. Scans are grouped by entity variable, and each
// group's (attribute, value) filters are filed under every constant tag the
// same entity is scanned for. Groups without a tag, and scans on constant
// entities, land in the untagged bucket.
type DependencyChecker struct {
	// AlwaysTrue is set for blocks that have to run on every change.
	AlwaysTrue bool

	untagged map[storage.Value]*attrDeps
	tagged   map[storage.Value]map[storage.Value]*attrDeps
}

// NewDependencyChecker builds the checker for strata. alwaysTrue forces
// every check to pass.
func NewDependencyChecker(strata []*join.Stratum, alwaysTrue bool) *DependencyChecker {
	c := &DependencyChecker{
		AlwaysTrue: alwaysTrue,
		untagged:   make(map[storage.Value]*attrDeps),
		tagged:     make(map[storage.Value]map[storage.Value]*attrDeps),
	}
	entities := make(map[*join.Variable]*entityInfo)
	constant := &entityInfo{attributes: make(map[storage.Value]*attrInfo)}
	var order []*entityInfo
	order = append(order, constant)
	var walk func(strata []*join.Stratum)
	walk = func(strata []*join.Stratum) {
		for _, st := range strata {
			for _, p := range st.Providers {
				switch p.Kind() {
				case join.KindScan:
					scan, ok := p.(*join.Scan)
					if !ok {
						c.AlwaysTrue = true
						continue
					}
					cur := constant
					if ev, ok := join.AsVariable(scan.E); ok {
						cur = entities[ev]
						if cur == nil {
							cur = &entityInfo{attributes: make(map[storage.Value]*attrInfo)}
							entities[ev] = cur
							order = append(order, cur)
						}
					}
					cur.add(scan.A, scan.V)
				case join.KindNot:
					if n, ok := p.(*join.NotScan); ok {
						walk(n.Strata)
					}
				case join.KindIf:
					if s, ok := p.(*join.IfScan); ok {
						for _, b := range s.Branches {
							walk(b.Strata)
						}
					}
				case join.KindConstraint, join.KindAggregate:
				}
			}
		}
	}
	walk(strata)
	for _, info := range order {
		c.addEntity(info)
	}
	return c
}

func (e *entityInfo) add(a, v join.Term) {
	if _, ok := join.AsVariable(a); ok {
		e.any = true
		return
	}
	info := e.attributes[a]
	if info == nil {
		info = &attrInfo{}
		e.attributes[a] = info
		e.order = append(e.order, a)
	}
	if _, ok := join.AsVariable(v); ok {
		info.any = true
		return
	}
	info.values = append(info.values, v)
}

func (c *DependencyChecker) addEntity(info *entityInfo) {
	if info.any {
		c.AlwaysTrue = true
	}
	tags := info.attributes[TagAttribute]
	if tags == nil || tags.any {
		fileAttributes(c.untagged, info)
		return
	}
	tagDeps := c.untagged[TagAttribute]
	if tagDeps == nil {
		tagDeps = &attrDeps{values: make(map[storage.Value]struct{})}
		c.untagged[TagAttribute] = tagDeps
	}
	for _, tag := range tags.values {
		if tagDeps.any {
			break
		}
		tagDeps.values[tag] = struct{}{}
		bucket := c.tagged[tag]
		if bucket == nil {
			bucket = make(map[storage.Value]*attrDeps)
			c.tagged[tag] = bucket
		}
		fileAttributes(bucket, info)
	}
}

func fileAttributes(bucket map[storage.Value]*attrDeps, info *entityInfo) {
	for _, a := range info.order {
		ai := info.attributes[a]
		d := bucket[a]
		if d == nil {
			d = &attrDeps{values: make(map[storage.Value]struct{})}
			bucket[a] = d
		}
		if ai.any || d.any {
			d.any = true
			continue
		}
		for _, v := range ai.values {
			d.values[v] = struct{}{}
		}
	}
}

// Check reports whether a change to (e, a, v) can affect the block. tags
// are the tags e currently holds across every scope.
func (c *DependencyChecker) Check(tags []storage.Value, e, a, v storage.Value) bool {
	if c.AlwaysTrue {
		return true
	}
	if d := c.untagged[a]; d != nil && d.matches(v) {
		return true
	}
	for _, tag := range tags {
		if d := c.tagged[tag][a]; d != nil && d.matches(v) {
			return true
		}
	}
	return false
}

// Tags returns the tags e holds in any registered scope.
func Tags(idx *storage.MultiIndex, e storage.Value) []storage.Value {
	return idx.DangerousMergeLookup(e, TagAttribute, nil)
}
