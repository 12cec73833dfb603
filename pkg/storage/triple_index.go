package storage

import (
	"fmt"
	"maps"
	"slices"
)

// nodeID addresses a level inside the arena shared by an index and its
// snapshots. Leaf entries map to noNode.
type nodeID int32

const noNode nodeID = -1

// depth of the deepest key position in every ordering
const leafDepth = 3

type level struct {
	version  uint64
	value    Value
	keys     []Value
	children map[Value]nodeID
	card     int // facts beneath this level
}

func (lv *level) add(key Value, child nodeID) {
	lv.children[key] = child
	lv.keys = append(lv.keys, key)
}

func (lv *level) del(key Value) {
	delete(lv.children, key)
	if i := slices.Index(lv.keys, key); i >= 0 {
		lv.keys = slices.Delete(lv.keys, i, i+1)
	}
}

// arena owns every level of an index family. Levels are tagged with the
// version of the index that created them; an index only mutates levels that
// carry its own version and clones everything else first.
type arena struct {
	levels  []level
	free    []nodeID
	version uint64
}

func (a *arena) next() uint64 {
	a.version++
	return a.version
}

func (a *arena) alloc(version uint64, value Value) nodeID {
	lv := level{version: version, value: value, children: make(map[Value]nodeID)}
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.levels[id] = lv
		return id
	}
	a.levels = append(a.levels, lv)
	return nodeID(len(a.levels) - 1)
}

func (a *arena) clone(id nodeID, version uint64) nodeID {
	src := a.levels[id]
	nid := a.alloc(version, src.value)
	dst := &a.levels[nid]
	dst.keys = slices.Clone(src.keys)
	dst.children = maps.Clone(src.children)
	dst.card = src.card
	return nid
}

func (a *arena) release(id nodeID) {
	a.levels[id] = level{}
	a.free = append(a.free, id)
}

// TripleIndex stores facts under the EAV, AVE and NEAV orderings.
//
// A TripleIndex is not safe for concurrent mutation. Snapshots share storage
// with their source, so a snapshot and its source must also not be written
// from different goroutines.
type TripleIndex struct {
	arena   *arena
	version uint64
	eav     nodeID
	ave     nodeID
	neav    nodeID
}

// NewTripleIndex creates an empty index.
func NewTripleIndex() *TripleIndex {
	a := &arena{}
	v := a.next()
	return &TripleIndex{
		arena:   a,
		version: v,
		eav:     a.alloc(v, nil),
		ave:     a.alloc(v, nil),
		neav:    a.alloc(v, nil),
	}
}

// Version identifies the current state of the index. It changes on every
// Snapshot.
func (t *TripleIndex) Version() uint64 {
	return t.version
}

// Snapshot returns a logical copy of the index. Both the copy and the
// receiver clone any shared level before writing to it, so neither observes
// the other's later writes.
func (t *TripleIndex) Snapshot() *TripleIndex {
	cp := *t
	cp.version = t.arena.next()
	t.version = t.arena.next()
	return &cp
}

// Store records a fact. A nil node is stored as DefaultNode. It reports
// whether the fact was new; storing an existing fact is a no-op.
func (t *TripleIndex) Store(e, a, v, n Value) bool {
	if e == nil || a == nil || v == nil {
		return false
	}
	if n == nil {
		n = DefaultNode
	}
	if t.Has(e, a, v, n) {
		return false
	}
	t.eav = t.insert(t.eav, [4]Value{e, a, v, n}, 0)
	t.ave = t.insert(t.ave, [4]Value{a, v, e, n}, 0)
	t.neav = t.insert(t.neav, [4]Value{n, e, a, v}, 0)
	return true
}

// Unstore removes a fact. A nil node means DefaultNode. Levels left empty
// by the removal are released. It reports whether the fact was present.
func (t *TripleIndex) Unstore(e, a, v, n Value) bool {
	if n == nil {
		n = DefaultNode
	}
	if e == nil || a == nil || v == nil || !t.Has(e, a, v, n) {
		return false
	}
	t.eav, _ = t.remove(t.eav, [4]Value{e, a, v, n}, 0)
	t.ave, _ = t.remove(t.ave, [4]Value{a, v, e, n}, 0)
	t.neav, _ = t.remove(t.neav, [4]Value{n, e, a, v}, 0)
	return true
}

func (t *TripleIndex) own(id nodeID) nodeID {
	if t.arena.levels[id].version == t.version {
		return id
	}
	return t.arena.clone(id, t.version)
}

func (t *TripleIndex) insert(id nodeID, path [4]Value, depth int) nodeID {
	id = t.own(id)
	key := path[depth]
	if depth == leafDepth {
		lv := &t.arena.levels[id]
		lv.add(key, noNode)
		lv.card++
		return id
	}
	child, ok := t.arena.levels[id].children[key]
	if !ok {
		child = t.arena.alloc(t.version, key)
	}
	child = t.insert(child, path, depth+1)
	lv := &t.arena.levels[id]
	if ok {
		lv.children[key] = child
	} else {
		lv.add(key, child)
	}
	lv.card++
	return id
}

// remove deletes path below id. The second result reports whether the
// level at id is now empty.
func (t *TripleIndex) remove(id nodeID, path [4]Value, depth int) (nodeID, bool) {
	id = t.own(id)
	key := path[depth]
	if depth < leafDepth {
		child, empty := t.remove(t.arena.levels[id].children[key], path, depth+1)
		if !empty {
			lv := &t.arena.levels[id]
			lv.children[key] = child
			lv.card--
			return id, false
		}
		t.arena.release(child)
	}
	lv := &t.arena.levels[id]
	lv.del(key)
	lv.card--
	return id, len(lv.keys) == 0
}

// Has reports whether the fact is stored. A nil node matches any node.
func (t *TripleIndex) Has(e, a, v, n Value) bool {
	if e == nil || a == nil || v == nil {
		return false
	}
	_, ok := t.Lookup(e, a, v, n)
	return ok
}

// Lookup walks the EAV ordering. Keys are consumed left to right and the
// walk stops at the first nil key, so Lookup(e, nil, nil, nil) returns the
// attribute level of e and Lookup(nil, nil, nil, nil) returns the root.
func (t *TripleIndex) Lookup(e, a, v, n Value) (Level, bool) {
	return t.walk(t.eav, e, a, v, n)
}

// ALookup walks the AVE ordering.
func (t *TripleIndex) ALookup(a, v, e, n Value) (Level, bool) {
	return t.walk(t.ave, a, v, e, n)
}

// NodeLookup walks the NEAV ordering.
func (t *TripleIndex) NodeLookup(n, e, a, v Value) (Level, bool) {
	return t.walk(t.neav, n, e, a, v)
}

func (t *TripleIndex) walk(root nodeID, keys ...Value) (Level, bool) {
	cur := Level{index: t, id: root}
	for _, k := range keys {
		if k == nil {
			break
		}
		next, ok := cur.Child(k)
		if !ok {
			return Level{}, false
		}
		cur = next
	}
	return cur, true
}

// EAV returns the root of the EAV ordering.
func (t *TripleIndex) EAV() Level { return Level{index: t, id: t.eav} }

// AVE returns the root of the AVE ordering.
func (t *TripleIndex) AVE() Level { return Level{index: t, id: t.ave} }

// NEAV returns the root of the NEAV ordering.
func (t *TripleIndex) NEAV() Level { return Level{index: t, id: t.neav} }

// Len returns the number of stored facts.
func (t *TripleIndex) Len() int {
	return t.arena.levels[t.eav].card
}

// CardinalityEstimate is the cost assigned to an unconstrained scan of the
// index.
func (t *TripleIndex) CardinalityEstimate() int {
	return t.Len()
}

// ToFacts lists every stored fact in EAV order. When withNodes is false,
// facts that differ only by node are reported once with a nil node.
func (t *TripleIndex) ToFacts(withNodes bool) []Fact {
	facts := make([]Fact, 0, t.Len())
	root := t.EAV()
	for _, e := range root.Keys() {
		el, _ := root.Child(e)
		for _, a := range el.Keys() {
			al, _ := el.Child(a)
			for _, v := range al.Keys() {
				if !withNodes {
					facts = append(facts, Fact{E: e, A: a, V: v})
					continue
				}
				vl, _ := al.Child(v)
				for _, n := range vl.Keys() {
					facts = append(facts, Fact{E: e, A: a, V: v, N: n})
				}
			}
		}
	}
	return facts
}

// AsValues returns the distinct values of attribute a on entity e.
func (t *TripleIndex) AsValues(e, a Value) []Value {
	if e == nil || a == nil {
		return nil
	}
	lvl, ok := t.Lookup(e, a, nil, nil)
	if !ok {
		return nil
	}
	return slices.Clone(lvl.Keys())
}

// AsObject returns every attribute of e with its distinct values.
func (t *TripleIndex) AsObject(e Value) map[Value][]Value {
	if e == nil {
		return nil
	}
	lvl, ok := t.Lookup(e, nil, nil, nil)
	if !ok {
		return nil
	}
	obj := make(map[Value][]Value, lvl.Len())
	for _, a := range lvl.Keys() {
		al, _ := lvl.Child(a)
		obj[a] = slices.Clone(al.Keys())
	}
	return obj
}

// CheckConsistency verifies that the three orderings hold the same facts,
// that no empty level persists below a root and that every level's size
// equals the number of facts beneath it.
func (t *TripleIndex) CheckConsistency() error {
	facts := t.ToFacts(true)
	for _, f := range facts {
		if _, ok := t.ALookup(f.A, f.V, f.E, f.N); !ok {
			return fmt.Errorf("%w: %s missing from AVE", ErrIndexMismatch, f)
		}
		if _, ok := t.NodeLookup(f.N, f.E, f.A, f.V); !ok {
			return fmt.Errorf("%w: %s missing from NEAV", ErrIndexMismatch, f)
		}
	}
	for name, root := range map[string]Level{"EAV": t.EAV(), "AVE": t.AVE(), "NEAV": t.NEAV()} {
		n, err := checkLevel(root, 0)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if n != len(facts) {
			return fmt.Errorf("%w: %s holds %d facts, EAV holds %d", ErrIndexMismatch, name, n, len(facts))
		}
	}
	return nil
}

func checkLevel(l Level, depth int) (int, error) {
	if depth > 0 && l.Len() == 0 {
		return 0, fmt.Errorf("%w at depth %d (%v)", ErrEmptyLevel, depth, l.Value())
	}
	if depth == leafDepth {
		if l.Size() != l.Len() {
			return 0, fmt.Errorf("%w at leaf %v", ErrCardinality, l.Value())
		}
		return l.Len(), nil
	}
	total := 0
	for _, k := range l.Keys() {
		child, _ := l.Child(k)
		n, err := checkLevel(child, depth+1)
		if err != nil {
			return 0, err
		}
		total += n
	}
	if total != l.Size() {
		return 0, fmt.Errorf("%w: level %v reports %d, holds %d", ErrCardinality, l.Value(), l.Size(), total)
	}
	return total, nil
}

// Level is a read-only view of one level of an ordering. The slice returned
// by Keys must not be modified and is only valid until the next write to
// the index.
type Level struct {
	index *TripleIndex
	id    nodeID
	value Value
}

// Value returns the key this level is stored under. Roots have a nil value.
func (l Level) Value() Value { return l.value }

// IsLeaf reports whether the level is a node entry with nothing beneath it.
func (l Level) IsLeaf() bool { return l.index == nil || l.id == noNode }

// Keys returns the child keys in insertion order.
func (l Level) Keys() []Value {
	if l.IsLeaf() {
		return nil
	}
	return l.index.arena.levels[l.id].keys
}

// Len returns the number of child keys.
func (l Level) Len() int {
	return len(l.Keys())
}

// Cardinality returns the number of distinct children, the cost estimate
// used when a scan proposes this level's keys.
func (l Level) Cardinality() int {
	return l.Len()
}

// Size returns the number of facts stored beneath the level. A leaf stands
// for exactly one fact.
func (l Level) Size() int {
	if l.index == nil {
		return 0
	}
	if l.id == noNode {
		return 1
	}
	return l.index.arena.levels[l.id].card
}

// Has reports whether key is a child of the level.
func (l Level) Has(key Value) bool {
	if l.IsLeaf() {
		return false
	}
	_, ok := l.index.arena.levels[l.id].children[key]
	return ok
}

// Child returns the level stored under key.
func (l Level) Child(key Value) (Level, bool) {
	if l.IsLeaf() {
		return Level{}, false
	}
	id, ok := l.index.arena.levels[l.id].children[key]
	if !ok {
		return Level{}, false
	}
	return Level{index: l.index, id: id, value: key}, true
}
