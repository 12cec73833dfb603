package changes

import (
	"fmt"
	"slices"

	"github.com/orneryd/eavdb/pkg/storage"
)

// Commit is one write that Changes.Commit applied to the index.
type Commit struct {
	Type  ChangeType
	Scope string
	E     storage.Value
	A     storage.Value
	V     storage.Value
	N     storage.Value
}

func (c Commit) String() string {
	return fmt.Sprintf("%s %s%s", c.Type, c.Scope, storage.Fact{E: c.E, A: c.A, V: c.V, N: c.N})
}

// Triple is an (entity, attribute, value) tuple as reported to clients.
type Triple [3]storage.Value

// Result is the net diff of a fixpoint.
type Result struct {
	Type   string   `json:"type" yaml:"type"`
	Insert []Triple `json:"insert" yaml:"insert"`
	Remove []Triple `json:"remove" yaml:"remove"`
}

// Changes collects the writes of one fixpoint, round by round.
//
// Changes is not safe for concurrent use.
type Changes struct {
	// Round is the index of the current round buffer.
	Round int
	// Changed reports whether a Commit in the current round modified the
	// index.
	Changed bool

	index    *storage.MultiIndex
	rounds   []*ChangesIndex
	final    *ChangesIndex
	captured *ChangesIndex
}

// New creates a change set over idx, positioned at round 0.
func New(idx *storage.MultiIndex) *Changes {
	return &Changes{
		index:  idx,
		rounds: []*ChangesIndex{NewChangesIndex()},
		final:  NewChangesIndex(),
	}
}

// Index returns the index the changes are committed to.
func (c *Changes) Index() *storage.MultiIndex { return c.index }

// Current returns the buffer of the current round.
func (c *Changes) Current() *ChangesIndex { return c.rounds[c.Round] }

// Final returns the cumulative counter of committed writes.
func (c *Changes) Final() *ChangesIndex { return c.final }

// Capture starts recording writes into a side buffer in addition to the
// round buffer. Blocks use it to learn what their bind actions produced.
func (c *Changes) Capture() {
	c.captured = NewChangesIndex()
}

// CaptureEnd stops capturing and returns what was recorded.
func (c *Changes) CaptureEnd() *ChangesIndex {
	cur := c.captured
	c.captured = nil
	return cur
}

// Store records that the fact should exist. A nil node stands for
// storage.DefaultNode. Facts with an unbound position are ignored.
func (c *Changes) Store(scope string, e, a, v, n storage.Value) {
	if e == nil || a == nil || v == nil {
		return
	}
	if n == nil {
		n = storage.DefaultNode
	}
	k := Key{Scope: scope, E: e, A: a, V: v, N: n}
	c.rounds[c.Round].Store(k)
	if c.captured != nil {
		c.captured.Store(k)
	}
}

// Unstore records that the fact should no longer exist. With a nil node
// every node currently supporting (e, a, v) in scope is removed.
func (c *Changes) Unstore(scope string, e, a, v, n storage.Value) {
	if e == nil || a == nil || v == nil {
		return
	}
	if n == nil {
		idx, ok := c.index.Index(scope)
		if !ok {
			return
		}
		lvl, ok := idx.Lookup(e, a, v, nil)
		if !ok {
			return
		}
		for _, node := range slices.Clone(lvl.Keys()) {
			c.Unstore(scope, e, a, v, node)
		}
		return
	}
	k := Key{Scope: scope, E: e, A: a, V: v, N: n}
	c.rounds[c.Round].Unstore(k)
	if c.captured != nil {
		c.captured.Unstore(k)
	}
}

// Commit applies the current round to the index. Entries are only applied
// when the index disagrees with them, so committing twice is harmless.
// It returns the writes that took effect.
func (c *Changes) Commit() []Commit {
	var committed []Commit
	c.rounds[c.Round].Each(func(en Entry) {
		if en.Type == AddedRemoved {
			return
		}
		k := en.Key
		idx := c.index.GetIndex(k.Scope)
		has := idx.Has(k.E, k.A, k.V, k.N)
		switch {
		case en.Type == Removed && has:
			idx.Unstore(k.E, k.A, k.V, k.N)
			c.final.Dec(k)
		case en.Type == Added && !has:
			idx.Store(k.E, k.A, k.V, k.N)
			c.final.Inc(k)
		default:
			return
		}
		c.Changed = true
		committed = append(committed, Commit{Type: en.Type, Scope: k.Scope, E: k.E, A: k.A, V: k.V, N: k.N})
	})
	return committed
}

// NextRound opens a fresh round buffer.
func (c *Changes) NextRound() {
	c.Round++
	c.Changed = false
	c.rounds = append(c.rounds, NewChangesIndex())
}

func scopeFilter(scopes []string) func(string) bool {
	if len(scopes) == 0 {
		return func(string) bool { return true }
	}
	return func(s string) bool { return slices.Contains(scopes, s) }
}

// ToCommitted returns the net committed writes of the whole fixpoint,
// restricted to scopes when any are given. Other evaluations sharing a
// database replay these to learn what changed.
func (c *Changes) ToCommitted(scopes ...string) []Commit {
	keep := scopeFilter(scopes)
	var out []Commit
	c.final.Each(func(en Entry) {
		if en.Count == 0 || !keep(en.Scope) {
			return
		}
		typ := Removed
		if en.Count > 0 {
			typ = Added
		}
		out = append(out, Commit{Type: typ, Scope: en.Scope, E: en.E, A: en.A, V: en.V, N: en.N})
	})
	return out
}

// Result returns the externally visible diff. A triple is inserted when
// its counter is positive and some node still supports it, and removed
// when its counter is negative and no node supports it any more.
func (c *Changes) Result(scopes ...string) Result {
	keep := scopeFilter(scopes)
	res := Result{Type: "result", Insert: []Triple{}, Remove: []Triple{}}
	inserted := make(map[Triple]struct{})
	removed := make(map[Triple]struct{})
	c.final.Each(func(en Entry) {
		if !keep(en.Scope) {
			return
		}
		t := Triple{en.E, en.A, en.V}
		supported := c.index.Contains([]string{en.Scope}, en.E, en.A, en.V, nil)
		switch {
		case en.Count < 0 && !supported:
			if _, ok := removed[t]; !ok {
				removed[t] = struct{}{}
				res.Remove = append(res.Remove, t)
			}
		case en.Count > 0 && supported:
			if _, ok := inserted[t]; !ok {
				inserted[t] = struct{}{}
				res.Insert = append(res.Insert, t)
			}
		}
	})
	return res
}

// StoreObject stores every attribute of object on entity id. Slice values
// store one fact per element.
func (c *Changes) StoreObject(id string, object map[string]any, node, scope string) error {
	return c.eachObjectFact(id, object, func(a, v storage.Value) {
		c.Store(scope, id, a, v, node)
	})
}

// UnstoreObject removes every attribute of object from entity id.
func (c *Changes) UnstoreObject(id string, object map[string]any, node, scope string) error {
	return c.eachObjectFact(id, object, func(a, v storage.Value) {
		c.Unstore(scope, id, a, v, node)
	})
}

func (c *Changes) eachObjectFact(id string, object map[string]any, fn func(a, v storage.Value)) error {
	attrs := make([]string, 0, len(object))
	for a := range object {
		attrs = append(attrs, a)
	}
	slices.Sort(attrs)
	for _, a := range attrs {
		values, err := objectValues(object[a])
		if err != nil {
			return fmt.Errorf("%w: %s.%s", err, id, a)
		}
		for _, v := range values {
			fn(a, v)
		}
	}
	return nil
}

func objectValues(raw any) ([]storage.Value, error) {
	switch x := raw.(type) {
	case nil:
		return nil, ErrNotAValue
	case []any:
		out := make([]storage.Value, 0, len(x))
		for _, item := range x {
			v, err := scalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case []string:
		out := make([]storage.Value, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]storage.Value, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, nil
	default:
		v, err := scalar(raw)
		if err != nil {
			return nil, err
		}
		return []storage.Value{v}, nil
	}
}

func scalar(raw any) (storage.Value, error) {
	switch raw.(type) {
	case nil, map[string]any, []any, map[any]any:
		return nil, ErrNotAValue
	}
	v := storage.Normalize(raw)
	if _, ok := v.(string); ok {
		if _, isString := raw.(string); !isString {
			return nil, ErrNotAValue
		}
	}
	return v, nil
}
