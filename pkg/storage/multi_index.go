package storage

import (
	"fmt"
	"slices"
)

// MultiIndex maps scope names to indexes. Scans and actions name the scopes
// they read or write, so several databases can be visible to one evaluation.
type MultiIndex struct {
	indexes map[string]*TripleIndex
	scopes  []string
}

// NewMultiIndex creates an empty scope registry.
func NewMultiIndex() *MultiIndex {
	return &MultiIndex{indexes: make(map[string]*TripleIndex)}
}

// Register binds name to index. Registering a name twice is an error.
func (m *MultiIndex) Register(name string, index *TripleIndex) error {
	if _, ok := m.indexes[name]; ok {
		return fmt.Errorf("%w: %q", ErrScopeRegistered, name)
	}
	m.indexes[name] = index
	m.scopes = append(m.scopes, name)
	return nil
}

// Unregister removes a scope.
func (m *MultiIndex) Unregister(name string) error {
	if _, ok := m.indexes[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScope, name)
	}
	delete(m.indexes, name)
	if i := slices.Index(m.scopes, name); i >= 0 {
		m.scopes = slices.Delete(m.scopes, i, i+1)
	}
	return nil
}

// Scopes returns the registered scope names in registration order.
func (m *MultiIndex) Scopes() []string {
	return slices.Clone(m.scopes)
}

// Index returns the index registered under name.
func (m *MultiIndex) Index(name string) (*TripleIndex, bool) {
	idx, ok := m.indexes[name]
	return idx, ok
}

// GetIndex returns the index for name, creating and registering an empty
// one when the scope is unknown.
func (m *MultiIndex) GetIndex(name string) *TripleIndex {
	if idx, ok := m.indexes[name]; ok {
		return idx
	}
	idx := NewTripleIndex()
	m.indexes[name] = idx
	m.scopes = append(m.scopes, name)
	return idx
}

// Contains reports whether any of the scopes holds the fact. A nil node
// matches any node.
func (m *MultiIndex) Contains(scopes []string, e, a, v, n Value) bool {
	for _, s := range scopes {
		if idx, ok := m.indexes[s]; ok && idx.Has(e, a, v, n) {
			return true
		}
	}
	return false
}

// Lookup runs an EAV lookup in every scope and returns the levels found.
func (m *MultiIndex) Lookup(scopes []string, e, a, v, n Value) []Level {
	return m.collect(scopes, func(t *TripleIndex) (Level, bool) { return t.Lookup(e, a, v, n) })
}

// ALookup runs an AVE lookup in every scope and returns the levels found.
func (m *MultiIndex) ALookup(scopes []string, a, v, e, n Value) []Level {
	return m.collect(scopes, func(t *TripleIndex) (Level, bool) { return t.ALookup(a, v, e, n) })
}

// NodeLookup runs a NEAV lookup in every scope and returns the levels found.
func (m *MultiIndex) NodeLookup(scopes []string, n, e, a, v Value) []Level {
	return m.collect(scopes, func(t *TripleIndex) (Level, bool) { return t.NodeLookup(n, e, a, v) })
}

func (m *MultiIndex) collect(scopes []string, fn func(*TripleIndex) (Level, bool)) []Level {
	var out []Level
	for _, s := range scopes {
		idx, ok := m.indexes[s]
		if !ok {
			continue
		}
		if lvl, ok := fn(idx); ok {
			out = append(out, lvl)
		}
	}
	return out
}

// CardinalityEstimate sums the estimates of the named scopes.
func (m *MultiIndex) CardinalityEstimate(scopes []string) int {
	total := 0
	for _, s := range scopes {
		if idx, ok := m.indexes[s]; ok {
			total += idx.CardinalityEstimate()
		}
	}
	return total
}

// Indexes returns the indexes registered under the given scopes, skipping
// unknown names.
func (m *MultiIndex) Indexes(scopes []string) []*TripleIndex {
	out := make([]*TripleIndex, 0, len(scopes))
	for _, s := range scopes {
		if idx, ok := m.indexes[s]; ok {
			out = append(out, idx)
		}
	}
	return out
}

// Store writes the fact into every named scope, creating unknown scopes.
func (m *MultiIndex) Store(scopes []string, e, a, v, n Value) {
	for _, s := range scopes {
		m.GetIndex(s).Store(e, a, v, n)
	}
}

// Unstore removes the fact from every named scope.
func (m *MultiIndex) Unstore(scopes []string, e, a, v, n Value) {
	for _, s := range scopes {
		if idx, ok := m.indexes[s]; ok {
			idx.Unstore(e, a, v, n)
		}
	}
}

// DangerousMergeLookup runs an EAV lookup in every registered scope and
// merges the child keys into one list. Scope boundaries are lost, so it is
// only suitable for approximate checks such as block dependency tags.
func (m *MultiIndex) DangerousMergeLookup(e, a, v Value) []Value {
	var out []Value
	for _, s := range m.scopes {
		if lvl, ok := m.indexes[s].Lookup(e, a, v, nil); ok {
			out = append(out, lvl.Keys()...)
		}
	}
	return out
}
