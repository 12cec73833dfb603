// Package join implements Generic Join over a storage.MultiIndex.
//
// A query is a set of providers (scans, constraints, aggregates, negations
// and choices) over shared variables. Join solves one variable at a time:
// every provider proposes a candidate set for a variable it could bind, the
// proposal with the lowest cardinality wins, and every other provider then
// accepts or rejects each candidate before the next round.
//
// Providers with aggregate semantics cannot run until their inputs are
// complete, so a query is first split into strata with Stratify and the
// strata are executed in order, each one extending the rows of the last.
package join

import (
	"encoding/json"
	"fmt"

	"github.com/orneryd/eavdb/pkg/storage"
)

// Variable is a query variable. IDs are dense small integers assigned by the
// builder; they index into a Prefix.
type Variable struct {
	ID   int
	Name string
}

func (v *Variable) String() string {
	if v.Name != "" {
		return "?" + v.Name
	}
	return fmt.Sprintf("?%d", v.ID)
}

// Term is either a *Variable or a constant storage.Value.
type Term = any

// AsVariable returns t as a variable.
func AsVariable(t Term) (*Variable, bool) {
	v, ok := t.(*Variable)
	return v, ok && v != nil
}

// ToValue resolves t against prefix. Unbound variables resolve to nil.
func ToValue(t Term, prefix Prefix) storage.Value {
	if v, ok := t.(*Variable); ok {
		return prefix.Get(v)
	}
	return t
}

// ResolveTerms resolves every term, reusing out when it has room.
func ResolveTerms(terms []Term, prefix Prefix, out []storage.Value) []storage.Value {
	out = out[:0]
	for _, t := range terms {
		out = append(out, ToValue(t, prefix))
	}
	return out
}

// AllBound reports whether no value is nil.
func AllBound(values []storage.Value) bool {
	for _, v := range values {
		if v == nil {
			return false
		}
	}
	return true
}

// VarsOf returns the distinct variables among terms in first-seen order.
func VarsOf(terms ...Term) []*Variable {
	var out []*Variable
	for _, t := range terms {
		if v, ok := AsVariable(t); ok && !HasVar(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// MergeVars appends the variables of more to vars, skipping duplicates.
func MergeVars(vars []*Variable, more ...[]*Variable) []*Variable {
	for _, m := range more {
		for _, v := range m {
			if !HasVar(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	return vars
}

// HasVar reports whether v is in vars. A nil v is never present.
func HasVar(vars []*Variable, v *Variable) bool {
	if v == nil {
		return false
	}
	for _, x := range vars {
		if x.ID == v.ID {
			return true
		}
	}
	return false
}

// PrefixSize returns the prefix length needed to hold every variable.
func PrefixSize(vars []*Variable) int {
	size := 0
	for _, v := range vars {
		if v.ID+1 > size {
			size = v.ID + 1
		}
	}
	return size
}

// TupleKey encodes values into a string usable as a map key. Values of
// different types never collide: "1" and 1 encode differently.
func TupleKey(values []storage.Value) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return fmt.Sprint(values)
	}
	return string(b)
}

// Prefix is a partial row indexed by Variable.ID. A nil slot is unbound.
type Prefix []storage.Value

// NewPrefix returns an empty prefix with room for size variables.
func NewPrefix(size int) Prefix {
	return make(Prefix, size)
}

// Get returns the value bound to v, or nil.
func (p Prefix) Get(v *Variable) storage.Value {
	if v == nil || v.ID >= len(p) {
		return nil
	}
	return p[v.ID]
}

// Set binds v. The prefix must already be large enough.
func (p Prefix) Set(v *Variable, value storage.Value) {
	p[v.ID] = value
}

// Clone returns an independent copy.
func (p Prefix) Clone() Prefix {
	out := make(Prefix, len(p))
	copy(out, p)
	return out
}

// Grow returns a copy of p with at least size slots.
func (p Prefix) Grow(size int) Prefix {
	if size < len(p) {
		size = len(p)
	}
	out := make(Prefix, size)
	copy(out, p)
	return out
}

// Bound reports whether every variable is bound.
func (p Prefix) Bound(vars []*Variable) bool {
	for _, v := range vars {
		if p.Get(v) == nil {
			return false
		}
	}
	return true
}
