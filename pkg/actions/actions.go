// Package actions turns result rows into writes.
//
// An action names an entity, attribute and value, each either a constant or
// a variable resolved against the row, and records its write into a
// changes.Changes buffer. Writes become visible only when the buffer is
// committed.
package actions

import (
	"slices"

	"github.com/orneryd/eavdb/pkg/changes"
	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

// Action writes facts for one row.
type Action interface {
	ID() string
	Vars() []*join.Variable
	Execute(idx *storage.MultiIndex, row join.Prefix, ch *changes.Changes)
}

// Type selects what a Base action does.
type Type int

const (
	// Insert stores the fact under the action's node.
	Insert Type = iota
	// Remove retracts the fact from every node.
	Remove
	// RemoveSupport retracts only the action's own node.
	RemoveSupport
	// Set replaces every other value of (e, a) with v.
	Set
	// Erase retracts every value of a on e, or every attribute when a is
	// nil.
	Erase
)

func (t Type) String() string {
	switch t {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case RemoveSupport:
		return "remove-support"
	case Set:
		return "set"
	case Erase:
		return "erase"
	default:
		return "unknown"
	}
}

// Base is the action implementation shared by every Type.
type Base struct {
	id     string
	Type   Type
	E      join.Term
	A      join.Term
	V      join.Term
	Node   string
	Scopes []string
	vars   []*join.Variable
}

// New creates an action. An empty node defaults to id and no scopes
// default to storage.DefaultScope.
func New(typ Type, id string, e, a, v join.Term, node string, scopes ...string) *Base {
	if node == "" {
		node = id
	}
	if len(scopes) == 0 {
		scopes = []string{storage.DefaultScope}
	}
	return &Base{
		id:     id,
		Type:   typ,
		E:      normalizeTerm(e),
		A:      normalizeTerm(a),
		V:      normalizeTerm(v),
		Node:   node,
		Scopes: slices.Clone(scopes),
		vars:   join.VarsOf(e, a, v),
	}
}

func normalizeTerm(t join.Term) join.Term {
	if _, ok := join.AsVariable(t); ok {
		return t
	}
	return storage.Normalize(t)
}

func (b *Base) ID() string             { return b.id }
func (b *Base) Vars() []*join.Variable { return b.vars }

// Execute records the action's writes for row.
func (b *Base) Execute(idx *storage.MultiIndex, row join.Prefix, ch *changes.Changes) {
	e := join.ToValue(b.E, row)
	a := join.ToValue(b.A, row)
	v := join.ToValue(b.V, row)
	for _, scope := range b.Scopes {
		switch b.Type {
		case Insert:
			ch.Store(scope, e, a, v, b.Node)
		case Remove:
			ch.Unstore(scope, e, a, v, nil)
		case RemoveSupport:
			ch.Unstore(scope, e, a, v, b.Node)
		case Set:
			set(idx, ch, scope, e, a, v, b.Node)
		case Erase:
			erase(idx, ch, scope, e, a)
		}
	}
}

func set(idx *storage.MultiIndex, ch *changes.Changes, scope string, e, a, v storage.Value, node string) {
	if ti, ok := idx.Index(scope); ok && e != nil && a != nil {
		if lvl, ok := ti.Lookup(e, a, nil, nil); ok {
			for _, cur := range slices.Clone(lvl.Keys()) {
				if cur != v {
					ch.Unstore(scope, e, a, cur, nil)
				}
			}
		}
	}
	ch.Store(scope, e, a, v, node)
}

func erase(idx *storage.MultiIndex, ch *changes.Changes, scope string, e, a storage.Value) {
	ti, ok := idx.Index(scope)
	if !ok || e == nil {
		return
	}
	lvl, ok := ti.Lookup(e, nil, nil, nil)
	if !ok {
		return
	}
	attrs := []storage.Value{a}
	if a == nil {
		attrs = slices.Clone(lvl.Keys())
	}
	for _, attr := range attrs {
		al, ok := lvl.Child(attr)
		if !ok {
			continue
		}
		for _, v := range slices.Clone(al.Keys()) {
			ch.Unstore(scope, e, attr, v, nil)
		}
	}
}

// ExecuteAll runs every action over every row.
func ExecuteAll(idx *storage.MultiIndex, actions []Action, rows []join.Prefix, ch *changes.Changes) {
	for _, row := range rows {
		for _, act := range actions {
			act.Execute(idx, row, ch)
		}
	}
}

// ExecuteCapture runs the actions like ExecuteAll and returns the writes
// they recorded.
func ExecuteCapture(idx *storage.MultiIndex, actions []Action, rows []join.Prefix, ch *changes.Changes) *changes.ChangesIndex {
	ch.Capture()
	ExecuteAll(idx, actions, rows, ch)
	return ch.CaptureEnd()
}

// Vars returns every variable the actions read.
func Vars(actions []Action) []*join.Variable {
	var vars []*join.Variable
	for _, act := range actions {
		vars = join.MergeVars(vars, act.Vars())
	}
	return vars
}
