// Package changes buffers writes made during an evaluation.
//
// Blocks never write to the MultiIndex directly. Every store and unstore is
// recorded in the ChangesIndex of the current round and only applied by
// Changes.Commit, so a block always reads the facts committed before the
// round started. Committed writes are also folded into a cumulative counter
// from which the externally visible diff of a whole fixpoint is derived.
package changes

import (
	"fmt"

	"github.com/orneryd/eavdb/pkg/storage"
)

// ChangeType is the state of a key within one round.
type ChangeType int

const (
	// Added means the key was stored.
	Added ChangeType = iota
	// Removed means the key was unstored.
	Removed
	// AddedRemoved means the key was both stored and unstored in the same
	// round. It is a net no-op and is skipped by Commit.
	AddedRemoved
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case AddedRemoved:
		return "added-removed"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// Key identifies one fact in one scope.
type Key struct {
	Scope string
	E     storage.Value
	A     storage.Value
	V     storage.Value
	N     storage.Value
}

func (k Key) String() string {
	return fmt.Sprintf("%s%s", k.Scope, storage.Fact{E: k.E, A: k.A, V: k.V, N: k.N})
}

// Entry is a key with its state. Type is used by round buffers, Count by
// cumulative counters.
type Entry struct {
	Key
	Type  ChangeType
	Count int
}

// ChangesIndex maps keys to their state, remembering the order in which
// keys were first seen.
type ChangesIndex struct {
	entries   []Entry
	positions map[Key]int
}

// NewChangesIndex creates an empty buffer.
func NewChangesIndex() *ChangesIndex {
	return &ChangesIndex{positions: make(map[Key]int)}
}

func (c *ChangesIndex) entry(k Key) (*Entry, bool) {
	if pos, ok := c.positions[k]; ok {
		return &c.entries[pos], true
	}
	c.positions[k] = len(c.entries)
	c.entries = append(c.entries, Entry{Key: k})
	return &c.entries[len(c.entries)-1], false
}

// Store records an add. An add after a remove in the same buffer cancels
// out.
func (c *ChangesIndex) Store(k Key) {
	e, found := c.entry(k)
	switch {
	case !found:
		e.Type = Added
	case e.Type == Removed:
		e.Type = AddedRemoved
	}
}

// Unstore records a remove. A remove after an add in the same buffer
// cancels out.
func (c *ChangesIndex) Unstore(k Key) {
	e, found := c.entry(k)
	switch {
	case !found:
		e.Type = Removed
	case e.Type == Added:
		e.Type = AddedRemoved
	}
}

// Inc increments the counter of k.
func (c *ChangesIndex) Inc(k Key) {
	e, _ := c.entry(k)
	e.Count++
}

// Dec decrements the counter of k.
func (c *ChangesIndex) Dec(k Key) {
	e, _ := c.entry(k)
	e.Count--
}

// Lookup returns the entry for k.
func (c *ChangesIndex) Lookup(k Key) (Entry, bool) {
	pos, ok := c.positions[k]
	if !ok {
		return Entry{}, false
	}
	return c.entries[pos], true
}

// Len returns the number of distinct keys.
func (c *ChangesIndex) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Each calls fn for every entry in first-seen order.
func (c *ChangesIndex) Each(fn func(Entry)) {
	if c == nil {
		return
	}
	for _, e := range c.entries {
		fn(e)
	}
}
