// Package block holds the executable unit of a program.
//
// A Block runs its strata through Generic Join, then turns the resulting
// rows into writes. Commit actions write and forget. Bind actions keep
// track of what they derived so that facts no longer derived on a later
// execution are retracted.
package block

import (
	"sync/atomic"

	"github.com/orneryd/eavdb/pkg/actions"
	"github.com/orneryd/eavdb/pkg/changes"
	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

var blockID atomic.Int64

// Block is a compiled rule.
//
// Blocks keep scratch state between executions and must not be executed
// concurrently.
type Block struct {
	ID            int64
	Name          string
	Strata        []*join.Stratum
	CommitActions []actions.Action
	BindActions   []actions.Action
	Vars          []*join.Variable

	// SingleRun is set when the block reads nothing from the index; it runs
	// once and then goes dormant.
	SingleRun bool
	Dormant   bool
	Checker   *DependencyChecker

	// Results holds the rows of the last execution.
	Results []join.Prefix

	prevInserts *changes.ChangesIndex
}

// New creates a block from already stratified strata.
func New(name string, strata []*join.Stratum, commit, bind []actions.Action) *Block {
	b := &Block{
		ID:            blockID.Add(1),
		Name:          name,
		Strata:        strata,
		CommitActions: commit,
		BindActions:   bind,
		SingleRun:     !hasDatabaseScan(strata),
		prevInserts:   changes.NewChangesIndex(),
	}
	b.Vars = join.MergeVars(join.StrataVars(strata), actions.Vars(commit), actions.Vars(bind))
	b.Checker = NewDependencyChecker(strata, b.SingleRun)
	return b
}

// hasDatabaseScan reports whether any provider reads the index.
func hasDatabaseScan(strata []*join.Stratum) bool {
	for _, st := range strata {
		for _, p := range st.Providers {
			switch p.Kind() {
			case join.KindScan, join.KindNot, join.KindIf:
				return true
			case join.KindConstraint, join.KindAggregate:
			}
		}
	}
	return false
}

// Execute runs the block against idx and records its writes in ch.
func (b *Block) Execute(idx *storage.MultiIndex, ch *changes.Changes) {
	if b.Dormant {
		return
	}
	if b.SingleRun {
		b.Dormant = true
	}
	rows := []join.Prefix{join.NewPrefix(join.PrefixSize(b.Vars))}
	for _, st := range b.Strata {
		rows = st.Execute(idx, rows, join.Options{})
		if len(rows) == 0 {
			break
		}
	}
	b.Results = rows

	if len(b.CommitActions) > 0 {
		actions.ExecuteAll(idx, b.CommitActions, rows, ch)
	}
	if len(b.BindActions) > 0 {
		diff := actions.ExecuteCapture(idx, b.BindActions, rows, ch)
		b.retract(diff, ch)
		b.prevInserts = diff
	}
}

// retract unstores everything the previous execution bound that this one
// did not bind again.
func (b *Block) retract(diff *changes.ChangesIndex, ch *changes.Changes) {
	b.prevInserts.Each(func(prev changes.Entry) {
		if prev.Type != changes.Added {
			return
		}
		if cur, ok := diff.Lookup(prev.Key); ok && cur.Type == changes.Added {
			return
		}
		ch.Unstore(prev.Scope, prev.E, prev.A, prev.V, prev.N)
	})
}

// Reset forgets previous bind output and wakes a dormant block.
func (b *Block) Reset() {
	b.Dormant = false
	b.Results = nil
	b.prevInserts = changes.NewChangesIndex()
}
