package runtime

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/orneryd/eavdb/pkg/block"
	"github.com/orneryd/eavdb/pkg/changes"
	"github.com/orneryd/eavdb/pkg/storage"
)

// Database owns one index and the blocks that maintain it. An evaluation
// registers a database under a scope name; the same database may be
// registered with several evaluations, which then share its facts.
type Database interface {
	ID() string
	Index() *storage.TripleIndex
	Blocks() []*block.Block
	// NonExecuting databases contribute facts but their blocks are never
	// run.
	NonExecuting() bool
	Register(ev *Evaluation)
	Unregister(ev *Evaluation) error
	// Analyze is called for every pair of databases registered with the
	// same evaluation.
	Analyze(ev *Evaluation, other Database)
	// OnFixpoint is called after every fixpoint of ev.
	OnFixpoint(ev *Evaluation, ch *changes.Changes)
}

// BaseDatabase is the default Database. Embed it to build adapters that
// react to fixpoints.
type BaseDatabase struct {
	id           string
	index        *storage.TripleIndex
	blocks       []*block.Block
	evaluations  []*Evaluation
	nonExecuting bool
}

// NewDatabase creates a database with an empty index.
func NewDatabase(blocks ...*block.Block) *BaseDatabase {
	return &BaseDatabase{
		id:     "db|" + uuid.NewString(),
		index:  storage.NewTripleIndex(),
		blocks: blocks,
	}
}

// NewFactDatabase creates a database whose blocks never run. It only
// carries facts.
func NewFactDatabase() *BaseDatabase {
	db := NewDatabase()
	db.nonExecuting = true
	return db
}

func (d *BaseDatabase) ID() string                  { return d.id }
func (d *BaseDatabase) Index() *storage.TripleIndex { return d.index }
func (d *BaseDatabase) Blocks() []*block.Block      { return d.blocks }
func (d *BaseDatabase) NonExecuting() bool          { return d.nonExecuting }

// AddBlocks appends blocks. Evaluations pick them up on their next fixpoint.
func (d *BaseDatabase) AddBlocks(blocks ...*block.Block) {
	d.blocks = append(d.blocks, blocks...)
}

// Evaluations returns the evaluations the database is registered with.
func (d *BaseDatabase) Evaluations() []*Evaluation {
	return slices.Clone(d.evaluations)
}

// Register attaches ev. Registering twice is a no-op.
func (d *BaseDatabase) Register(ev *Evaluation) {
	if !slices.Contains(d.evaluations, ev) {
		d.evaluations = append(d.evaluations, ev)
	}
}

// Unregister detaches ev.
func (d *BaseDatabase) Unregister(ev *Evaluation) error {
	i := slices.Index(d.evaluations, ev)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotRegistered, d.id)
	}
	d.evaluations = slices.Delete(d.evaluations, i, i+1)
	return nil
}

// Analyze does nothing by default.
func (d *BaseDatabase) Analyze(ev *Evaluation, other Database) {}

// OnFixpoint forwards the net committed changes to this database's scope
// to every other evaluation sharing it, so they can re-run the blocks
// those facts affect.
func (d *BaseDatabase) OnFixpoint(ev *Evaluation, ch *changes.Changes) {
	name, ok := ev.DatabaseName(d)
	if !ok {
		return
	}
	commit := ch.ToCommitted(name)
	if len(commit) == 0 {
		return
	}
	for _, other := range d.evaluations {
		if other != ev {
			other.Queue(commit)
		}
	}
}

// ToFacts lists every fact in the database with its node.
func (d *BaseDatabase) ToFacts() []storage.Fact {
	return d.index.ToFacts(true)
}
