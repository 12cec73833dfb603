// Package runtime drives evaluation to a fixpoint.
//
// An Evaluation owns a MultiIndex whose scopes are the indexes of the
// registered databases. Each fixpoint runs the blocks affected by the
// latest commit, commits what they wrote, selects the blocks affected by
// that commit, and repeats until a round changes nothing or the round cap
// is reached.
//
// Example:
//
//	ev := runtime.New(runtime.WithConfig(cfg))
//	if err := ev.RegisterDatabase("session", runtime.NewDatabase(blocks...)); err != nil {
//		log.Fatal(err)
//	}
//	ch, err := ev.ExecuteActions(seed, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(ch.Result())
//
// An Evaluation is not safe for concurrent use. Events from other
// goroutines must be serialized by the caller, each producing its own
// Changes and fixpoint.
package runtime

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/eavdb/pkg/actions"
	"github.com/orneryd/eavdb/pkg/block"
	"github.com/orneryd/eavdb/pkg/changes"
	"github.com/orneryd/eavdb/pkg/config"
	"github.com/orneryd/eavdb/pkg/storage"
)

// ErrorReporter receives errors that do not abort a fixpoint.
type ErrorReporter func(kind string, err error)

// Evaluation runs blocks against a shared MultiIndex.
type Evaluation struct {
	ID string

	index     *storage.MultiIndex
	databases []Database
	byName    map[string]Database
	names     map[string]string
	queued    [][]changes.Commit
	// reserved holds scopes created from config that no database owns yet.
	reserved map[string]bool

	metrics   Metrics
	report    ErrorReporter
	maxRounds int
	strict    bool
	logBlocks bool
	debug     bool
	cfg       *config.Config
}

// Option configures an Evaluation.
type Option func(*Evaluation)

// WithIndex evaluates against an existing MultiIndex.
func WithIndex(idx *storage.MultiIndex) Option {
	return func(e *Evaluation) {
		e.index = idx
	}
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Evaluation) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithErrorReporter replaces the default reporter, which logs.
func WithErrorReporter(r ErrorReporter) Option {
	return func(e *Evaluation) {
		if r != nil {
			e.report = r
		}
	}
}

// WithConfig applies the evaluation and logging settings of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(e *Evaluation) {
		e.cfg = cfg
	}
}

func (e *Evaluation) applyConfig(cfg *config.Config) {
	e.maxRounds = cfg.Evaluation.MaxRounds
	if e.maxRounds <= 0 {
		e.maxRounds = config.LoadDefaults().Evaluation.MaxRounds
	}
	e.strict = cfg.Evaluation.StrictFixpoint
	e.logBlocks = cfg.Logging.LogBlocks
	e.debug = strings.EqualFold(cfg.Logging.Level, "DEBUG")
	for _, s := range cfg.Evaluation.Scopes {
		if _, ok := e.index.Index(s); !ok {
			e.index.GetIndex(s)
			e.reserved[s] = true
		}
	}
}

// New creates an evaluation with the built-in defaults overridden by opts.
func New(opts ...Option) *Evaluation {
	e := &Evaluation{
		ID:       uuid.NewString(),
		byName:   make(map[string]Database),
		names:    make(map[string]string),
		reserved: make(map[string]bool),
		metrics:  NoopMetrics{},
	}
	e.report = func(kind string, err error) {
		log.Printf("[eavdb] %s: %v", kind, err)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.index == nil {
		e.index = storage.NewMultiIndex()
	}
	if e.cfg == nil {
		e.cfg = config.LoadDefaults()
	}
	e.applyConfig(e.cfg)
	return e
}

// Index returns the evaluation's MultiIndex.
func (e *Evaluation) Index() *storage.MultiIndex { return e.index }

// MaxRounds returns the round cap of a fixpoint.
func (e *Evaluation) MaxRounds() int { return e.maxRounds }

// RegisterDatabase makes db's index visible under name and attaches the
// evaluation to db. A scope created from config is handed over to db as
// long as nothing has been written to it.
func (e *Evaluation) RegisterDatabase(name string, db Database) error {
	if _, ok := e.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDatabaseRegistered, name)
	}
	if e.reserved[name] {
		if ti, ok := e.index.Index(name); ok && ti.Len() == 0 {
			if err := e.index.Unregister(name); err != nil {
				return fmt.Errorf("register %q: %w", name, err)
			}
		}
	}
	if err := e.index.Register(name, db.Index()); err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}
	delete(e.reserved, name)
	for _, other := range e.databases {
		db.Analyze(e, other)
		other.Analyze(e, db)
	}
	e.databases = append(e.databases, db)
	e.byName[name] = db
	e.names[db.ID()] = name
	db.Register(e)
	return nil
}

// UnregisterDatabase removes the database registered under name.
func (e *Evaluation) UnregisterDatabase(name string) error {
	db, ok := e.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
	}
	delete(e.byName, name)
	delete(e.names, db.ID())
	if i := slices.Index(e.databases, db); i >= 0 {
		e.databases = slices.Delete(e.databases, i, i+1)
	}
	if err := e.index.Unregister(name); err != nil {
		return err
	}
	return db.Unregister(e)
}

// GetDatabase returns the database registered under name.
func (e *Evaluation) GetDatabase(name string) (Database, bool) {
	db, ok := e.byName[name]
	return db, ok
}

// DatabaseName returns the name db is registered under.
func (e *Evaluation) DatabaseName(db Database) (string, bool) {
	name, ok := e.names[db.ID()]
	return name, ok
}

// Databases returns the registered databases in registration order.
func (e *Evaluation) Databases() []Database {
	return slices.Clone(e.databases)
}

// AllBlocks returns every block that may still run.
func (e *Evaluation) AllBlocks() []*block.Block {
	blocks := []*block.Block{}
	for _, db := range e.databases {
		if db.NonExecuting() {
			continue
		}
		for _, b := range db.Blocks() {
			if !b.Dormant {
				blocks = append(blocks, b)
			}
		}
	}
	return blocks
}

// BlocksFromCommit returns the blocks whose dependencies match any of the
// committed changes.
func (e *Evaluation) BlocksFromCommit(commit []changes.Commit) []*block.Block {
	start := time.Now()
	defer func() { e.metrics.BlockCheck(time.Since(start)) }()

	blocks := []*block.Block{}
	if len(commit) == 0 {
		return blocks
	}
	tags := make(map[storage.Value][]storage.Value)
	for _, b := range e.AllBlocks() {
		for _, c := range commit {
			t, ok := tags[c.E]
			if !ok {
				t = block.Tags(e.index, c.E)
				tags[c.E] = t
			}
			if b.Checker.Check(t, c.E, c.A, c.V) {
				blocks = append(blocks, b)
				break
			}
		}
	}
	return blocks
}

// CreateChanges returns a fresh change set over the evaluation's index.
func (e *Evaluation) CreateChanges() *changes.Changes {
	return changes.New(e.index)
}

// ExecuteActions applies actions to ch, or to a fresh change set when ch
// is nil, commits them and runs the fixpoint over the affected blocks.
func (e *Evaluation) ExecuteActions(acts []actions.Action, ch *changes.Changes) (*changes.Changes, error) {
	if ch == nil {
		ch = e.CreateChanges()
	}
	for _, act := range acts {
		act.Execute(e.index, nil, ch)
	}
	committed := ch.Commit()
	e.countCommit(committed)
	return e.Fixpoint(ch, e.BlocksFromCommit(committed))
}

// Run executes every block until fixpoint.
func (e *Evaluation) Run() (*changes.Changes, error) {
	return e.Fixpoint(e.CreateChanges(), e.AllBlocks())
}

// Fixpoint runs blocks, commits their writes and repeats with the blocks
// affected by each commit until nothing changes or the round cap is hit.
// At the cap the partial changes are returned; in strict mode together
// with ErrFixpointLimit. Registered databases are notified either way.
func (e *Evaluation) Fixpoint(ch *changes.Changes, blocks []*block.Block) (*changes.Changes, error) {
	if ch == nil {
		ch = e.CreateChanges()
	}
	start := time.Now()
	ch.Changed = true
	for ch.Changed && ch.Round < e.maxRounds {
		ch.NextRound()
		for _, b := range blocks {
			bs := time.Now()
			b.Execute(e.index, ch)
			d := time.Since(bs)
			e.metrics.BlockExecuted(b.Name, d)
			if e.logBlocks {
				log.Printf("[fixpoint] round %d: block %s produced %d rows in %v", ch.Round, b.Name, len(b.Results), d)
			}
		}
		committed := ch.Commit()
		e.countCommit(committed)
		blocks = e.BlocksFromCommit(committed)
	}
	// A last commit that no block depends on cannot change anything more.
	converged := !ch.Changed || len(blocks) == 0
	elapsed := time.Since(start)
	e.metrics.FixpointCompleted(ch.Round, elapsed, converged)
	if e.debug {
		log.Printf("[fixpoint] %d rounds in %v", ch.Round, elapsed)
	}

	var err error
	if !converged {
		err = fmt.Errorf("%w: still changing after %d rounds", ErrFixpointLimit, ch.Round)
		e.report("Fixpoint Error", err)
		if !e.strict {
			err = nil
		}
	}
	for _, db := range slices.Clone(e.databases) {
		db.OnFixpoint(e, ch)
	}
	return ch, err
}

func (e *Evaluation) countCommit(committed []changes.Commit) {
	added, removed := 0, 0
	for _, c := range committed {
		if c.Type == changes.Added {
			added++
		} else {
			removed++
		}
	}
	e.metrics.Committed(added, removed)
}

// Queue records changes another evaluation committed to a shared
// database. ProcessQueue reacts to them.
func (e *Evaluation) Queue(commit []changes.Commit) {
	if len(commit) == 0 {
		return
	}
	e.queued = append(e.queued, slices.Clone(commit))
}

// Pending reports whether queued commits are waiting.
func (e *Evaluation) Pending() bool { return len(e.queued) > 0 }

// ProcessQueue runs one fixpoint over the blocks affected by every queued
// commit. It returns nil changes when nothing was queued.
func (e *Evaluation) ProcessQueue() (*changes.Changes, error) {
	if len(e.queued) == 0 {
		return nil, nil
	}
	var commits []changes.Commit
	for _, q := range e.queued {
		commits = append(commits, q...)
	}
	e.queued = nil
	return e.Fixpoint(e.CreateChanges(), e.BlocksFromCommit(commits))
}

// Save returns the facts of every registered database keyed by name.
func (e *Evaluation) Save() map[string][]storage.Fact {
	out := make(map[string][]storage.Fact, len(e.databases))
	for _, db := range e.databases {
		name, _ := e.DatabaseName(db)
		out[name] = db.Index().ToFacts(true)
	}
	return out
}

// Load stores saved facts into the databases registered under the same
// names and runs the fixpoint they trigger.
func (e *Evaluation) Load(dbs map[string][]storage.Fact) (*changes.Changes, error) {
	ch := e.CreateChanges()
	names := make([]string, 0, len(dbs))
	for name := range dbs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, ok := e.byName[name]; !ok {
			return nil, fmt.Errorf("load: %w: %q", ErrUnknownDatabase, name)
		}
		for _, f := range dbs[name] {
			ch.Store(name, storage.Normalize(f.E), storage.Normalize(f.A), storage.Normalize(f.V), storage.Normalize(f.N))
		}
	}
	return e.ExecuteActions(nil, ch)
}

// Close detaches the evaluation from every database.
func (e *Evaluation) Close() error {
	var errs []error
	for _, db := range e.databases {
		if err := db.Unregister(e); err != nil {
			errs = append(errs, err)
		}
	}
	e.databases = nil
	clear(e.byName)
	clear(e.names)
	return errors.Join(errs...)
}
