package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/eavdb/pkg/actions"
	"github.com/orneryd/eavdb/pkg/block"
	"github.com/orneryd/eavdb/pkg/changes"
	"github.com/orneryd/eavdb/pkg/config"
	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/providers"
	"github.com/orneryd/eavdb/pkg/storage"
)

const session = storage.DefaultScope

func build(t *testing.T, def block.Definition) *block.Block {
	t.Helper()
	b, err := block.Build(def)
	require.NoError(t, err)
	return b
}

// greetBlock binds (?p greeting hello) for every ?p tagged person.
func greetBlock(t *testing.T, scope string) *block.Block {
	p := &join.Variable{ID: 0, Name: "p"}
	return build(t, block.Definition{
		Name:      "greet",
		Providers: []join.Provider{join.NewScan("greet|s1", p, "tag", "person", nil, scope)},
		Bind:      []actions.Action{actions.New(actions.Insert, "greet|bind", p, "greeting", "hello", "", scope)},
	})
}

// counterBlock never converges: it keeps incrementing every value.
func counterBlock(t *testing.T) *block.Block {
	e := &join.Variable{ID: 0, Name: "e"}
	n := &join.Variable{ID: 1, Name: "n"}
	m := &join.Variable{ID: 2, Name: "m"}
	plus, err := providers.NewConstraint("counter|plus", "+", []join.Term{n, 1.0}, []join.Term{m})
	require.NoError(t, err)
	return build(t, block.Definition{
		Name:      "counter",
		Providers: []join.Provider{join.NewScan("counter|s1", e, "value", n, nil), plus},
		Commit:    []actions.Action{actions.New(actions.Set, "counter|set", e, "value", m, "")},
	})
}

func insert(e, a, v storage.Value) actions.Action {
	return actions.New(actions.Insert, "input", e, a, v, "")
}

func newEvaluation(t *testing.T, blocks ...*block.Block) (*Evaluation, *BaseDatabase) {
	t.Helper()
	ev := New()
	db := NewDatabase(blocks...)
	require.NoError(t, ev.RegisterDatabase(session, db))
	return ev, db
}

func TestEvaluation_Greeting(t *testing.T) {
	ev, db := newEvaluation(t, greetBlock(t, session))

	ch, err := ev.ExecuteActions([]actions.Action{insert("e1", "tag", "person")}, nil)
	require.NoError(t, err)

	res := ch.Result()
	assert.ElementsMatch(t, []changes.Triple{
		{"e1", "tag", "person"},
		{"e1", "greeting", "hello"},
	}, res.Insert)
	assert.Empty(t, res.Remove)
	assert.True(t, db.Index().Has("e1", "greeting", "hello", "greet|bind"))

	t.Run("quiescent run is empty", func(t *testing.T) {
		ch, err := ev.Run()
		require.NoError(t, err)
		res := ch.Result()
		assert.Empty(t, res.Insert)
		assert.Empty(t, res.Remove)
	})

	t.Run("unrelated fact does not run the block", func(t *testing.T) {
		ch, err := ev.ExecuteActions([]actions.Action{insert("e2", "color", "red")}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, ch.Round)
		assert.Equal(t, []changes.Triple{{"e2", "color", "red"}}, ch.Result().Insert)
	})

	t.Run("retraction", func(t *testing.T) {
		rm := actions.New(actions.Remove, "input", "e1", "tag", "person", "")
		ch, err := ev.ExecuteActions([]actions.Action{rm}, nil)
		require.NoError(t, err)
		res := ch.Result()
		assert.Empty(t, res.Insert)
		assert.ElementsMatch(t, []changes.Triple{
			{"e1", "tag", "person"},
			{"e1", "greeting", "hello"},
		}, res.Remove)
		assert.False(t, db.Index().Has("e1", "greeting", "hello", nil))
	})
}

func TestEvaluation_SumPerCategory(t *testing.T) {
	item := &join.Variable{ID: 0, Name: "item"}
	cat := &join.Variable{ID: 1, Name: "cat"}
	amount := &join.Variable{ID: 2, Name: "amount"}
	total := &join.Variable{ID: 3, Name: "total"}
	sum, err := providers.NewAggregate("totals|sum", "sum", amount, []join.Term{item}, []join.Term{cat}, []join.Term{total})
	require.NoError(t, err)
	b := build(t, block.Definition{
		Name: "totals",
		Providers: []join.Provider{
			join.NewScan("totals|s1", item, "category", cat, nil),
			join.NewScan("totals|s2", item, "amount", amount, nil),
			sum,
		},
		Bind: []actions.Action{actions.New(actions.Insert, "totals|bind", cat, "total", total, "")},
	})
	ev, db := newEvaluation(t, b)

	_, err = ev.ExecuteActions([]actions.Action{
		insert("i1", "category", "A"), insert("i1", "amount", 1.0),
		insert("i2", "category", "A"), insert("i2", "amount", 2.0),
		insert("i3", "category", "B"), insert("i3", "amount", 3.0),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []storage.Value{3.0}, db.Index().AsValues("A", "total"))
	assert.Equal(t, []storage.Value{3.0}, db.Index().AsValues("B", "total"))

	t.Run("update replaces bound total", func(t *testing.T) {
		_, err := ev.ExecuteActions([]actions.Action{insert("i4", "category", "B"), insert("i4", "amount", 4.0)}, nil)
		require.NoError(t, err)
		assert.Equal(t, []storage.Value{7.0}, db.Index().AsValues("B", "total"))
		assert.Equal(t, []storage.Value{3.0}, db.Index().AsValues("A", "total"))
	})
}

func TestEvaluation_RoundCap(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Evaluation.MaxRounds = 3

	t.Run("partial result", func(t *testing.T) {
		var reported []error
		ev := New(WithConfig(cfg), WithErrorReporter(func(kind string, err error) {
			reported = append(reported, err)
		}))
		require.NoError(t, ev.RegisterDatabase(session, NewDatabase(counterBlock(t))))

		ch, err := ev.ExecuteActions([]actions.Action{insert("c", "value", 0.0)}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, ch.Round)
		require.Len(t, reported, 1)
		assert.ErrorIs(t, reported[0], ErrFixpointLimit)
		assert.Equal(t, []changes.Triple{{"c", "value", 3.0}}, ch.Result().Insert)
	})

	t.Run("strict", func(t *testing.T) {
		strict := *cfg
		strict.Evaluation.StrictFixpoint = true
		ev := New(WithConfig(&strict), WithErrorReporter(func(string, error) {}))
		require.NoError(t, ev.RegisterDatabase(session, NewDatabase(counterBlock(t))))

		ch, err := ev.ExecuteActions([]actions.Action{insert("c", "value", 0.0)}, nil)
		assert.ErrorIs(t, err, ErrFixpointLimit)
		require.NotNil(t, ch)
		assert.Equal(t, 3, ch.Round)
	})
}

func TestEvaluation_ConvergesAtRoundCap(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Evaluation.MaxRounds = 1
	cfg.Evaluation.StrictFixpoint = true
	var reported []error
	ev := New(WithConfig(cfg), WithErrorReporter(func(kind string, err error) {
		reported = append(reported, err)
	}))
	require.NoError(t, ev.RegisterDatabase(session, NewDatabase(greetBlock(t, session))))

	// The greeting written in the only round triggers no block.
	ch, err := ev.ExecuteActions([]actions.Action{insert("e1", "tag", "person")}, nil)
	require.NoError(t, err)
	assert.Empty(t, reported)
	assert.Equal(t, 1, ch.Round)
	assert.Contains(t, ch.Result().Insert, changes.Triple{"e1", "greeting", "hello"})
}

func TestEvaluation_SingleRunBlock(t *testing.T) {
	x := &join.Variable{ID: 0, Name: "x"}
	c, err := providers.NewConstraint("seed|c", "+", []join.Term{1.0, 1.0}, []join.Term{x})
	require.NoError(t, err)
	b := build(t, block.Definition{
		Name:      "seed",
		Providers: []join.Provider{c},
		Commit:    []actions.Action{actions.New(actions.Insert, "seed|commit", "config", "answer", x, "")},
	})
	ev, db := newEvaluation(t, b)

	_, err = ev.Run()
	require.NoError(t, err)
	assert.True(t, b.Dormant)
	assert.Equal(t, []storage.Value{2.0}, db.Index().AsValues("config", "answer"))
	assert.Empty(t, ev.AllBlocks())
}

func TestEvaluation_Databases(t *testing.T) {
	ev := New()
	db := NewDatabase()
	require.NoError(t, ev.RegisterDatabase("a", db))

	err := ev.RegisterDatabase("a", NewDatabase())
	assert.ErrorIs(t, err, ErrDatabaseRegistered)

	got, ok := ev.GetDatabase("a")
	require.True(t, ok)
	assert.Same(t, db, got)
	name, ok := ev.DatabaseName(db)
	require.True(t, ok)
	assert.Equal(t, "a", name)
	assert.Equal(t, []*Evaluation{ev}, db.Evaluations())

	assert.ErrorIs(t, ev.UnregisterDatabase("missing"), ErrUnknownDatabase)
	require.NoError(t, ev.UnregisterDatabase("a"))
	assert.Empty(t, db.Evaluations())
	_, ok = ev.Index().Index("a")
	assert.False(t, ok)
	assert.ErrorIs(t, db.Unregister(ev), ErrNotRegistered)
}

func TestEvaluation_NonExecutingDatabase(t *testing.T) {
	ev := New()
	facts := NewFactDatabase()
	facts.AddBlocks(greetBlock(t, session))
	require.NoError(t, ev.RegisterDatabase(session, facts))

	_, err := ev.ExecuteActions([]actions.Action{insert("e1", "tag", "person")}, nil)
	require.NoError(t, err)
	assert.False(t, facts.Index().Has("e1", "greeting", "hello", nil))
}

func TestEvaluation_QueueBroadcast(t *testing.T) {
	shared := NewDatabase()

	ev1 := New()
	require.NoError(t, ev1.RegisterDatabase("shared", shared))

	ev2 := New()
	require.NoError(t, ev2.RegisterDatabase("shared", shared))
	p := &join.Variable{ID: 0, Name: "p"}
	local := NewDatabase(build(t, block.Definition{
		Name:      "mirror",
		Providers: []join.Provider{join.NewScan("mirror|s1", p, "tag", "person", nil, "shared")},
		Bind:      []actions.Action{actions.New(actions.Insert, "mirror|bind", p, "seen", true, "", "local")},
	}))
	require.NoError(t, ev2.RegisterDatabase("local", local))

	_, err := ev1.ExecuteActions([]actions.Action{
		actions.New(actions.Insert, "input", "e1", "tag", "person", "", "shared"),
	}, nil)
	require.NoError(t, err)
	assert.False(t, ev1.Pending())
	require.True(t, ev2.Pending())

	ch, err := ev2.ProcessQueue()
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.False(t, ev2.Pending())
	assert.True(t, local.Index().Has("e1", "seen", true, nil))
	assert.Equal(t, []changes.Triple{{"e1", "seen", true}}, ch.Result("local").Insert)

	ch, err = ev2.ProcessQueue()
	assert.NoError(t, err)
	assert.Nil(t, ch)

	require.NoError(t, ev2.Close())
	assert.Equal(t, []*Evaluation{ev1}, shared.Evaluations())
}

func TestEvaluation_SaveLoad(t *testing.T) {
	ev, _ := newEvaluation(t, greetBlock(t, session))
	_, err := ev.ExecuteActions([]actions.Action{insert("e1", "tag", "person")}, nil)
	require.NoError(t, err)

	saved := ev.Save()
	require.Contains(t, saved, session)
	assert.Len(t, saved[session], 2)

	fresh, db := newEvaluation(t)
	ch, err := fresh.Load(saved)
	require.NoError(t, err)
	assert.Len(t, ch.Result().Insert, 2)
	assert.True(t, db.Index().Has("e1", "greeting", "hello", "greet|bind"))

	_, err = fresh.Load(map[string][]storage.Fact{"nope": nil})
	assert.ErrorIs(t, err, ErrUnknownDatabase)
}

type recorder struct {
	blocks    []string
	checks    int
	added     int
	removed   int
	rounds    int
	converged bool
}

func (r *recorder) BlockExecuted(name string, d time.Duration) { r.blocks = append(r.blocks, name) }
func (r *recorder) BlockCheck(d time.Duration)                 { r.checks++ }
func (r *recorder) Committed(added, removed int) {
	r.added += added
	r.removed += removed
}
func (r *recorder) FixpointCompleted(rounds int, d time.Duration, converged bool) {
	r.rounds = rounds
	r.converged = converged
}

func TestEvaluation_Metrics(t *testing.T) {
	rec := &recorder{}
	ev := New(WithMetrics(rec))
	require.NoError(t, ev.RegisterDatabase(session, NewDatabase(greetBlock(t, session))))

	_, err := ev.ExecuteActions([]actions.Action{insert("e1", "tag", "person")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, rec.blocks)
	assert.Equal(t, 2, rec.added)
	assert.Zero(t, rec.removed)
	assert.True(t, rec.converged)
	assert.Equal(t, 2, rec.rounds)
	assert.Positive(t, rec.checks)
}

func TestEvaluation_WithIndexAndScopes(t *testing.T) {
	idx := storage.NewMultiIndex()
	cfg := config.LoadDefaults()
	cfg.Evaluation.Scopes = []string{"system"}
	ev := New(WithConfig(cfg), WithIndex(idx))
	assert.Same(t, idx, ev.Index())
	assert.Equal(t, []string{"system"}, idx.Scopes())
	assert.Equal(t, 10, ev.MaxRounds())

	t.Run("written scope stays taken", func(t *testing.T) {
		_, err := ev.ExecuteActions([]actions.Action{
			actions.New(actions.Insert, "input", "e1", "tag", "person", "", "system"),
		}, nil)
		require.NoError(t, err)
		err = ev.RegisterDatabase("system", NewDatabase())
		assert.ErrorIs(t, err, storage.ErrScopeRegistered)
	})

	t.Run("existing scope is not reserved", func(t *testing.T) {
		pre := storage.NewMultiIndex()
		pre.GetIndex("audit")
		cfg := config.LoadDefaults()
		cfg.Evaluation.Scopes = []string{"audit"}
		ev := New(WithConfig(cfg), WithIndex(pre))
		err := ev.RegisterDatabase("audit", NewDatabase())
		assert.ErrorIs(t, err, storage.ErrScopeRegistered)
	})
}

func TestEvaluation_ConfigScopesIncludeDatabase(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Evaluation.Scopes = []string{session, "system"}
	ev := New(WithConfig(cfg))
	assert.ElementsMatch(t, []string{session, "system"}, ev.Index().Scopes())

	db := NewDatabase(greetBlock(t, session))
	require.NoError(t, ev.RegisterDatabase(session, db))
	got, ok := ev.Index().Index(session)
	require.True(t, ok)
	assert.Same(t, db.Index(), got)
	assert.ElementsMatch(t, []string{session, "system"}, ev.Index().Scopes())

	_, err := ev.ExecuteActions([]actions.Action{insert("e1", "tag", "person")}, nil)
	require.NoError(t, err)
	assert.True(t, db.Index().Has("e1", "greeting", "hello", nil))

	err = ev.RegisterDatabase(session, NewDatabase())
	assert.ErrorIs(t, err, ErrDatabaseRegistered)
}
