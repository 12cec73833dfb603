package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/eavdb/pkg/changes"
	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

var session = []string{storage.DefaultScope}

func setup(t *testing.T, facts ...storage.Fact) (*storage.MultiIndex, *storage.TripleIndex) {
	t.Helper()
	idx := storage.NewMultiIndex()
	ti := storage.NewTripleIndex()
	require.NoError(t, idx.Register(storage.DefaultScope, ti))
	for _, f := range facts {
		ti.Store(f.E, f.A, f.V, f.N)
	}
	return idx, ti
}

func apply(idx *storage.MultiIndex, act Action, row join.Prefix) []changes.Commit {
	ch := changes.New(idx)
	act.Execute(idx, row, ch)
	return ch.Commit()
}

func TestNew_Defaults(t *testing.T) {
	act := New(Insert, "block-1", "e1", "age", 3, "")
	assert.Equal(t, "block-1", act.Node)
	assert.Equal(t, session, act.Scopes)
	assert.Equal(t, 3.0, act.V)
	assert.Empty(t, act.Vars())

	p := &join.Variable{ID: 0, Name: "p"}
	act = New(Remove, "r", p, "tag", "x", "node", "a", "b")
	assert.Equal(t, []*join.Variable{p}, act.Vars())
	assert.Equal(t, []string{"a", "b"}, act.Scopes)
}

func TestInsert(t *testing.T) {
	idx, ti := setup(t)
	p := &join.Variable{ID: 0, Name: "p"}
	act := New(Insert, "greet", p, "greeting", "hello", "")

	commits := apply(idx, act, join.Prefix{"e1"})
	require.Len(t, commits, 1)
	assert.True(t, ti.Has("e1", "greeting", "hello", "greet"))

	t.Run("unbound variable writes nothing", func(t *testing.T) {
		assert.Empty(t, apply(idx, act, nil))
	})
}

func TestRemove(t *testing.T) {
	idx, ti := setup(t,
		storage.Fact{E: "e1", A: "tag", V: "x", N: "a"},
		storage.Fact{E: "e1", A: "tag", V: "x", N: "b"},
	)

	t.Run("remove support keeps other nodes", func(t *testing.T) {
		apply(idx, New(RemoveSupport, "r", "e1", "tag", "x", "a"), nil)
		assert.False(t, ti.Has("e1", "tag", "x", "a"))
		assert.True(t, ti.Has("e1", "tag", "x", "b"))
	})

	t.Run("remove retracts every node", func(t *testing.T) {
		ti.Store("e1", "tag", "x", "a")
		apply(idx, New(Remove, "r", "e1", "tag", "x", ""), nil)
		assert.False(t, ti.Has("e1", "tag", "x", nil))
	})
}

func TestSet(t *testing.T) {
	idx, ti := setup(t,
		storage.Fact{E: "e1", A: "name", V: "ann", N: "a"},
		storage.Fact{E: "e1", A: "name", V: "anne", N: "b"},
		storage.Fact{E: "e1", A: "age", V: 3.0, N: "a"},
	)
	apply(idx, New(Set, "s", "e1", "name", "bob", ""), nil)
	assert.Equal(t, []storage.Value{"bob"}, ti.AsValues("e1", "name"))
	assert.Equal(t, []storage.Value{3.0}, ti.AsValues("e1", "age"))

	t.Run("same value kept", func(t *testing.T) {
		commits := apply(idx, New(Set, "s", "e1", "name", "bob", ""), nil)
		assert.Empty(t, commits)
	})
}

func TestErase(t *testing.T) {
	facts := []storage.Fact{
		{E: "e1", A: "name", V: "ann", N: "a"},
		{E: "e1", A: "tag", V: "x", N: "a"},
		{E: "e1", A: "tag", V: "y", N: "b"},
		{E: "e2", A: "tag", V: "x", N: "a"},
	}

	t.Run("one attribute", func(t *testing.T) {
		idx, ti := setup(t, facts...)
		apply(idx, New(Erase, "x", "e1", "tag", nil, ""), nil)
		assert.Empty(t, ti.AsValues("e1", "tag"))
		assert.Equal(t, []storage.Value{"ann"}, ti.AsValues("e1", "name"))
		assert.True(t, ti.Has("e2", "tag", "x", nil))
	})

	t.Run("whole entity", func(t *testing.T) {
		idx, ti := setup(t, facts...)
		apply(idx, New(Erase, "x", "e1", nil, nil, ""), nil)
		assert.Nil(t, ti.AsObject("e1"))
		assert.Equal(t, 1, ti.Len())
	})
}

func TestExecuteCapture(t *testing.T) {
	idx, _ := setup(t)
	p := &join.Variable{ID: 0, Name: "p"}
	acts := []Action{New(Insert, "b", p, "seen", true, "")}
	ch := changes.New(idx)
	captured := ExecuteCapture(idx, acts, []join.Prefix{{"e1"}, {"e2"}}, ch)
	assert.Equal(t, 2, captured.Len())
	assert.Len(t, ch.Commit(), 2)
	assert.Equal(t, []*join.Variable{p}, Vars(acts))
}
