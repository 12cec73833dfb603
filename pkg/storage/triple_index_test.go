package storage

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripleIndex_StoreAndLookup(t *testing.T) {
	t.Run("stores under all orderings", func(t *testing.T) {
		idx := NewTripleIndex()
		require.True(t, idx.Store("alice", "tag", "person", "input"))

		_, ok := idx.Lookup("alice", "tag", "person", "input")
		assert.True(t, ok)
		_, ok = idx.ALookup("tag", "person", "alice", "input")
		assert.True(t, ok)
		_, ok = idx.NodeLookup("input", "alice", "tag", "person")
		assert.True(t, ok)
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("duplicate store is a no-op", func(t *testing.T) {
		idx := NewTripleIndex()
		require.True(t, idx.Store("alice", "tag", "person", "input"))
		assert.False(t, idx.Store("alice", "tag", "person", "input"))
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("nil node defaults to user", func(t *testing.T) {
		idx := NewTripleIndex()
		idx.Store("alice", "tag", "person", nil)
		assert.True(t, idx.Has("alice", "tag", "person", DefaultNode))
	})

	t.Run("nil position is rejected", func(t *testing.T) {
		idx := NewTripleIndex()
		assert.False(t, idx.Store(nil, "tag", "person", "input"))
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("partial lookups return levels", func(t *testing.T) {
		idx := NewTripleIndex()
		idx.Store("alice", "tag", "person", "input")
		idx.Store("alice", "name", "Alice", "input")
		idx.Store("bob", "tag", "person", "input")

		lvl, ok := idx.Lookup("alice", nil, nil, nil)
		require.True(t, ok)
		assert.Equal(t, []Value{"tag", "name"}, lvl.Keys())
		assert.Equal(t, 2, lvl.Cardinality())
		assert.Equal(t, 2, lvl.Size())

		lvl, ok = idx.ALookup("tag", "person", nil, nil)
		require.True(t, ok)
		assert.ElementsMatch(t, []Value{"alice", "bob"}, lvl.Keys())

		root, ok := idx.Lookup(nil, nil, nil, nil)
		require.True(t, ok)
		assert.Equal(t, 2, root.Cardinality(), "distinct entities")
		assert.Equal(t, 3, root.Size(), "facts")

		_, ok = idx.Lookup("carol", nil, nil, nil)
		assert.False(t, ok)
	})

	t.Run("has with nil node matches any node", func(t *testing.T) {
		idx := NewTripleIndex()
		idx.Store("alice", "tag", "person", "block-1")
		assert.True(t, idx.Has("alice", "tag", "person", nil))
		assert.False(t, idx.Has("alice", "tag", "person", "block-2"))
	})
}

func TestTripleIndex_Unstore(t *testing.T) {
	t.Run("removes from all orderings and prunes levels", func(t *testing.T) {
		idx := NewTripleIndex()
		idx.Store("alice", "tag", "person", "input")
		idx.Store("alice", "name", "Alice", "input")

		require.True(t, idx.Unstore("alice", "tag", "person", "input"))
		assert.False(t, idx.Has("alice", "tag", "person", nil))
		_, ok := idx.ALookup("tag", nil, nil, nil)
		assert.False(t, ok, "empty attribute level must not persist")
		_, ok = idx.Lookup("alice", "tag", nil, nil)
		assert.False(t, ok)
		require.NoError(t, idx.CheckConsistency())
	})

	t.Run("missing fact is a no-op", func(t *testing.T) {
		idx := NewTripleIndex()
		idx.Store("alice", "tag", "person", "input")
		assert.False(t, idx.Unstore("alice", "tag", "robot", "input"))
		assert.False(t, idx.Unstore("alice", "tag", "person", "other"))
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("keeps other nodes for the same triple", func(t *testing.T) {
		idx := NewTripleIndex()
		idx.Store("alice", "tag", "person", "a")
		idx.Store("alice", "tag", "person", "b")
		idx.Unstore("alice", "tag", "person", "a")
		assert.True(t, idx.Has("alice", "tag", "person", nil))
		lvl, ok := idx.Lookup("alice", "tag", "person", nil)
		require.True(t, ok)
		assert.Equal(t, []Value{"b"}, lvl.Keys())
	})
}

func TestTripleIndex_StoreUnstoreRestores(t *testing.T) {
	idx := NewTripleIndex()
	idx.Store("alice", "tag", "person", "input")
	idx.Store("alice", "name", "Alice", "input")
	before := idx.ToFacts(true)
	lvl, _ := idx.Lookup("alice", nil, nil, nil)
	card := lvl.Cardinality()

	require.True(t, idx.Store("alice", "age", float64(30), "input"))
	require.True(t, idx.Unstore("alice", "age", float64(30), "input"))

	assert.Equal(t, before, idx.ToFacts(true))
	lvl, _ = idx.Lookup("alice", nil, nil, nil)
	assert.Equal(t, card, lvl.Cardinality())
	_, ok := idx.ALookup("age", nil, nil, nil)
	assert.False(t, ok)
	require.NoError(t, idx.CheckConsistency())
}

func TestTripleIndex_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	idx := NewTripleIndex()
	want := map[Fact]bool{}

	for i := 0; i < 2000; i++ {
		f := Fact{
			E: fmt.Sprintf("e%d", rng.Intn(20)),
			A: fmt.Sprintf("a%d", rng.Intn(5)),
			V: float64(rng.Intn(10)),
			N: fmt.Sprintf("n%d", rng.Intn(3)),
		}
		if rng.Intn(3) == 0 {
			assert.Equal(t, want[f], idx.Unstore(f.E, f.A, f.V, f.N))
			delete(want, f)
		} else {
			assert.Equal(t, !want[f], idx.Store(f.E, f.A, f.V, f.N))
			want[f] = true
		}
	}

	require.NoError(t, idx.CheckConsistency())
	assert.Equal(t, len(want), idx.Len())
	for _, f := range idx.ToFacts(true) {
		assert.True(t, want[f], "unexpected fact %s", f)
	}
}

func TestTripleIndex_Snapshot(t *testing.T) {
	t.Run("writes after snapshot are isolated", func(t *testing.T) {
		idx := NewTripleIndex()
		idx.Store("alice", "tag", "person", "input")
		idx.Store("bob", "tag", "person", "input")

		snap := idx.Snapshot()
		idx.Store("carol", "tag", "person", "input")
		idx.Unstore("alice", "tag", "person", "input")
		snap.Store("dave", "tag", "robot", "input")

		assert.True(t, snap.Has("alice", "tag", "person", nil))
		assert.False(t, snap.Has("carol", "tag", "person", nil))
		assert.False(t, idx.Has("alice", "tag", "person", nil))
		assert.True(t, idx.Has("carol", "tag", "person", nil))
		assert.False(t, idx.Has("dave", "tag", "robot", nil))

		require.NoError(t, idx.CheckConsistency())
		require.NoError(t, snap.CheckConsistency())
		assert.NotEqual(t, idx.Version(), snap.Version())
	})

	t.Run("chained snapshots keep their contents", func(t *testing.T) {
		idx := NewTripleIndex()
		var snaps []*TripleIndex
		for i := 0; i < 5; i++ {
			idx.Store("counter", "value", float64(i), "input")
			snaps = append(snaps, idx.Snapshot())
		}
		for i, s := range snaps {
			assert.Equal(t, i+1, s.Len())
			assert.True(t, s.Has("counter", "value", float64(i), nil))
			require.NoError(t, s.CheckConsistency())
		}
	})
}

func TestTripleIndex_Views(t *testing.T) {
	idx := NewTripleIndex()
	idx.Store("alice", "tag", "person", "input")
	idx.Store("alice", "tag", "admin", "input")
	idx.Store("alice", "age", float64(30), "input")
	idx.Store("alice", "age", float64(30), "block")

	assert.Equal(t, []Value{"person", "admin"}, idx.AsValues("alice", "tag"))
	assert.Nil(t, idx.AsValues("bob", "tag"))

	obj := idx.AsObject("alice")
	assert.Len(t, obj, 2)
	assert.Equal(t, []Value{float64(30)}, obj["age"])

	assert.Len(t, idx.ToFacts(true), 4)
	assert.Len(t, idx.ToFacts(false), 3)
	assert.Equal(t, 4, idx.CardinalityEstimate())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float64(3), Normalize(3))
	assert.Equal(t, float64(3), Normalize(int64(3)))
	assert.Equal(t, float64(1.5), Normalize(float32(1.5)))
	assert.Equal(t, "x", Normalize("x"))
	assert.Equal(t, true, Normalize(true))
	assert.Nil(t, Normalize(nil))

	assert.Equal(t, "3", Format(float64(3)))
	assert.Equal(t, "1.5", Format(1.5))
	assert.Equal(t, "true", Format(true))
}
