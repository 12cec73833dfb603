package join

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/eavdb/pkg/storage"
)

func fact(e, a, v storage.Value) storage.Fact {
	return storage.Fact{E: e, A: a, V: v, N: "input"}
}

func newIndex(t *testing.T, facts ...storage.Fact) *storage.MultiIndex {
	t.Helper()
	idx := storage.NewTripleIndex()
	for _, f := range facts {
		idx.Store(f.E, f.A, f.V, f.N)
	}
	m := storage.NewMultiIndex()
	require.NoError(t, m.Register(storage.DefaultScope, idx))
	return m
}

func project(rows []Prefix, vars ...*Variable) [][]storage.Value {
	out := make([][]storage.Value, 0, len(rows))
	for _, r := range rows {
		tup := make([]storage.Value, len(vars))
		for i, v := range vars {
			tup[i] = r.Get(v)
		}
		out = append(out, tup)
	}
	return out
}

func run(t *testing.T, idx *storage.MultiIndex, providers ...Provider) []Prefix {
	t.Helper()
	strata, err := Stratify(providers)
	require.NoError(t, err)
	return ExecuteStrata(idx, strata, []Prefix{nil}, false)
}

var plus = FunctionFunc(func(args []storage.Value) ([][]storage.Value, bool) {
	a, ok1 := args[0].(float64)
	b, ok2 := args[1].(float64)
	if !ok1 || !ok2 {
		return nil, false
	}
	return [][]storage.Value{{a + b}}, true
})

var greater = FunctionFunc(func(args []storage.Value) ([][]storage.Value, bool) {
	a, ok1 := args[0].(float64)
	b, ok2 := args[1].(float64)
	if !ok1 || !ok2 {
		return nil, false
	}
	if a > b {
		return Pass, true
	}
	return nil, true
})

func TestJoin_SingleScan(t *testing.T) {
	idx := newIndex(t,
		fact("alice", "tag", "person"),
		fact("bob", "tag", "person"),
		fact("rex", "tag", "dog"),
	)
	x := &Variable{ID: 0, Name: "x"}
	rows := run(t, idx, NewScan("s1", x, "tag", "person", nil))
	assert.ElementsMatch(t, [][]storage.Value{{"alice"}, {"bob"}}, project(rows, x))
}

func TestJoin_TwoScans(t *testing.T) {
	idx := newIndex(t,
		fact("alice", "tag", "person"),
		fact("alice", "name", "Alice"),
		fact("bob", "tag", "person"),
		fact("bob", "name", "Bob"),
		fact("rex", "name", "Rex"),
	)
	x := &Variable{ID: 0, Name: "x"}
	n := &Variable{ID: 1, Name: "n"}
	rows := run(t, idx,
		NewScan("s1", x, "tag", "person", nil),
		NewScan("s2", x, "name", n, nil),
	)
	assert.ElementsMatch(t, [][]storage.Value{{"alice", "Alice"}, {"bob", "Bob"}}, project(rows, x, n))
}

func TestJoin_ConstantScan(t *testing.T) {
	facts := []storage.Fact{
		fact("b", "color", "red"),
		fact("c", "color", "blue"),
	}
	x := &Variable{ID: 0, Name: "x"}
	y := &Variable{ID: 1, Name: "y"}

	t.Run("missing fact rejects every row", func(t *testing.T) {
		idx := newIndex(t, facts...)
		rows := run(t, idx,
			NewScan("s1", x, "color", y, nil),
			NewScan("s2", "zzz", "gate", "on", nil),
		)
		assert.Empty(t, rows)
	})

	t.Run("present fact keeps every row", func(t *testing.T) {
		idx := newIndex(t, append(facts, fact("zzz", "gate", "on"))...)
		rows := run(t, idx,
			NewScan("s1", x, "color", y, nil),
			NewScan("s2", "zzz", "gate", "on", nil),
		)
		assert.ElementsMatch(t, [][]storage.Value{{"b", "red"}, {"c", "blue"}}, project(rows, x, y))
	})

	t.Run("alone", func(t *testing.T) {
		idx := newIndex(t, facts...)
		assert.Empty(t, run(t, idx, NewScan("s1", "zzz", "gate", "on", nil)))
	})
}

func TestJoin_Constraint(t *testing.T) {
	idx := newIndex(t,
		fact("a", "value", float64(1)),
		fact("b", "value", float64(5)),
	)
	x := &Variable{ID: 0, Name: "x"}
	v := &Variable{ID: 1, Name: "v"}
	r := &Variable{ID: 2, Name: "r"}

	t.Run("provides returns", func(t *testing.T) {
		rows := run(t, idx,
			NewScan("s1", x, "value", v, nil),
			NewConstraint("c1", "+", plus, []Term{v, float64(10)}, []Term{r}),
		)
		assert.ElementsMatch(t, [][]storage.Value{{"a", float64(11)}, {"b", float64(15)}}, project(rows, x, r))
	})

	t.Run("filters", func(t *testing.T) {
		rows := run(t, idx,
			NewScan("s1", x, "value", v, nil),
			NewConstraint("c1", ">", greater, []Term{v, float64(2)}, nil),
		)
		assert.Equal(t, [][]storage.Value{{"b"}}, project(rows, x))
	})

	t.Run("tests bound returns", func(t *testing.T) {
		rows := run(t, idx,
			NewScan("s1", x, "value", v, nil),
			NewConstraint("c1", "+", plus, []Term{v, float64(1)}, []Term{float64(6)}),
		)
		assert.Equal(t, [][]storage.Value{{"b"}}, project(rows, x))
	})

	t.Run("ill-typed args yield nothing", func(t *testing.T) {
		rows := run(t, idx,
			NewScan("s1", x, "value", v, nil),
			NewConstraint("c1", "+", plus, []Term{v, "oops"}, []Term{r}),
		)
		assert.Empty(t, rows)
	})
}

func TestJoin_FullScan(t *testing.T) {
	idx := newIndex(t,
		fact("alice", "likes", "alice"),
		fact("alice", "likes", "bob"),
		fact("bob", "age", float64(3)),
	)
	e := &Variable{ID: 0, Name: "e"}
	a := &Variable{ID: 1, Name: "a"}
	v := &Variable{ID: 2, Name: "v"}

	t.Run("all positions unbound", func(t *testing.T) {
		rows := run(t, idx, NewScan("s1", e, a, v, nil))
		assert.ElementsMatch(t, [][]storage.Value{
			{"alice", "likes", "alice"},
			{"alice", "likes", "bob"},
			{"bob", "age", float64(3)},
		}, project(rows, e, a, v))
	})

	t.Run("repeated variable must agree", func(t *testing.T) {
		rows := run(t, idx, NewScan("s1", e, "likes", e, nil))
		assert.Equal(t, [][]storage.Value{{"alice"}}, project(rows, e))
	})

	t.Run("entity and value bound", func(t *testing.T) {
		rows := run(t, idx, NewScan("s1", "alice", a, "bob", nil))
		assert.Equal(t, [][]storage.Value{{"likes"}}, project(rows, a))
	})

	t.Run("node position", func(t *testing.T) {
		n := &Variable{ID: 3, Name: "n"}
		rows := run(t, idx, NewScan("s1", "bob", "age", v, n))
		assert.Equal(t, [][]storage.Value{{float64(3), "input"}}, project(rows, v, n))
	})
}

func TestJoin_MultiScope(t *testing.T) {
	session := storage.NewTripleIndex()
	browser := storage.NewTripleIndex()
	session.Store("alice", "tag", "person", nil)
	browser.Store("alice", "tag", "person", nil)
	browser.Store("bob", "tag", "person", nil)
	m := storage.NewMultiIndex()
	require.NoError(t, m.Register("session", session))
	require.NoError(t, m.Register("browser", browser))

	x := &Variable{ID: 0, Name: "x"}
	a := &Variable{ID: 1, Name: "a"}
	rows := run(t, m, NewScan("s1", x, "tag", "person", nil, "session", "browser"))
	assert.ElementsMatch(t, [][]storage.Value{{"alice"}, {"bob"}}, project(rows, x))

	rows = run(t, m, NewScan("s1", x, a, "person", nil, "session", "browser"))
	assert.ElementsMatch(t, [][]storage.Value{{"alice", "tag"}, {"bob", "tag"}}, project(rows, x, a))
}

func TestJoin_PrefixUntouched(t *testing.T) {
	idx := newIndex(t, fact("alice", "tag", "person"))
	x := &Variable{ID: 0, Name: "x"}
	s := NewScan("s1", x, "tag", "person", nil)
	prefix := NewPrefix(1)
	rows := Join(idx, []Provider{s}, s.Vars(), prefix, Options{})
	require.Len(t, rows, 1)
	assert.Nil(t, prefix[0])
}

func TestJoin_SingleStopsEarly(t *testing.T) {
	idx := newIndex(t,
		fact("alice", "tag", "person"),
		fact("bob", "tag", "person"),
	)
	x := &Variable{ID: 0, Name: "x"}
	s := NewScan("s1", x, "tag", "person", nil)
	rows := Join(idx, []Provider{s}, s.Vars(), nil, Options{Single: true})
	assert.Len(t, rows, 1)
}

// TestJoin_MatchesNestedLoops compares a three-way join against a brute
// force evaluation over random graphs.
func TestJoin_MatchesNestedLoops(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			var facts []storage.Fact
			for i := 0; i < 80; i++ {
				facts = append(facts, fact(
					fmt.Sprintf("p%d", rng.Intn(12)),
					"follows",
					fmt.Sprintf("p%d", rng.Intn(12)),
				))
			}
			for i := 0; i < 12; i++ {
				if rng.Intn(2) == 0 {
					facts = append(facts, fact(fmt.Sprintf("p%d", i), "tag", "vip"))
				}
			}
			idx := newIndex(t, facts...)
			x := &Variable{ID: 0, Name: "x"}
			y := &Variable{ID: 1, Name: "y"}
			z := &Variable{ID: 2, Name: "z"}
			rows := run(t, idx,
				NewScan("s1", x, "follows", y, nil),
				NewScan("s2", y, "follows", z, nil),
				NewScan("s3", z, "tag", "vip", nil),
			)

			stored, _ := idx.Index(storage.DefaultScope)
			all := stored.ToFacts(false)
			want := map[[3]storage.Value]bool{}
			for _, f1 := range all {
				if f1.A != "follows" {
					continue
				}
				for _, f2 := range all {
					if f2.A != "follows" || f2.E != f1.V {
						continue
					}
					if stored.Has(f2.V, "tag", "vip", nil) {
						want[[3]storage.Value{f1.E, f1.V, f2.V}] = true
					}
				}
			}
			got := map[[3]storage.Value]bool{}
			for _, tup := range project(rows, x, y, z) {
				key := [3]storage.Value{tup[0], tup[1], tup[2]}
				assert.False(t, got[key], "duplicate row %v", key)
				got[key] = true
			}
			assert.Equal(t, want, got)
		})
	}
}
