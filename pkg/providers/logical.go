package providers

import (
	"strings"

	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

// compareValues orders numbers numerically and strings lexically. Values
// of different kinds are ordered bool < number < string.
func compareValues(a, b storage.Value) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	}
	return 0
}

func kindRank(v storage.Value) int {
	switch v.(type) {
	case bool:
		return 0
	case float64:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

func sameKind(a, b storage.Value) bool {
	return kindRank(a) == kindRank(b) && kindRank(a) < 3
}

// comparison builds a function that filters when it has no return and
// yields the boolean outcome when it has one.
func comparison(ordered bool, test func(a, b storage.Value) bool) Factory {
	return func(_ string, returns int) join.Function {
		return join.FunctionFunc(func(args []storage.Value) ([][]storage.Value, bool) {
			if ordered && !sameKind(args[0], args[1]) {
				return nil, false
			}
			result := test(args[0], args[1])
			if returns > 0 {
				return single(result), true
			}
			if result {
				return join.Pass, true
			}
			return nil, true
		})
	}
}

func init() {
	cmp := func(name string, ordered bool, test func(a, b storage.Value) bool) {
		Register(Definition{Name: name, MinArgs: 2, MaxArgs: 2, MinReturns: 0, MaxReturns: 1, New: comparison(ordered, test)})
	}
	cmp("=", false, func(a, b storage.Value) bool { return a == b })
	cmp("!=", false, func(a, b storage.Value) bool { return a != b })
	cmp(">", true, func(a, b storage.Value) bool { return compareValues(a, b) > 0 })
	cmp("<", true, func(a, b storage.Value) bool { return compareValues(a, b) < 0 })
	cmp(">=", true, func(a, b storage.Value) bool { return compareValues(a, b) >= 0 })
	cmp("<=", true, func(a, b storage.Value) bool { return compareValues(a, b) <= 0 })

	Register(Definition{Name: "and", MinArgs: 1, MaxArgs: -1, MinReturns: 1, MaxReturns: 1, New: pure(func(args []storage.Value) (storage.Value, bool) {
		for _, a := range args {
			if a == false {
				return false, true
			}
		}
		return true, true
	})})
	Register(Definition{Name: "or", MinArgs: 1, MaxArgs: -1, MinReturns: 1, MaxReturns: 1, New: pure(func(args []storage.Value) (storage.Value, bool) {
		for _, a := range args {
			if a != false {
				return true, true
			}
		}
		return false, true
	})})
	Register(Definition{Name: "toggle", MinArgs: 1, MaxArgs: 1, MinReturns: 1, MaxReturns: 1, New: pure(func(args []storage.Value) (storage.Value, bool) {
		return args[0] != true, true
	})})
}
