package providers

import (
	"strings"

	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

func init() {
	Register(Definition{Name: "concat", MinArgs: 1, MaxArgs: -1, MinReturns: 1, MaxReturns: 1, New: pure(concat)})
	Register(Definition{Name: "split", MinArgs: 2, MaxArgs: 2, MinReturns: 1, MaxReturns: 2, New: newSplit})
	Register(Definition{Name: "substring", MinArgs: 1, MaxArgs: 3, MinReturns: 1, MaxReturns: 1, New: pure(substring)})
	Register(Definition{Name: "lowercase", MinArgs: 1, MaxArgs: 1, MinReturns: 1, MaxReturns: 1, New: pure(mapString(strings.ToLower))})
	Register(Definition{Name: "uppercase", MinArgs: 1, MaxArgs: 1, MinReturns: 1, MaxReturns: 1, New: pure(mapString(strings.ToUpper))})
	Register(Definition{Name: "length", MinArgs: 1, MaxArgs: 1, MinReturns: 1, MaxReturns: 1, New: pure(length)})
}

func concat(args []storage.Value) (storage.Value, bool) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(storage.Format(a))
	}
	return b.String(), true
}

// newSplit yields one tuple per token. With two returns the second is the
// token's 1-based position.
func newSplit(_ string, returns int) join.Function {
	return join.FunctionFunc(func(args []storage.Value) ([][]storage.Value, bool) {
		text, ok1 := args[0].(string)
		by, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, false
		}
		tokens := strings.Split(text, by)
		out := make([][]storage.Value, 0, len(tokens))
		for i, tok := range tokens {
			if returns > 1 {
				out = append(out, []storage.Value{tok, float64(i + 1)})
			} else {
				out = append(out, []storage.Value{tok})
			}
		}
		return out, true
	})
}

// substring is 1-based and inclusive of both ends; from defaults to the
// start and to defaults to the end.
func substring(args []storage.Value) (storage.Value, bool) {
	text, ok := args[0].(string)
	if !ok {
		return nil, false
	}
	runes := []rune(text)
	from, to := 0, len(runes)
	if len(args) > 1 {
		f, ok := num(args[1])
		if !ok {
			return nil, false
		}
		from = int(f) - 1
	}
	if len(args) > 2 {
		t, ok := num(args[2])
		if !ok {
			return nil, false
		}
		to = int(t)
	}
	from = max(0, min(from, len(runes)))
	to = max(from, min(to, len(runes)))
	return string(runes[from:to]), true
}

func mapString(fn func(string) string) func(args []storage.Value) (storage.Value, bool) {
	return func(args []storage.Value) (storage.Value, bool) {
		s, ok := args[0].(string)
		if !ok {
			return nil, false
		}
		return fn(s), true
	}
}

func length(args []storage.Value) (storage.Value, bool) {
	s, ok := args[0].(string)
	if !ok {
		return nil, false
	}
	return float64(len([]rune(s))), true
}
