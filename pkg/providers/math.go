package providers

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

func finite(v float64) (float64, bool) {
	return v, !math.IsNaN(v) && !math.IsInf(v, 0)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// maxRange caps the values a single range constraint may produce.
const maxRange = 1 << 20

func init() {
	arith := func(name string, fn func(a, b float64) (float64, bool)) {
		Register(Definition{Name: name, MinArgs: 2, MaxArgs: 2, MinReturns: 1, MaxReturns: 1, New: binaryOp(fn)})
	}
	fn1 := func(name string, fn func(a float64) (float64, bool)) {
		Register(Definition{Name: name, MinArgs: 1, MaxArgs: 1, MinReturns: 1, MaxReturns: 1, New: unary(fn)})
	}

	arith("+", func(a, b float64) (float64, bool) { return finite(a + b) })
	arith("-", func(a, b float64) (float64, bool) { return finite(a - b) })
	arith("*", func(a, b float64) (float64, bool) { return finite(a * b) })
	arith("/", func(a, b float64) (float64, bool) {
		if b == 0 {
			return 0, false
		}
		return finite(a / b)
	})
	arith("mod", func(a, b float64) (float64, bool) {
		if b == 0 {
			return 0, false
		}
		return math.Mod(a, b), true
	})
	arith("pow", func(a, b float64) (float64, bool) { return finite(math.Pow(a, b)) })

	fn1("sin", func(a float64) (float64, bool) { return finite(math.Sin(radians(a))) })
	fn1("cos", func(a float64) (float64, bool) { return finite(math.Cos(radians(a))) })
	fn1("log", func(a float64) (float64, bool) {
		if a <= 0 {
			return 0, false
		}
		return math.Log10(a), true
	})
	fn1("abs", func(a float64) (float64, bool) { return math.Abs(a), true })
	fn1("floor", func(a float64) (float64, bool) { return math.Floor(a), true })
	fn1("ceiling", func(a float64) (float64, bool) { return math.Ceil(a), true })
	fn1("round", func(a float64) (float64, bool) { return math.Floor(a + 0.5), true })

	Register(Definition{Name: "to-fixed", MinArgs: 2, MaxArgs: 2, MinReturns: 1, MaxReturns: 1, New: pure(toFixed)})
	Register(Definition{Name: "range", MinArgs: 2, MaxArgs: 3, MinReturns: 1, MaxReturns: 1, New: newRange})
	Register(Definition{Name: "random", MinArgs: 1, MaxArgs: 1, MinReturns: 1, MaxReturns: 1, New: pure(random)})
	Register(Definition{Name: "gaussian", MinArgs: 1, MaxArgs: 3, MinReturns: 1, MaxReturns: 1, New: pure(gaussian)})
}

func toFixed(args []storage.Value) (storage.Value, bool) {
	v, ok1 := num(args[0])
	places, ok2 := num(args[1])
	if !ok1 || !ok2 || places < 0 || places > 20 {
		return nil, false
	}
	return formatFixed(v, int(places)), true
}

func newRange(string, int) join.Function {
	return join.FunctionFunc(func(args []storage.Value) ([][]storage.Value, bool) {
		from, ok1 := num(args[0])
		to, ok2 := num(args[1])
		if !ok1 || !ok2 {
			return nil, false
		}
		step := 1.0
		if len(args) > 2 {
			s, ok := num(args[2])
			if !ok {
				return nil, false
			}
			step = s
		}
		if step == 0 || (from <= to && step < 0) || (from > to && step > 0) {
			return nil, false
		}
		if math.Abs((to-from)/step) > maxRange {
			return nil, false
		}
		var out [][]storage.Value
		for v := from; (step > 0 && v <= to) || (step < 0 && v >= to); v += step {
			out = append(out, []storage.Value{v})
		}
		return out, true
	})
}

// seededUnit maps a seed to a stable number in [0, 1). The same seed always
// yields the same number so re-derivation is idempotent.
func seededUnit(parts ...storage.Value) float64 {
	u := uuid.NewSHA1(idNamespace, []byte(join.TupleKey(parts)))
	return float64(binary.BigEndian.Uint64(u[:8])>>11) / (1 << 53)
}

func random(args []storage.Value) (storage.Value, bool) {
	return seededUnit("random", args[0]), true
}

func gaussian(args []storage.Value) (storage.Value, bool) {
	sigma, mu := 1.0, 0.0
	if len(args) > 1 {
		s, ok := num(args[1])
		if !ok {
			return nil, false
		}
		sigma = s
	}
	if len(args) > 2 {
		m, ok := num(args[2])
		if !ok {
			return nil, false
		}
		mu = m
	}
	u1 := seededUnit("gaussian", args[0], 1.0)
	u2 := seededUnit("gaussian", args[0], 2.0)
	if u1 == 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return z*sigma + mu, true
}
