// Package storage provides the in-memory fact store used by the evaluator.
//
// Facts are four-part tuples (entity, attribute, value, node) where node
// names the block or input that produced the fact. A TripleIndex keeps every
// fact under three orderings so that any combination of bound positions can
// be answered by a prefix lookup:
//
//   - EAV:  entity -> attribute -> value -> node
//   - AVE:  attribute -> value -> entity -> node
//   - NEAV: node -> entity -> attribute -> value
//
// Indexes are copy-on-write. Snapshot returns a cheap logical copy that
// shares all unmodified levels with its source.
//
// Example:
//
//	idx := storage.NewTripleIndex()
//	idx.Store("alice", "tag", "person", "input")
//	if lvl, ok := idx.ALookup("tag", "person", nil, nil); ok {
//		for _, e := range lvl.Keys() {
//			fmt.Println(e)
//		}
//	}
package storage

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a stored entity, attribute, value or node. Only string, float64
// and bool are stored; use Normalize at the boundary so that numeric keys
// compare equal regardless of how they were produced.
type Value = any

// DefaultNode is recorded for facts stored without a node.
const DefaultNode = "user"

// DefaultScope is the scope actions and scans use when none is given.
const DefaultScope = "session"

// Normalize converts any Go numeric type to float64 and leaves strings and
// bools untouched. Nil stays nil.
func Normalize(v any) Value {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return v
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return fmt.Sprint(v)
	}
}

// Format renders a value the way it is shown to users: integral numbers
// without a fractional part, everything else via fmt.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1e21 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(v)
	}
}

// Fact is a single stored tuple.
type Fact struct {
	E Value `json:"e" yaml:"e"`
	A Value `json:"a" yaml:"a"`
	V Value `json:"v" yaml:"v"`
	N Value `json:"n,omitempty" yaml:"n,omitempty"`
}

// String returns a compact representation for logs and test failures.
func (f Fact) String() string {
	return fmt.Sprintf("(%s %s %s @%s)", Format(f.E), Format(f.A), Format(f.V), Format(f.N))
}
