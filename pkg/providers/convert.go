package providers

import (
	"strconv"
	"strings"

	"github.com/orneryd/eavdb/pkg/storage"
)

const feetPerMeter = 3.281

func init() {
	Register(Definition{Name: "convert", MinArgs: 2, MaxArgs: 3, MinReturns: 1, MaxReturns: 1, New: pure(convert)})
}

// convert turns args[0] into the unit or type named by args[1]: "number",
// "string", "feets" or "meters".
func convert(args []storage.Value) (storage.Value, bool) {
	to, ok := args[1].(string)
	if !ok {
		return nil, false
	}
	switch to {
	case "number":
		return toNumber(args[0])
	case "string":
		return storage.Format(args[0]), true
	case "feets":
		v, ok := toNumber(args[0])
		if !ok {
			return nil, false
		}
		return v.(float64) * feetPerMeter, true
	case "meters":
		v, ok := toNumber(args[0])
		if !ok {
			return nil, false
		}
		return v.(float64) / feetPerMeter, true
	default:
		return nil, false
	}
}

func toNumber(v storage.Value) (storage.Value, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1.0, true
		}
		return 0.0, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

func formatFixed(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}
