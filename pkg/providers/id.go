package providers

import (
	"github.com/google/uuid"

	"github.com/orneryd/eavdb/pkg/join"
	"github.com/orneryd/eavdb/pkg/storage"
)

// idNamespace scopes every generated identifier.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("eavdb"))

func init() {
	Register(Definition{Name: "generate-id", MinArgs: 1, MaxArgs: -1, MinReturns: 1, MaxReturns: 1, New: newGenerateID})
}

// GenerateID derives a stable identifier from a constraint id and its
// argument values. The same inputs always produce the same id.
func GenerateID(id string, args []storage.Value) string {
	parts := append([]storage.Value{id}, args...)
	return uuid.NewSHA1(idNamespace, []byte(join.TupleKey(parts))).String()
}

func newGenerateID(id string, _ int) join.Function {
	return join.FunctionFunc(func(args []storage.Value) ([][]storage.Value, bool) {
		return single(GenerateID(id, args)), true
	})
}
