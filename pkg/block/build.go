package block

import (
	"github.com/orneryd/eavdb/pkg/actions"
	"github.com/orneryd/eavdb/pkg/join"
)

// Definition is an unplanned block: a flat provider list plus its actions.
type Definition struct {
	Name      string
	Providers []join.Provider
	Commit    []actions.Action
	Bind      []actions.Action
}

// Build stratifies the providers of def and creates the block.
func Build(def Definition) (*Block, error) {
	if def.Name == "" {
		return nil, &BuildError{Block: def.Name, Err: ErrNoName}
	}
	strata, err := join.Stratify(def.Providers)
	if err != nil {
		return nil, &BuildError{Block: def.Name, Err: err}
	}
	return New(def.Name, strata, def.Commit, def.Bind), nil
}

// BuildAll builds every definition. Blocks that fail are left out and
// their errors returned together as a *BatchError.
func BuildAll(defs []Definition) ([]*Block, error) {
	blocks := make([]*Block, 0, len(defs))
	var errs []error
	for _, def := range defs {
		b, err := Build(def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		blocks = append(blocks, b)
	}
	if len(errs) > 0 {
		return blocks, &BatchError{Errors: errs}
	}
	return blocks, nil
}
