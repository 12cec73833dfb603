// Package program loads rule programs from YAML.
//
// A program is a list of seed facts and a list of blocks written directly
// as the object graph the engine runs: providers under match, actions
// under bind and commit. Strings starting with "?" are variables, scoped
// to the block they appear in; nested not and if bodies share the names of
// their enclosing block.
//
//	facts:
//	  - {e: e1, a: tag, v: person}
//	blocks:
//	  - name: greet
//	    match:
//	      - scan: {e: "?p", a: tag, v: person}
//	    bind:
//	      - insert: {e: "?p", a: greeting, v: hello}
package program

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Program is a parsed program document.
type Program struct {
	// Scopes are created up front so blocks may read them before anything
	// is written.
	Scopes []string    `yaml:"scopes,omitempty"`
	Facts  []FactSpec  `yaml:"facts,omitempty"`
	Blocks []BlockSpec `yaml:"blocks,omitempty"`
}

// FactSpec is a seed fact.
type FactSpec struct {
	E     any    `yaml:"e"`
	A     any    `yaml:"a"`
	V     any    `yaml:"v"`
	N     string `yaml:"n,omitempty"`
	Scope string `yaml:"scope,omitempty"`
}

// BlockSpec describes one block.
type BlockSpec struct {
	Name   string       `yaml:"name"`
	Match  []MatchSpec  `yaml:"match,omitempty"`
	Bind   []ActionSpec `yaml:"bind,omitempty"`
	Commit []ActionSpec `yaml:"commit,omitempty"`
}

// MatchSpec is one provider. Exactly one field must be set.
type MatchSpec struct {
	Scan *ScanSpec `yaml:"scan,omitempty"`
	Fn   *FnSpec   `yaml:"fn,omitempty"`
	Agg  *AggSpec  `yaml:"agg,omitempty"`
	Sort *SortSpec `yaml:"sort,omitempty"`
	Not  *NotSpec  `yaml:"not,omitempty"`
	If   *IfSpec   `yaml:"if,omitempty"`
}

// ScanSpec matches facts. Omitted e, a or v positions match anything.
type ScanSpec struct {
	E      any      `yaml:"e,omitempty"`
	A      any      `yaml:"a,omitempty"`
	V      any      `yaml:"v,omitempty"`
	N      any      `yaml:"n,omitempty"`
	Scopes []string `yaml:"scopes,omitempty"`
}

// FnSpec calls a registered function.
type FnSpec struct {
	Op      string `yaml:"op"`
	Args    []any  `yaml:"args,omitempty"`
	Returns []any  `yaml:"returns,omitempty"`
}

// AggSpec folds rows with sum, count or average.
type AggSpec struct {
	Op      string `yaml:"op"`
	Value   any    `yaml:"value,omitempty"`
	Given   []any  `yaml:"given,omitempty"`
	Per     []any  `yaml:"per,omitempty"`
	Returns []any  `yaml:"returns"`
}

// SortSpec ranks rows within their group.
type SortSpec struct {
	Value     []any `yaml:"value"`
	Direction []any `yaml:"direction,omitempty"`
	Per       []any `yaml:"per,omitempty"`
	Returns   []any `yaml:"returns"`
}

// NotSpec rejects rows for which its body matches.
type NotSpec struct {
	Args  []string    `yaml:"args,omitempty"`
	Match []MatchSpec `yaml:"match"`
}

// IfSpec binds outputs from the first (exclusive) or every matching branch.
type IfSpec struct {
	Args      []string     `yaml:"args,omitempty"`
	Outputs   []string     `yaml:"outputs"`
	Exclusive bool         `yaml:"exclusive,omitempty"`
	Branches  []BranchSpec `yaml:"branches"`
}

// BranchSpec is one alternative of an if.
type BranchSpec struct {
	Match   []MatchSpec `yaml:"match,omitempty"`
	Outputs []any       `yaml:"outputs"`
}

// ActionSpec is one action. Exactly one field must be set.
type ActionSpec struct {
	Insert        *ActionArgs `yaml:"insert,omitempty"`
	Remove        *ActionArgs `yaml:"remove,omitempty"`
	RemoveSupport *ActionArgs `yaml:"remove-support,omitempty"`
	Set           *ActionArgs `yaml:"set,omitempty"`
	Erase         *ActionArgs `yaml:"erase,omitempty"`
}

// ActionArgs are the terms of an action. Node defaults to the action ID.
type ActionArgs struct {
	E      any      `yaml:"e"`
	A      any      `yaml:"a,omitempty"`
	V      any      `yaml:"v,omitempty"`
	Node   string   `yaml:"node,omitempty"`
	Scopes []string `yaml:"scopes,omitempty"`
}

// Load parses a program.
func Load(r io.Reader) (*Program, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Program
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	return &p, nil
}

// LoadFile parses the program at path.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program file: %w", err)
	}
	p, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
