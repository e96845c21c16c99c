package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one declarative transaction test: install attributes, run
// transactions with explicit ids, assert on the outcome.
type Scenario struct {
	// Name uniquely identifies the scenario; golden files are keyed on it.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description,omitempty"`

	// Attributes are installed before the first transaction runs.
	Attributes []AttributeDef `yaml:"attributes,omitempty"`

	// Transactions run in order, each with a caller-chosen id so the
	// trace is reproducible.
	Transactions []TxStep `yaml:"transactions"`

	// Assertions validate final current state and the transaction log.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// AttributeDef declares one attribute in scenario YAML.
type AttributeDef struct {
	// Ident is the printed keyword, e.g. ":person/name".
	Ident string `yaml:"ident"`

	// Type is the value-type ident, e.g. ":db.type/string".
	Type string `yaml:"type"`

	// Cardinality is ":db.cardinality/one" or ":db.cardinality/many".
	Cardinality string `yaml:"cardinality"`

	// Unique is ":db.unique/value" or ":db.unique/identity"; empty means none.
	Unique string `yaml:"unique,omitempty"`

	Index    bool   `yaml:"index,omitempty"`
	Fulltext bool   `yaml:"fulltext,omitempty"`
	Doc      string `yaml:"doc,omitempty"`
}

// TxStep is one transaction in a scenario.
type TxStep struct {
	// Tx is the explicit transaction id.
	Tx int64 `yaml:"tx"`

	// Ops are the operations submitted under this id.
	Ops []OpStep `yaml:"ops"`

	// Expect, when present, says the commit must fail with the named
	// error kind. The failed transaction contributes nothing to the trace.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// OpStep is one operation. Which fields matter depends on Op: add and
// retract use e, a, v; retract-attribute uses e and a; retract-entity
// only e.
type OpStep struct {
	Op string `yaml:"op"`
	E  int64  `yaml:"e"`
	A  string `yaml:"a,omitempty"`
	V  any    `yaml:"v,omitempty"`
}

// Operation names accepted in scenario YAML.
const (
	OpAdd              = "add"
	OpRetract          = "retract"
	OpRetractAttribute = "retract-attribute"
	OpRetractEntity    = "retract-entity"
)

// ExpectClause names the error kind a transaction must fail with.
type ExpectClause struct {
	// Error is one of "syntax", "schema", "storage",
	// "constraint/unique", "constraint/cardinality".
	Error string `yaml:"error"`
}

// Assertion validates final state after all transactions ran.
type Assertion struct {
	// Type selects the check:
	//   - "current_count": entity e holds exactly Count values of a
	//   - "current_value": entity e holds Value for a
	//   - "absent": entity e holds no value for a
	//   - "log_count": the log holds exactly Count rows at tx
	Type string `yaml:"type"`

	E     int64  `yaml:"e,omitempty"`
	A     string `yaml:"a,omitempty"`
	Tx    int64  `yaml:"tx,omitempty"`
	Value any    `yaml:"value,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCurrentCount = "current_count"
	AssertCurrentValue = "current_value"
	AssertAbsent       = "absent"
	AssertLogCount     = "log_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so a typo cannot silently skip a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Validate checks structural requirements before execution.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario missing name")
	}
	if len(s.Transactions) == 0 {
		return fmt.Errorf("scenario %q has no transactions", s.Name)
	}

	seen := map[int64]bool{}
	for i, step := range s.Transactions {
		if step.Tx <= 0 {
			return fmt.Errorf("scenario %q: transaction %d needs a positive tx id", s.Name, i)
		}
		if seen[step.Tx] {
			return fmt.Errorf("scenario %q: duplicate tx id %d", s.Name, step.Tx)
		}
		seen[step.Tx] = true
		if len(step.Ops) == 0 {
			return fmt.Errorf("scenario %q: tx %d has no ops", s.Name, step.Tx)
		}
		for _, op := range step.Ops {
			switch op.Op {
			case OpAdd, OpRetract, OpRetractAttribute, OpRetractEntity:
			default:
				return fmt.Errorf("scenario %q: tx %d has unknown op %q", s.Name, step.Tx, op.Op)
			}
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertCurrentCount, AssertCurrentValue, AssertAbsent, AssertLogCount:
		default:
			return fmt.Errorf("scenario %q: assertion %d has unknown type %q", s.Name, i, a.Type)
		}
	}
	return nil
}
