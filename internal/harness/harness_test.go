package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nameAttribute() []AttributeDef {
	return []AttributeDef{{
		Ident:       ":person/name",
		Type:        ":db.type/string",
		Cardinality: ":db.cardinality/one",
	}}
}

func TestRunReplaceScenario(t *testing.T) {
	scenario := &Scenario{
		Name:       "replace",
		Attributes: nameAttribute(),
		Transactions: []TxStep{
			{Tx: 100, Ops: []OpStep{{Op: OpAdd, E: 1, A: ":person/name", V: "Alice"}}},
			{Tx: 101, Ops: []OpStep{{Op: OpAdd, E: 1, A: ":person/name", V: "Alicia"}}},
		},
		Assertions: []Assertion{
			{Type: AssertCurrentCount, E: 1, A: ":person/name", Count: 1},
			{Type: AssertCurrentValue, E: 1, A: ":person/name", Value: "Alicia"},
			{Type: AssertLogCount, Tx: 101, Count: 2},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, TraceEvent{Tx: 100, E: 1, Attr: ":person/name", Value: `"Alice"`, Added: true}, result.Trace[0])
	assert.Equal(t, TraceEvent{Tx: 101, E: 1, Attr: ":person/name", Value: `"Alice"`, Added: false}, result.Trace[1])
	assert.Equal(t, TraceEvent{Tx: 101, E: 1, Attr: ":person/name", Value: `"Alicia"`, Added: true}, result.Trace[2])
}

func TestRunExpectedErrorMatches(t *testing.T) {
	scenario := &Scenario{
		Name: "unknown-attribute",
		Transactions: []TxStep{
			{
				Tx:     100,
				Ops:    []OpStep{{Op: OpAdd, E: 1, A: ":no/such", V: "x"}},
				Expect: &ExpectClause{Error: "syntax"},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace, "failed transactions contribute nothing")
}

func TestRunExpectedErrorKindMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:       "wrong-kind",
		Attributes: nameAttribute(),
		Transactions: []TxStep{
			{
				Tx:     100,
				Ops:    []OpStep{{Op: OpAdd, E: 1, A: ":person/name", V: "Alice"}},
				Expect: &ExpectClause{Error: "constraint/unique"},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass, "a succeeding tx cannot satisfy an expect clause")
}

func TestRunUnexpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name: "boom",
		Transactions: []TxStep{
			{Tx: 100, Ops: []OpStep{{Op: OpAdd, E: 1, A: ":no/such", V: "x"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "tx 100")
}

func TestRunAssertionFailureReported(t *testing.T) {
	scenario := &Scenario{
		Name:       "bad-assertion",
		Attributes: nameAttribute(),
		Transactions: []TxStep{
			{Tx: 100, Ops: []OpStep{{Op: OpAdd, E: 1, A: ":person/name", V: "Alice"}}},
		},
		Assertions: []Assertion{
			{Type: AssertCurrentValue, E: 1, A: ":person/name", Value: "Bob"},
			{Type: AssertAbsent, E: 1, A: ":person/name"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 2, "every failing assertion is reported")
}

func TestRunRetractAttributeScenario(t *testing.T) {
	scenario := &Scenario{
		Name: "retract-attribute",
		Attributes: []AttributeDef{{
			Ident:       ":person/aliases",
			Type:        ":db.type/string",
			Cardinality: ":db.cardinality/many",
		}},
		Transactions: []TxStep{
			{Tx: 100, Ops: []OpStep{
				{Op: OpAdd, E: 1, A: ":person/aliases", V: "ally"},
				{Op: OpAdd, E: 1, A: ":person/aliases", V: "al"},
			}},
			{Tx: 101, Ops: []OpStep{
				{Op: OpRetractAttribute, E: 1, A: ":person/aliases"},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertAbsent, E: 1, A: ":person/aliases"},
			{Type: AssertLogCount, Tx: 101, Count: 2},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRenderTrace(t *testing.T) {
	scenario := &Scenario{Name: "render"}
	result := NewResult()
	result.Trace = append(result.Trace,
		TraceEvent{Tx: 100, E: 1, Attr: ":person/name", Value: `"Alice"`, Added: true},
		TraceEvent{Tx: 101, E: 1, Attr: ":person/name", Value: `"Alice"`, Added: false},
	)

	want := "scenario: render\n" +
		"100 + 1 :person/name \"Alice\"\n" +
		"101 - 1 :person/name \"Alice\"\n"
	assert.Equal(t, want, string(RenderTrace(scenario, result)))
}
