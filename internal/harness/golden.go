package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RenderTrace prints a result as golden-file text: a scenario header,
// one line per datom, and any recorded failures. The transactor's
// ordered read-back makes this byte-stable across runs.
func RenderTrace(scenario *Scenario, result *Result) []byte {
	var b strings.Builder
	b.WriteString("scenario: " + scenario.Name + "\n")
	for _, event := range result.Trace {
		b.WriteString(event.Render())
		b.WriteByte('\n')
	}
	for _, msg := range result.Errors {
		b.WriteString("error: " + msg + "\n")
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its rendered trace
// against testdata/golden/{scenario.Name}.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario, result)
	return result, nil
}

// AssertGolden compares an already-obtained result against the
// scenario's golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, RenderTrace(scenario, result))
}
