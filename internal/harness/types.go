package harness

import "fmt"

// TraceEvent is one datom produced by a scenario transaction, with the
// attribute resolved back to its printed ident and the value rendered.
type TraceEvent struct {
	Tx    int64  `json:"tx"`
	E     int64  `json:"e"`
	Attr  string `json:"attr"`
	Value string `json:"value"`
	Added bool   `json:"added"`
}

// Render prints the event as one golden-file line.
func (e TraceEvent) Render() string {
	op := "-"
	if e.Added {
		op = "+"
	}
	return fmt.Sprintf("%d %s %d %s %s", e.Tx, op, e.E, e.Attr, e.Value)
}

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass is true when every transaction behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists all datoms produced, in commit order. Expected-error
	// transactions contribute nothing.
	Trace []TraceEvent `json:"trace"`

	// Errors holds the failures. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}
