// Package harness runs declarative transaction scenarios against a
// fresh database and compares the resulting datom trace against golden
// files.
//
// A scenario is a YAML document naming the attributes to install, a
// sequence of transactions (each with an explicit transaction id, so
// runs are reproducible), and assertions over the final current state
// and transaction log. Each scenario executes in its own in-memory
// database for isolation.
//
// Scenarios with explicit ids produce byte-identical traces on every
// run, which is what makes golden comparison meaningful: the trace is
// rendered one line per datom, ordered the way the transactor returns
// them.
package harness
