// Package transact is the transaction-processing core: it turns batches
// of entity operations into durable changes to the current-state datoms
// table and the append-only transaction log, and owns schema, ident,
// and partition mutation.
//
// A commit runs as one exclusive unit of work on the store. Operations
// are classified by kind and shape, staged into connection-scoped
// scratch tables with chunked batched statements, reconciled against
// current state with a two-branch merge, and materialized into the log
// and the datoms table. Any failing statement aborts the whole unit;
// partial commits are never observable.
//
// The DB type exposes the core surface: Transact, AlterSchema,
// ApplyIdents, ApplyPartMap, DefineAttributes, Entid/Ident, and the
// read-only SchemaView consumed by the query compiler.
package transact
