// Package store owns the SQLite layer of the datom database: the
// persisted tables (datoms, transactions, idents, schema, parts,
// fulltext_values), the connection-scoped scratch tables the staging
// pipeline writes into, and the exclusive unit-of-work primitive every
// mutating pipeline runs inside.
//
// The store knows nothing about schema semantics or transaction
// processing; it loads and persists the metadata tables into the types
// in internal/schema and hands raw rows to internal/transact. A fresh
// database is seeded with the core idents, their symbolic schema, and
// the three standard partitions (see bootstrap.go).
package store
