package transact

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
	"github.com/roach88/datalite/internal/sqlgen"
	"github.com/roach88/datalite/internal/store"
)

// DefaultFulltextCacheSize bounds the rowid-to-text readback cache.
const DefaultFulltextCacheSize = 4096

// Connection is the transaction-processing surface. DB is the one
// storage-backed implementation; the interface is the seam an alternate
// backend would fill.
type Connection interface {
	Transact(ctx context.Context, txid datom.Entid, ops []datom.Entity) ([]datom.Datom, error)
	AlterSchema(ctx context.Context, alts []Alteration) (*schema.Schema, error)
	ApplyIdents(ctx context.Context, added, retracted []IdentBinding) (*schema.IdentMap, *schema.Schema, error)
	ApplyPartMap(ctx context.Context, parts schema.PartMap) error
	DefineAttributes(ctx context.Context, defs schema.Definition) (*schema.Schema, error)
	Entid(place datom.EntityPlace) datom.EntityPlace
	Ident(place datom.EntityPlace) datom.EntityPlace
	QueryContext() SchemaView
	Close() error
}

var _ Connection = (*DB)(nil)

// DB is the storage-backed transaction processor. All mutating entry
// points (Transact, AlterSchema, ApplyIdents, ApplyPartMap,
// DefineAttributes) serialize on one mutex and run inside one exclusive
// store transaction each.
//
// The in-memory metadata (ident map, partition map, symbolic and
// resolved schema) mirrors the idents/parts/schema tables and is swapped
// only after the corresponding statements committed.
type DB struct {
	store   *store.Store
	log     *slog.Logger
	ceiling int

	mu     sync.RWMutex
	idents *schema.IdentMap
	parts  schema.PartMap
	def    schema.Definition
	schema *schema.Schema

	fulltext *lru.Cache[int64, string]
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(db *DB) { db.log = log }
}

// WithParamCeiling overrides the bound-parameter ceiling used to chunk
// batched statements. Defaults to sqlgen.DefaultParamCeiling.
func WithParamCeiling(n int) Option {
	return func(db *DB) { db.ceiling = n }
}

// WithFulltextCacheSize sizes the fulltext readback cache.
func WithFulltextCacheSize(n int) Option {
	return func(db *DB) {
		cache, err := lru.New[int64, string](n)
		if err == nil {
			db.fulltext = cache
		}
	}
}

// Open opens (or creates) the database at path and loads the metadata
// tables into memory.
func Open(path string, opts ...Option) (*DB, error) {
	s, err := store.Open(path)
	if err != nil {
		return nil, err
	}

	db := &DB{
		store:   s,
		log:     slog.Default(),
		ceiling: sqlgen.DefaultParamCeiling,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.fulltext == nil {
		db.fulltext, _ = lru.New[int64, string](DefaultFulltextCacheSize)
	}

	ctx := context.Background()
	if err := db.reloadMetadata(ctx); err != nil {
		s.Close()
		return nil, err
	}

	txMetricsInit()
	return db, nil
}

// Close closes the underlying store.
func (db *DB) Close() error {
	return db.store.Close()
}

// Store exposes the storage layer for table-level readers (CLI, tests).
func (db *DB) Store() *store.Store {
	return db.store
}

// reloadMetadata reads idents, schema, and parts from disk and rebuilds
// the resolved schema.
func (db *DB) reloadMetadata(ctx context.Context) error {
	idents, err := db.store.LoadIdents(ctx)
	if err != nil {
		return err
	}
	def, err := db.store.LoadDefinition(ctx)
	if err != nil {
		return err
	}
	parts, err := db.store.LoadParts(ctx)
	if err != nil {
		return err
	}
	resolved, err := schema.Resolve(def, idents)
	if err != nil {
		return err
	}

	db.mu.Lock()
	db.idents = idents
	db.def = def
	db.parts = parts
	db.schema = resolved
	db.mu.Unlock()
	return nil
}

// Entid resolves a keyword ident to its entid. Numeric input and
// unrecognized idents pass through unchanged; callers must not assume
// an error for unknown idents.
func (db *DB) Entid(place datom.EntityPlace) datom.EntityPlace {
	kw, ok := place.(datom.Keyword)
	if !ok {
		return place
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	if eid, ok := db.idents.Entid(kw); ok {
		return eid
	}
	return place
}

// Ident resolves an entid to its keyword ident, with the same
// pass-through behavior as Entid.
func (db *DB) Ident(place datom.EntityPlace) datom.EntityPlace {
	eid, ok := place.(datom.Entid)
	if !ok {
		return place
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	if kw, ok := db.idents.Keyword(eid); ok {
		return kw
	}
	return place
}

// SchemaView is the read-only metadata surface consumed by the query
// compiler: resolved attribute predicates plus ident resolution. The
// view is a snapshot; schema mutation produces a fresh one.
type SchemaView struct {
	schema *schema.Schema
	idents *schema.IdentMap
	parts  schema.PartMap
}

// QueryContext snapshots the current metadata for query compilation.
func (db *DB) QueryContext() SchemaView {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return SchemaView{
		schema: db.schema,
		idents: db.idents.Clone(),
		parts:  db.parts.Clone(),
	}
}

// Schema returns the resolved attribute map.
func (v SchemaView) Schema() *schema.Schema { return v.schema }

// Entid resolves an ident.
func (v SchemaView) Entid(kw datom.Keyword) (datom.Entid, bool) {
	return v.idents.Entid(kw)
}

// Ident resolves an entid.
func (v SchemaView) Ident(eid datom.Entid) (datom.Keyword, bool) {
	return v.idents.Keyword(eid)
}

// Attribute looks up the resolved schema entry for a.
func (v SchemaView) Attribute(a datom.Entid) (schema.Attribute, bool) {
	return v.schema.Attribute(a)
}

// Partitions returns the partition allocators.
func (v SchemaView) Partitions() schema.PartMap { return v.parts }

// ApplyPartMap persists partitions whose allocation counter advanced
// versus the stored map, with one batched upsert keyed by partition
// name. Partitions that did not advance are untouched.
func (db *DB) ApplyPartMap(ctx context.Context, parts schema.PartMap) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	advanced := parts.Advanced(db.parts)
	if len(advanced) == 0 {
		return nil
	}

	err := db.store.InTransaction(ctx, func(tx *sql.Tx) error {
		return persistParts(ctx, tx, parts, advanced)
	})
	if err != nil {
		return err
	}

	for _, part := range advanced {
		db.parts[part] = parts[part]
	}
	db.log.Debug("partition map applied", "advanced", len(advanced))
	return nil
}

// persistParts upserts the advanced partitions inside tx. A partition
// the stored map has never seen is inserted; an existing row only has
// its allocation counter replaced.
func persistParts(ctx context.Context, tx *sql.Tx, parts schema.PartMap, advanced []datom.Keyword) error {
	if len(advanced) == 0 {
		return nil
	}

	var b strings.Builder
	args := make([]any, 0, len(advanced)*3)

	b.WriteString("INSERT INTO parts (part, start, idx) VALUES ")
	for i, part := range advanced {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?)")
		p := parts[part]
		args = append(args, part.String(), int64(p.Start), int64(p.Idx))
	}
	b.WriteString(" ON CONFLICT(part) DO UPDATE SET idx = excluded.idx")

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return wrapStorage("persist partition map", err)
	}
	return nil
}

// fulltextText resolves an interned rowid to its text through the LRU
// cache, falling back to the given querier (a commit's tx or the db).
func (db *DB) fulltextText(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, rowid int64) (string, error) {
	if text, ok := db.fulltext.Get(rowid); ok {
		return text, nil
	}
	var text string
	err := q.QueryRowContext(ctx,
		"SELECT text FROM fulltext_values WHERE rowid = ?", rowid).Scan(&text)
	if err != nil {
		return "", wrapStorage(fmt.Sprintf("resolve fulltext rowid %d", rowid), err)
	}
	db.fulltext.Add(rowid, text)
	return text, nil
}
