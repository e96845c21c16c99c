package transact

import (
	"context"
	"sync"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
)

// Transactor is a per-session transaction builder. It mints transaction
// ids from :db.part/tx and owns the negative tempid counter, so tempids
// from different sessions can never collide. Safe for concurrent use;
// commits themselves serialize on the DB.
type Transactor struct {
	db *DB

	mu      sync.Mutex
	tempids int64
}

// NewTransactor builds a session on db.
func NewTransactor(db *DB) *Transactor {
	return &Transactor{db: db}
}

// TempID mints a fresh placeholder allocating from part at commit time.
func (t *Transactor) TempID(part datom.Keyword) datom.TempID {
	t.mu.Lock()
	t.tempids--
	idx := t.tempids
	t.mu.Unlock()
	return datom.TempID{Part: part, Idx: idx}
}

// UserTempID is TempID for the default :db.part/user partition.
func (t *Transactor) UserTempID() datom.TempID {
	return t.TempID(schema.PartUser)
}

// Transact allocates a transaction id from :db.part/tx and applies the
// operations under it, returning the id and the resulting datoms.
func (t *Transactor) Transact(ctx context.Context, ops []datom.Entity) (datom.Entid, []datom.Datom, error) {
	return t.db.transact(ctx, 0, true, ops)
}
