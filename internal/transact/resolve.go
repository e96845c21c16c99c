package transact

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
)

// resolver turns entity places into entids within one commit. TempIDs
// allocate from the commit's partition-map clone and are memoized, so
// the same (part, idx) pair resolves to the same fresh entid throughout
// one transaction. LookupRefs resolve against current state through the
// commit's own transaction, so they observe a consistent snapshot.
type resolver struct {
	ctx     context.Context
	tx      *sql.Tx
	idents  *schema.IdentMap
	schema  *schema.Schema
	parts   schema.PartMap
	tempids map[datom.TempID]datom.Entid
}

func newResolver(ctx context.Context, tx *sql.Tx, idents *schema.IdentMap, sch *schema.Schema, parts schema.PartMap) *resolver {
	return &resolver{
		ctx:     ctx,
		tx:      tx,
		idents:  idents,
		schema:  sch,
		parts:   parts,
		tempids: map[datom.TempID]datom.Entid{},
	}
}

// entity resolves the entity position of an op.
func (r *resolver) entity(place datom.EntityPlace) (datom.Entid, error) {
	switch p := place.(type) {
	case datom.Entid:
		return p, nil
	case datom.Keyword:
		eid, ok := r.idents.Entid(p)
		if !ok {
			return 0, syntaxErrorf("unknown ident %s", p)
		}
		return eid, nil
	case datom.TempID:
		return r.tempid(p)
	case datom.LookupRef:
		return r.lookupRef(p)
	default:
		return 0, syntaxErrorf("invalid entity place %T", place)
	}
}

// attribute resolves the attribute position and its schema entry.
func (r *resolver) attribute(place datom.EntityPlace) (datom.Entid, schema.Attribute, error) {
	eid, err := r.entity(place)
	if err != nil {
		return 0, schema.Attribute{}, err
	}
	attr, ok := r.schema.Attribute(eid)
	if !ok {
		return 0, schema.Attribute{}, syntaxErrorf("entid %d is not a schema attribute", eid)
	}
	return eid, attr, nil
}

// value resolves the value position against the attribute's type.
// Ref-typed attributes additionally accept idents, tempids, and
// lookup-refs, which resolve to the target entid.
func (r *resolver) value(attr schema.Attribute, place datom.ValuePlace) (datom.Value, error) {
	if place == nil {
		return nil, syntaxErrorf("missing value")
	}

	if attr.Ref() {
		switch p := place.(type) {
		case datom.Ref:
			return p, nil
		case datom.Long:
			return datom.Ref(p), nil
		case datom.Keyword:
			eid, ok := r.idents.Entid(p)
			if !ok {
				return nil, syntaxErrorf("unknown ident %s in ref value", p)
			}
			return datom.Ref(eid), nil
		case datom.TempID:
			eid, err := r.tempid(p)
			if err != nil {
				return nil, err
			}
			return datom.Ref(eid), nil
		case datom.LookupRef:
			eid, err := r.lookupRef(p)
			if err != nil {
				return nil, err
			}
			return datom.Ref(eid), nil
		default:
			return nil, syntaxErrorf("invalid ref value %T", place)
		}
	}

	v, ok := place.(datom.Value)
	if !ok {
		return nil, syntaxErrorf("value place %T is only valid on ref attributes", place)
	}
	if v.Type() != attr.ValueType {
		return nil, syntaxErrorf("value type %s does not match attribute type %s", v.Type(), attr.ValueType)
	}
	return v, nil
}

// tempid allocates a fresh entid for t, memoized per commit.
func (r *resolver) tempid(t datom.TempID) (datom.Entid, error) {
	if t.Idx >= 0 {
		return 0, syntaxErrorf("tempid %s: counter must be negative", t)
	}
	if eid, ok := r.tempids[t]; ok {
		return eid, nil
	}
	eid, err := r.parts.Allocate(t.Part, 1)
	if err != nil {
		return 0, syntaxErrorf("tempid %s: %v", t, err)
	}
	r.tempids[t] = eid
	return eid, nil
}

// lookupRef resolves (attribute, value) to an existing entity through a
// unique attribute. Invalid unless the attribute place is a keyword or
// entid and the value is non-nil.
func (r *resolver) lookupRef(ref datom.LookupRef) (datom.Entid, error) {
	switch ref.Attr.(type) {
	case datom.Keyword, datom.Entid:
	default:
		return 0, syntaxErrorf("lookup-ref %s: attribute must be a keyword or entid", ref)
	}
	if ref.Value == nil {
		return 0, syntaxErrorf("lookup-ref %s: missing value", ref)
	}

	aid, attr, err := r.attribute(ref.Attr)
	if err != nil {
		return 0, err
	}
	if attr.Unique == schema.UniqueNone {
		return 0, syntaxErrorf("lookup-ref %s: attribute %d is not unique", ref, aid)
	}

	raw, tag, err := datom.ToSQL(ref.Value)
	if err != nil {
		return 0, syntaxErrorf("lookup-ref %s: %v", ref, err)
	}

	var e int64
	err = r.tx.QueryRowContext(r.ctx,
		"SELECT e FROM datoms WHERE a = ? AND value_type_tag = ? AND v = ?",
		int64(aid), tag, raw).Scan(&e)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, syntaxErrorf("lookup-ref %s: no matching entity", ref)
	}
	if err != nil {
		return 0, wrapStorage("resolve lookup-ref", err)
	}
	return datom.Entid(e), nil
}
