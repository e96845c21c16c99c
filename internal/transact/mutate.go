package transact

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
)

// IdentBinding pairs an entity id with a symbolic ident.
type IdentBinding struct {
	Entid datom.Entid
	Ident datom.Keyword
}

// ApplyIdents applies ident additions and retractions. An entity id
// present in both sets is a rename, not a delete-and-create: the schema
// key and ident row are updated in place, with foreign-key checking
// deferred for the duration so no spurious mid-sequence violation
// fires. Returns the updated ident map and resolved schema.
func (db *DB) ApplyIdents(ctx context.Context, added, retracted []IdentBinding) (*schema.IdentMap, *schema.Schema, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	addedBy := map[datom.Entid]datom.Keyword{}
	for _, b := range added {
		addedBy[b.Entid] = b.Ident
	}
	retractedBy := map[datom.Entid]datom.Keyword{}
	for _, b := range retracted {
		retractedBy[b.Entid] = b.Ident
	}

	type rename struct {
		eid      datom.Entid
		old, new datom.Keyword
	}
	var renames []rename
	var pureAdds []IdentBinding
	var pureRetracts []IdentBinding

	for _, b := range added {
		if old, ok := retractedBy[b.Entid]; ok {
			if old != b.Ident {
				renames = append(renames, rename{eid: b.Entid, old: old, new: b.Ident})
			}
			continue
		}
		pureAdds = append(pureAdds, b)
	}
	for _, b := range retracted {
		if _, ok := addedBy[b.Entid]; ok {
			continue
		}
		pureRetracts = append(pureRetracts, b)
	}

	err := db.store.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
			return wrapStorage("defer foreign keys", err)
		}

		for _, r := range renames {
			if _, err := tx.ExecContext(ctx,
				"UPDATE schema SET ident = ? WHERE ident = ?",
				r.new.String(), r.old.String()); err != nil {
				return wrapStorage("rename schema key", err)
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE idents SET ident = ? WHERE entid = ?",
				r.new.String(), int64(r.eid)); err != nil {
				return wrapStorage("rename ident", err)
			}
		}
		for _, b := range pureRetracts {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM schema WHERE ident = ?", b.Ident.String()); err != nil {
				return wrapStorage("retract schema rows", err)
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM idents WHERE entid = ?", int64(b.Entid)); err != nil {
				return wrapStorage("retract ident", err)
			}
		}
		for _, b := range pureAdds {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO idents (ident, entid) VALUES (?, ?)",
				b.Ident.String(), int64(b.Entid)); err != nil {
				return wrapStorage("add ident", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	idents := db.idents.Clone()
	def := db.def.Clone()
	for _, r := range renames {
		if err := idents.Rename(r.eid, r.new); err != nil {
			return nil, nil, &StorageError{Op: "rebind renamed ident", Err: err}
		}
		if props, ok := def[r.old]; ok {
			delete(def, r.old)
			def[r.new] = props
		}
	}
	for _, b := range pureRetracts {
		idents.Remove(b.Entid)
		delete(def, b.Ident)
	}
	for _, b := range pureAdds {
		if err := idents.Bind(b.Ident, b.Entid); err != nil {
			return nil, nil, &StorageError{Op: "bind added ident", Err: err}
		}
	}

	resolved, err := schema.Resolve(def, idents)
	if err != nil {
		return nil, nil, err
	}

	db.idents = idents
	db.def = def
	db.schema = resolved
	db.log.Info("idents applied",
		"renamed", len(renames), "added", len(pureAdds), "retracted", len(pureRetracts))
	return idents, resolved, nil
}

// Alteration changes one property of an installed attribute. A nil
// Value clears the property; only :db/unique supports clearing.
type Alteration struct {
	Attribute datom.Entid
	Property  datom.Keyword
	Value     datom.Value
}

// alterPlan is one validated alteration ready to apply.
type alterPlan struct {
	ident          datom.Keyword
	attrEid        datom.Entid
	property       datom.Keyword
	value          datom.Value // nil removes the schema row
	checkManyToOne bool
	clearUnique    bool
}

// AlterSchema applies attribute-property alterations. Every triple is
// validated before any statement executes; an unknown property, an
// unknown attribute, or enabling uniqueness where none was declared
// fails with a SchemaError and leaves all state untouched. Narrowing
// cardinality many-to-one additionally pre-checks that no entity holds
// more than one value.
func (db *DB) AlterSchema(ctx context.Context, alts []Alteration) (*schema.Schema, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	plans := make([]alterPlan, 0, len(alts))
	for _, alt := range alts {
		plan, err := db.validateAlteration(alt)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	err := db.store.InTransaction(ctx, func(tx *sql.Tx) error {
		// All pre-checks run before the first mutating statement.
		for _, plan := range plans {
			if !plan.checkManyToOne {
				continue
			}
			var e int64
			err := tx.QueryRowContext(ctx,
				"SELECT e FROM datoms WHERE a = ? GROUP BY e HAVING COUNT(*) > 1 LIMIT 1",
				int64(plan.attrEid)).Scan(&e)
			if err == nil {
				return schemaErrorf(plan.ident,
					"cannot narrow to cardinality one: entity %d holds multiple values", e)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return wrapStorage("cardinality narrowing pre-check", err)
			}
		}

		for _, plan := range plans {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM schema WHERE ident = ? AND attr = ?",
				plan.ident.String(), plan.property.String()); err != nil {
				return wrapStorage("clear schema property", err)
			}
			if plan.value != nil {
				raw, tag, err := datom.ToSQL(plan.value)
				if err != nil {
					return schemaErrorf(plan.ident, "property %s: %v", plan.property, err)
				}
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO schema (ident, attr, value, value_type_tag) VALUES (?, ?, ?, ?)",
					plan.ident.String(), plan.property.String(), raw, tag); err != nil {
					return wrapStorage("write schema property", err)
				}
			}
			if plan.clearUnique {
				if _, err := tx.ExecContext(ctx,
					"UPDATE datoms SET unique_value = 0 WHERE a = ?",
					int64(plan.attrEid)); err != nil {
					return wrapStorage("clear unique flags", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	def := db.def.Clone()
	for _, plan := range plans {
		if plan.value == nil {
			delete(def[plan.ident], plan.property)
		} else {
			def.Set(plan.ident, plan.property, plan.value)
		}
	}
	resolved, err := schema.Resolve(def, db.idents)
	if err != nil {
		return nil, err
	}

	db.def = def
	db.schema = resolved
	db.log.Info("schema altered", "alterations", len(plans))
	return resolved, nil
}

// validateAlteration checks one triple against the current schema
// without touching storage.
func (db *DB) validateAlteration(alt Alteration) (alterPlan, error) {
	ident, ok := db.idents.Keyword(alt.Attribute)
	if !ok {
		return alterPlan{}, schemaErrorf(datom.Keyword{}, "entid %d is not an ident", alt.Attribute)
	}
	attr, ok := db.schema.Attribute(alt.Attribute)
	if !ok {
		return alterPlan{}, schemaErrorf(ident, "not an installed attribute")
	}

	plan := alterPlan{ident: ident, attrEid: alt.Attribute, property: alt.Property, value: alt.Value}

	switch alt.Property {
	case schema.DBNoHistory, schema.DBIsComponent:
		if _, ok := alt.Value.(datom.Boolean); !ok {
			return alterPlan{}, schemaErrorf(ident, "property %s requires a boolean", alt.Property)
		}

	case schema.DBCardinality:
		kw, ok := alt.Value.(datom.Keyword)
		if !ok {
			return alterPlan{}, schemaErrorf(ident, "property %s requires a cardinality ident", alt.Property)
		}
		card, err := schema.CardinalityFromKeyword(kw)
		if err != nil {
			return alterPlan{}, schemaErrorf(ident, "%v", err)
		}
		if attr.Cardinality == schema.CardinalityMany && card == schema.CardinalityOne {
			plan.checkManyToOne = true
		}

	case schema.DBUnique:
		if alt.Value == nil {
			plan.clearUnique = true
			break
		}
		kw, ok := alt.Value.(datom.Keyword)
		if !ok {
			return alterPlan{}, schemaErrorf(ident, "property %s requires a uniqueness ident", alt.Property)
		}
		if _, err := schema.UniqueFromKeyword(kw); err != nil {
			return alterPlan{}, schemaErrorf(ident, "%v", err)
		}
		if attr.Unique == schema.UniqueNone {
			// Explicitly unimplemented: enabling uniqueness would need a
			// full-table validation pass that does not exist.
			return alterPlan{}, schemaErrorf(ident, "enabling uniqueness on an existing attribute is not supported")
		}

	default:
		return alterPlan{}, schemaErrorf(ident, "unsupported schema property %s", alt.Property)
	}

	return plan, nil
}

// DefineAttributes installs new attributes: validates the definitions,
// allocates entids from :db.part/db, writes the ident and schema rows,
// and rebuilds the resolved schema.
func (db *DB) DefineAttributes(ctx context.Context, defs schema.Definition) (*schema.Schema, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	idents := defs.Idents()
	for _, ident := range idents {
		if _, err := schema.ValidateAttribute(ident, defs[ident]); err != nil {
			return nil, schemaErrorf(ident, "%v", err)
		}
		if _, exists := db.idents.Entid(ident); exists {
			return nil, schemaErrorf(ident, "attribute already installed")
		}
	}

	parts := db.parts.Clone()
	assigned := make(map[datom.Keyword]datom.Entid, len(idents))
	for _, ident := range idents {
		eid, err := parts.Allocate(schema.PartDB, 1)
		if err != nil {
			return nil, &StorageError{Op: "allocate attribute entid", Err: err}
		}
		assigned[ident] = eid
	}

	err := db.store.InTransaction(ctx, func(tx *sql.Tx) error {
		for _, ident := range idents {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO idents (ident, entid) VALUES (?, ?)",
				ident.String(), int64(assigned[ident])); err != nil {
				return wrapStorage("install ident", err)
			}
			for prop, value := range defs[ident] {
				raw, tag, err := datom.ToSQL(value)
				if err != nil {
					return schemaErrorf(ident, "property %s: %v", prop, err)
				}
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO schema (ident, attr, value, value_type_tag) VALUES (?, ?, ?, ?)",
					ident.String(), prop.String(), raw, tag); err != nil {
					return wrapStorage("install schema rows", err)
				}
			}
		}
		return persistParts(ctx, tx, parts, parts.Advanced(db.parts))
	})
	if err != nil {
		return nil, err
	}

	newIdents := db.idents.Clone()
	def := db.def.Clone()
	for _, ident := range idents {
		if err := newIdents.Bind(ident, assigned[ident]); err != nil {
			return nil, &StorageError{Op: "bind attribute ident", Err: err}
		}
		for prop, value := range defs[ident] {
			def.Set(ident, prop, value)
		}
	}
	resolved, err := schema.Resolve(def, newIdents)
	if err != nil {
		return nil, err
	}

	db.idents = newIdents
	db.def = def
	db.parts = parts
	db.schema = resolved
	db.log.Info("attributes installed", "count", len(idents))
	return resolved, nil
}
