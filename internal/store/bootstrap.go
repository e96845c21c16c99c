package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
)

// Bootstrap entid assignments. These are part of the on-disk format:
// a fresh database seeds exactly these bindings, and every later
// allocation from :db.part/db starts above them.
const (
	entidDBIdent       = 1
	entidDBValueType   = 2
	entidDBCardinality = 3
	entidDBUnique      = 4
	entidDBIndex       = 5
	entidDBFulltext    = 6
	entidDBIsComponent = 7
	entidDBNoHistory   = 8
	entidDBTxInstant   = 9
	entidDBDoc         = 10

	entidPartDB   = 11
	entidPartUser = 12
	entidPartTx   = 13

	entidTypeRef     = 14
	entidTypeBoolean = 15
	entidTypeInstant = 16
	entidTypeLong    = 17
	entidTypeDouble  = 18
	entidTypeString  = 19
	entidTypeKeyword = 20
	entidTypeUUID    = 21

	entidCardinalityOne  = 22
	entidCardinalityMany = 23

	entidUniqueValue    = 24
	entidUniqueIdentity = 25

	firstUserDBEntid = 26
)

// Partition boundaries. :db.part/db mints schema entities, :db.part/user
// ordinary entities, :db.part/tx transaction ids.
const (
	PartUserStart = 0x10000
	PartTxStart   = 0x10000000000
)

// bootstrapIdents lists every seeded binding in entid order.
func bootstrapIdents() []struct {
	Keyword datom.Keyword
	Entid   int64
} {
	return []struct {
		Keyword datom.Keyword
		Entid   int64
	}{
		{schema.DBIdent, entidDBIdent},
		{schema.DBValueType, entidDBValueType},
		{schema.DBCardinality, entidDBCardinality},
		{schema.DBUnique, entidDBUnique},
		{schema.DBIndex, entidDBIndex},
		{schema.DBFulltext, entidDBFulltext},
		{schema.DBIsComponent, entidDBIsComponent},
		{schema.DBNoHistory, entidDBNoHistory},
		{schema.DBTxInstant, entidDBTxInstant},
		{schema.DBDoc, entidDBDoc},
		{schema.PartDB, entidPartDB},
		{schema.PartUser, entidPartUser},
		{schema.PartTx, entidPartTx},
		{datom.TypeRef.Keyword(), entidTypeRef},
		{datom.TypeBoolean.Keyword(), entidTypeBoolean},
		{datom.TypeInstant.Keyword(), entidTypeInstant},
		{datom.TypeLong.Keyword(), entidTypeLong},
		{datom.TypeDouble.Keyword(), entidTypeDouble},
		{datom.TypeString.Keyword(), entidTypeString},
		{datom.TypeKeyword.Keyword(), entidTypeKeyword},
		{datom.TypeUUID.Keyword(), entidTypeUUID},
		{schema.CardinalityOne.Keyword(), entidCardinalityOne},
		{schema.CardinalityMany.Keyword(), entidCardinalityMany},
		{datom.KW("db.unique", "value"), entidUniqueValue},
		{datom.KW("db.unique", "identity"), entidUniqueIdentity},
	}
}

// bootstrapDefinition is the symbolic schema for the core attributes.
func bootstrapDefinition() schema.Definition {
	def := schema.Definition{}

	def.Set(schema.DBIdent, schema.DBValueType, datom.TypeKeyword.Keyword())
	def.Set(schema.DBIdent, schema.DBCardinality, schema.CardinalityOne.Keyword())
	def.Set(schema.DBIdent, schema.DBUnique, datom.KW("db.unique", "identity"))

	for _, ref := range []datom.Keyword{schema.DBValueType, schema.DBCardinality, schema.DBUnique} {
		def.Set(ref, schema.DBValueType, datom.TypeRef.Keyword())
		def.Set(ref, schema.DBCardinality, schema.CardinalityOne.Keyword())
	}

	for _, flag := range []datom.Keyword{schema.DBIndex, schema.DBFulltext, schema.DBIsComponent, schema.DBNoHistory} {
		def.Set(flag, schema.DBValueType, datom.TypeBoolean.Keyword())
		def.Set(flag, schema.DBCardinality, schema.CardinalityOne.Keyword())
	}

	def.Set(schema.DBTxInstant, schema.DBValueType, datom.TypeInstant.Keyword())
	def.Set(schema.DBTxInstant, schema.DBCardinality, schema.CardinalityOne.Keyword())
	def.Set(schema.DBTxInstant, schema.DBIndex, datom.Boolean(true))

	def.Set(schema.DBDoc, schema.DBValueType, datom.TypeString.Keyword())
	def.Set(schema.DBDoc, schema.DBCardinality, schema.CardinalityOne.Keyword())

	return def
}

// bootstrap seeds a fresh database. A database that already carries
// idents is left untouched, so reopening is cheap and non-destructive.
func bootstrap(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM idents").Scan(&count); err != nil {
		return fmt.Errorf("count idents: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin bootstrap: %w", err)
	}
	defer tx.Rollback()

	for _, binding := range bootstrapIdents() {
		if _, err := tx.Exec(
			"INSERT INTO idents (ident, entid) VALUES (?, ?)",
			binding.Keyword.String(), binding.Entid,
		); err != nil {
			return fmt.Errorf("seed ident %s: %w", binding.Keyword, err)
		}
	}

	if err := insertDefinition(tx, bootstrapDefinition()); err != nil {
		return err
	}

	parts := []struct {
		Part  datom.Keyword
		Start int64
		Idx   int64
	}{
		{schema.PartDB, 0, firstUserDBEntid},
		{schema.PartUser, PartUserStart, PartUserStart},
		{schema.PartTx, PartTxStart, PartTxStart},
	}
	for _, p := range parts {
		if _, err := tx.Exec(
			"INSERT INTO parts (part, start, idx) VALUES (?, ?, ?)",
			p.Part.String(), p.Start, p.Idx,
		); err != nil {
			return fmt.Errorf("seed partition %s: %w", p.Part, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

// insertDefinition writes symbolic schema rows for every attribute in def.
func insertDefinition(tx *sql.Tx, def schema.Definition) error {
	for _, ident := range def.Idents() {
		for prop, value := range def[ident] {
			raw, tag, err := datom.ToSQL(value)
			if err != nil {
				return fmt.Errorf("schema row %s %s: %w", ident, prop, err)
			}
			if _, err := tx.Exec(
				"INSERT INTO schema (ident, attr, value, value_type_tag) VALUES (?, ?, ?, ?)",
				ident.String(), prop.String(), raw, tag,
			); err != nil {
				return fmt.Errorf("schema row %s %s: %w", ident, prop, err)
			}
		}
	}
	return nil
}
