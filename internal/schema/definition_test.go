package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datalite/internal/datom"
)

func testIdents(t *testing.T, pairs map[string]datom.Entid) *IdentMap {
	t.Helper()
	m := NewIdentMap()
	for s, eid := range pairs {
		require.NoError(t, m.Bind(datom.MustKeyword(s), eid))
	}
	return m
}

func TestResolveDefinition(t *testing.T) {
	name := datom.MustKeyword(":person/name")
	email := datom.MustKeyword(":person/email")

	def := Definition{}
	def.Set(name, DBValueType, datom.KW("db.type", "string"))
	def.Set(name, DBCardinality, datom.KW("db.cardinality", "one"))
	def.Set(name, DBFulltext, datom.Boolean(true))
	def.Set(email, DBValueType, datom.KW("db.type", "string"))
	def.Set(email, DBCardinality, datom.KW("db.cardinality", "many"))
	def.Set(email, DBUnique, datom.KW("db.unique", "identity"))

	idents := testIdents(t, map[string]datom.Entid{
		":person/name":  65536,
		":person/email": 65537,
	})

	s, err := Resolve(def, idents)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	attr, ok := s.Attribute(65536)
	require.True(t, ok)
	assert.Equal(t, datom.TypeString, attr.ValueType)
	assert.Equal(t, CardinalityOne, attr.Cardinality)
	assert.True(t, attr.Fulltext)
	assert.True(t, s.Fulltext(65536))
	assert.False(t, s.Multivalued(65536))

	attr, ok = s.Attribute(65537)
	require.True(t, ok)
	assert.Equal(t, UniqueIdentity, attr.Unique)
	assert.True(t, attr.Index, "unique implies the AVET index")
	assert.True(t, s.Unique(65537))
	assert.True(t, s.Multivalued(65537))
}

func TestResolveRequiresTypeAndCardinality(t *testing.T) {
	kw := datom.MustKeyword(":person/name")
	idents := testIdents(t, map[string]datom.Entid{":person/name": 65536})

	def := Definition{}
	def.Set(kw, DBCardinality, datom.KW("db.cardinality", "one"))
	_, err := Resolve(def, idents)
	assert.ErrorContains(t, err, ":db/valueType")

	def = Definition{}
	def.Set(kw, DBValueType, datom.KW("db.type", "string"))
	_, err = Resolve(def, idents)
	assert.ErrorContains(t, err, ":db/cardinality")
}

func TestResolveRejectsUnknownProperty(t *testing.T) {
	kw := datom.MustKeyword(":person/name")
	idents := testIdents(t, map[string]datom.Entid{":person/name": 65536})

	def := Definition{}
	def.Set(kw, DBValueType, datom.KW("db.type", "string"))
	def.Set(kw, DBCardinality, datom.KW("db.cardinality", "one"))
	def.Set(kw, datom.MustKeyword(":db/hidden"), datom.Boolean(true))

	_, err := Resolve(def, idents)
	assert.ErrorContains(t, err, ":db/hidden")
}

func TestResolveRejectsFulltextNonString(t *testing.T) {
	kw := datom.MustKeyword(":person/age")
	idents := testIdents(t, map[string]datom.Entid{":person/age": 65536})

	def := Definition{}
	def.Set(kw, DBValueType, datom.KW("db.type", "long"))
	def.Set(kw, DBCardinality, datom.KW("db.cardinality", "one"))
	def.Set(kw, DBFulltext, datom.Boolean(true))

	_, err := Resolve(def, idents)
	assert.ErrorContains(t, err, ":db/fulltext")
}

func TestResolveRejectsUnboundIdent(t *testing.T) {
	kw := datom.MustKeyword(":person/name")
	def := Definition{}
	def.Set(kw, DBValueType, datom.KW("db.type", "string"))
	def.Set(kw, DBCardinality, datom.KW("db.cardinality", "one"))

	_, err := Resolve(def, NewIdentMap())
	assert.ErrorContains(t, err, "no bound entid")
}

func TestDefinitionClone(t *testing.T) {
	kw := datom.MustKeyword(":person/name")
	def := Definition{}
	def.Set(kw, DBValueType, datom.KW("db.type", "string"))

	cp := def.Clone()
	cp.Set(kw, DBCardinality, datom.KW("db.cardinality", "one"))

	_, ok := def[kw][DBCardinality]
	assert.False(t, ok, "clone must not alias the original")
}
