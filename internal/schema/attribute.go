package schema

import (
	"fmt"

	"github.com/roach88/datalite/internal/datom"
)

// Cardinality says how many values an attribute may hold per entity.
type Cardinality int

const (
	CardinalityOne Cardinality = iota
	CardinalityMany
)

// Keyword returns the :db.cardinality/* ident.
func (c Cardinality) Keyword() datom.Keyword {
	if c == CardinalityMany {
		return datom.KW("db.cardinality", "many")
	}
	return datom.KW("db.cardinality", "one")
}

func (c Cardinality) String() string { return c.Keyword().String() }

// CardinalityFromKeyword resolves a :db.cardinality/* ident.
func CardinalityFromKeyword(kw datom.Keyword) (Cardinality, error) {
	switch kw {
	case datom.KW("db.cardinality", "one"):
		return CardinalityOne, nil
	case datom.KW("db.cardinality", "many"):
		return CardinalityMany, nil
	default:
		return 0, fmt.Errorf("not a cardinality ident: %s", kw)
	}
}

// Unique is an attribute's uniqueness constraint, if any.
type Unique int

const (
	UniqueNone Unique = iota
	// UniqueValue forbids two entities sharing a value for the attribute.
	UniqueValue
	// UniqueIdentity is UniqueValue plus upsert semantics at layers above
	// this core; storage-side enforcement is identical.
	UniqueIdentity
)

// Keyword returns the :db.unique/* ident; UniqueNone has no ident.
func (u Unique) Keyword() (datom.Keyword, bool) {
	switch u {
	case UniqueValue:
		return datom.KW("db.unique", "value"), true
	case UniqueIdentity:
		return datom.KW("db.unique", "identity"), true
	default:
		return datom.Keyword{}, false
	}
}

func (u Unique) String() string {
	if kw, ok := u.Keyword(); ok {
		return kw.String()
	}
	return "none"
}

// UniqueFromKeyword resolves a :db.unique/* ident.
func UniqueFromKeyword(kw datom.Keyword) (Unique, error) {
	switch kw {
	case datom.KW("db.unique", "value"):
		return UniqueValue, nil
	case datom.KW("db.unique", "identity"):
		return UniqueIdentity, nil
	default:
		return 0, fmt.Errorf("not a uniqueness ident: %s", kw)
	}
}

// Attribute is one resolved schema entry. Value type and cardinality are
// mandatory; everything else defaults off.
type Attribute struct {
	ValueType   datom.ValueType
	Cardinality Cardinality
	Unique      Unique
	Index       bool
	Fulltext    bool
	IsComponent bool
	NoHistory   bool
}

// Flags precomputed for staging: each datoms row carries these four so
// the partial indices can gate on them.
type Flags struct {
	IndexAVET     bool
	IndexVAET     bool
	IndexFulltext bool
	UniqueValue   bool
}

// Flags derives the row flags for a. VAET follows the value type (only
// refs participate in the reverse index); the unique flag covers both
// uniqueness variants.
func (a Attribute) Flags() Flags {
	return Flags{
		IndexAVET:     a.Index,
		IndexVAET:     a.ValueType == datom.TypeRef,
		IndexFulltext: a.Fulltext,
		UniqueValue:   a.Unique != UniqueNone,
	}
}

// Multivalued reports cardinality-many.
func (a Attribute) Multivalued() bool { return a.Cardinality == CardinalityMany }

// Ref reports a reference-typed attribute.
func (a Attribute) Ref() bool { return a.ValueType == datom.TypeRef }
