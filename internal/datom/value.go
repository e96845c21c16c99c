package datom

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Value is a sealed interface over the storable value types.
// Only Ref, Boolean, Instant, Long, Double, String, UUID, and Keyword
// implement it. Every Value knows its ValueType; the SQL codec in this
// package maps each type to a SQLite representation plus a numeric tag.
type Value interface {
	valuePlace()
	datomValue() // Sealed - only these types implement it

	// Type returns the schema value type of this value.
	Type() ValueType
}

// Ref is a reference to another entity, stored as the target entid.
type Ref int64

func (Ref) datomValue() {}
func (Ref) valuePlace() {}
func (Ref) Type() ValueType { return TypeRef }

// Boolean is a true/false value.
type Boolean bool

func (Boolean) datomValue() {}
func (Boolean) valuePlace() {}
func (Boolean) Type() ValueType { return TypeBoolean }

// Instant is a point in time with microsecond precision, stored as
// microseconds since the Unix epoch. Microseconds, not nanoseconds:
// the storage format is fixed and round-trips exactly.
type Instant int64

func (Instant) datomValue() {}
func (Instant) valuePlace() {}
func (Instant) Type() ValueType { return TypeInstant }

// InstantFromTime truncates t to microsecond precision.
func InstantFromTime(t time.Time) Instant {
	return Instant(t.UnixMicro())
}

// Time converts back to a time.Time in UTC.
func (i Instant) Time() time.Time {
	return time.UnixMicro(int64(i)).UTC()
}

// Long is a 64-bit signed integer value.
type Long int64

func (Long) datomValue() {}
func (Long) valuePlace() {}
func (Long) Type() ValueType { return TypeLong }

// Double is a 64-bit IEEE 754 floating point value.
// Long and Double share a storage tag; the SQLite storage class
// (INTEGER vs REAL) is what distinguishes them on disk.
type Double float64

func (Double) datomValue() {}
func (Double) valuePlace() {}
func (Double) Type() ValueType { return TypeDouble }

// String is a string value. Fulltext-indexed strings are interned into
// the fulltext table by the staging pipeline; the datom then stores the
// interned rowid rather than the text itself.
type String string

func (String) datomValue() {}
func (String) valuePlace() {}
func (String) Type() ValueType { return TypeString }

// UUID is a 128-bit identifier, stored as a 16-byte blob.
type UUID uuid.UUID

func (UUID) datomValue() {}
func (UUID) valuePlace() {}
func (UUID) Type() ValueType { return TypeUUID }

// NewUUID parses the canonical string form.
func NewUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("parse uuid %q: %w", s, err)
	}
	return UUID(u), nil
}

func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Keyword values are storable too (tag 13); the type itself is defined
// in keyword.go.
func (Keyword) datomValue() {}
func (Keyword) valuePlace() {}
func (Keyword) Type() ValueType { return TypeKeyword }

// ValueType enumerates the schema value types an attribute can hold.
type ValueType int

const (
	TypeRef ValueType = iota
	TypeBoolean
	TypeInstant
	TypeLong
	TypeDouble
	TypeString
	TypeKeyword
	TypeUUID
)

// Storage type tags. Long and Double share tag 5; SQLite's storage
// class separates them. The numbers are part of the on-disk format and
// must never change.
const (
	TagRef     = 0
	TagBoolean = 1
	TagInstant = 4
	TagLong    = 5
	TagDouble  = 5
	TagString  = 10
	TagUUID    = 11
	TagKeyword = 13
)

// Tag returns the storage type tag for t.
func (t ValueType) Tag() int {
	switch t {
	case TypeRef:
		return TagRef
	case TypeBoolean:
		return TagBoolean
	case TypeInstant:
		return TagInstant
	case TypeLong:
		return TagLong
	case TypeDouble:
		return TagDouble
	case TypeString:
		return TagString
	case TypeUUID:
		return TagUUID
	case TypeKeyword:
		return TagKeyword
	default:
		panic(fmt.Sprintf("unknown value type %d", int(t)))
	}
}

// Keyword returns the :db.type/* ident naming t.
func (t ValueType) Keyword() Keyword {
	switch t {
	case TypeRef:
		return KW("db.type", "ref")
	case TypeBoolean:
		return KW("db.type", "boolean")
	case TypeInstant:
		return KW("db.type", "instant")
	case TypeLong:
		return KW("db.type", "long")
	case TypeDouble:
		return KW("db.type", "double")
	case TypeString:
		return KW("db.type", "string")
	case TypeUUID:
		return KW("db.type", "uuid")
	case TypeKeyword:
		return KW("db.type", "keyword")
	default:
		panic(fmt.Sprintf("unknown value type %d", int(t)))
	}
}

func (t ValueType) String() string {
	return t.Keyword().String()
}

// ValueTypeFromKeyword resolves a :db.type/* ident to its ValueType.
func ValueTypeFromKeyword(kw Keyword) (ValueType, error) {
	if kw.Namespace != "db.type" {
		return 0, fmt.Errorf("not a value type ident: %s", kw)
	}
	switch kw.Name {
	case "ref":
		return TypeRef, nil
	case "boolean":
		return TypeBoolean, nil
	case "instant":
		return TypeInstant, nil
	case "long":
		return TypeLong, nil
	case "double":
		return TypeDouble, nil
	case "string":
		return TypeString, nil
	case "uuid":
		return TypeUUID, nil
	case "keyword":
		return TypeKeyword, nil
	default:
		return 0, fmt.Errorf("not a value type ident: %s", kw)
	}
}
