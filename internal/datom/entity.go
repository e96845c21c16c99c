package datom

import "fmt"

// Entid is a resolved numeric entity id.
type Entid int64

func (Entid) entityPlace() {}

// EntityPlace is a sealed interface over the forms accepted in the
// entity and attribute positions of an entity op: a numeric Entid, a
// symbolic Keyword ident, a TempID, or a LookupRef.
type EntityPlace interface {
	entityPlace()
}

func (Keyword) entityPlace() {}

// ValuePlace is a sealed interface over the forms accepted in the value
// position: any storable Value, or - for ref-typed attributes - a
// TempID, LookupRef, or Keyword ident to resolve to an entid.
type ValuePlace interface {
	valuePlace()
}

// TempID is a placeholder for an entity to be allocated during a
// transaction. Part names the partition to allocate from; Idx is a
// distinct negative number scoped to one transactor session, so equal
// TempIDs within a transaction resolve to the same new entid.
type TempID struct {
	Part Keyword
	Idx  int64
}

func (TempID) entityPlace() {}
func (TempID) valuePlace() {}

func (t TempID) String() string {
	return fmt.Sprintf("%s<%d>", t.Part, t.Idx)
}

// LookupRef identifies an existing entity by a unique attribute and a
// value: resolution fails if the attribute is not declared unique or if
// no datom matches.
type LookupRef struct {
	Attr  EntityPlace
	Value Value
}

func (LookupRef) entityPlace() {}
func (LookupRef) valuePlace() {}

func (l LookupRef) String() string {
	return fmt.Sprintf("[%v %v]", l.Attr, l.Value)
}

// OpKind discriminates the four entity op forms.
type OpKind int

const (
	// OpAdd asserts a single datom [e a v].
	OpAdd OpKind = iota
	// OpRetract retracts a single datom [e a v].
	OpRetract
	// OpRetractAttribute retracts every current value of attribute a on
	// entity e.
	OpRetractAttribute
	// OpRetractEntity retracts every datom with entity e in the e
	// position, and every ref datom pointing at e.
	OpRetractEntity
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpRetract:
		return "retract"
	case OpRetractAttribute:
		return "retract-attribute"
	case OpRetractEntity:
		return "retract-entity"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Entity is one operation submitted to a transaction. Which fields are
// meaningful depends on Op: add and retract use E, A, V; retract-attribute
// uses E and A; retract-entity uses only E.
type Entity struct {
	Op OpKind
	E  EntityPlace
	A  EntityPlace
	V  ValuePlace
}

// Add builds an assertion op.
func Add(e EntityPlace, a EntityPlace, v ValuePlace) Entity {
	return Entity{Op: OpAdd, E: e, A: a, V: v}
}

// Retract builds a single-datom retraction op.
func Retract(e EntityPlace, a EntityPlace, v ValuePlace) Entity {
	return Entity{Op: OpRetract, E: e, A: a, V: v}
}

// RetractAttribute builds an op retracting all values of a on e.
func RetractAttribute(e EntityPlace, a EntityPlace) Entity {
	return Entity{Op: OpRetractAttribute, E: e, A: a}
}

// RetractEntity builds an op retracting e entirely, including inbound refs.
func RetractEntity(e EntityPlace) Entity {
	return Entity{Op: OpRetractEntity, E: e}
}

// Datom is one immutable fact: entity e had value v for attribute a as
// of transaction tx; Added records assertion vs retraction in the log.
type Datom struct {
	E     Entid
	A     Entid
	V     Value
	Tx    Entid
	Added bool
}

func (d Datom) String() string {
	op := "-"
	if d.Added {
		op = "+"
	}
	return fmt.Sprintf("%s[%d %d %v %d]", op, d.E, d.A, d.V, d.Tx)
}
