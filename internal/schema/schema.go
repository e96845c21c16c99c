package schema

import (
	"slices"

	"github.com/roach88/datalite/internal/datom"
)

// Schema is the resolved, entid-keyed attribute map. The predicate
// methods are plain map lookups so per-commit code never recomputes
// flags; the whole object is rebuilt when the symbolic definition
// mutates.
type Schema struct {
	attrs map[datom.Entid]Attribute
}

// Empty returns a schema with no attributes.
func Empty() *Schema {
	return &Schema{attrs: map[datom.Entid]Attribute{}}
}

// Attribute looks up the resolved entry for a.
func (s *Schema) Attribute(a datom.Entid) (Attribute, bool) {
	attr, ok := s.attrs[a]
	return attr, ok
}

// Len reports the number of installed attributes.
func (s *Schema) Len() int { return len(s.attrs) }

// Entids returns the attribute entids in ascending order.
func (s *Schema) Entids() []datom.Entid {
	out := make([]datom.Entid, 0, len(s.attrs))
	for eid := range s.attrs {
		out = append(out, eid)
	}
	slices.Sort(out)
	return out
}

// Multivalued reports whether a is cardinality-many. Unknown attributes
// report false on every predicate.
func (s *Schema) Multivalued(a datom.Entid) bool {
	return s.attrs[a].Cardinality == CardinalityMany
}

// Ref reports whether a is reference-typed.
func (s *Schema) Ref(a datom.Entid) bool {
	attr, ok := s.attrs[a]
	return ok && attr.ValueType == datom.TypeRef
}

// Indexed reports whether a participates in the AVET index.
func (s *Schema) Indexed(a datom.Entid) bool {
	return s.attrs[a].Index
}

// Unique reports whether a carries a uniqueness constraint.
func (s *Schema) Unique(a datom.Entid) bool {
	return s.attrs[a].Unique != UniqueNone
}

// Fulltext reports whether a's string values are interned into the
// fulltext table.
func (s *Schema) Fulltext(a datom.Entid) bool {
	return s.attrs[a].Fulltext
}

// Flags returns the datoms-row flags for a.
func (s *Schema) Flags(a datom.Entid) Flags {
	return s.attrs[a].Flags()
}
