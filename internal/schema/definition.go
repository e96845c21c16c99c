package schema

import (
	"fmt"
	"slices"

	"github.com/roach88/datalite/internal/datom"
)

// Schema property and partition idents.
var (
	DBIdent       = datom.KW("db", "ident")
	DBValueType   = datom.KW("db", "valueType")
	DBCardinality = datom.KW("db", "cardinality")
	DBUnique      = datom.KW("db", "unique")
	DBIndex       = datom.KW("db", "index")
	DBFulltext    = datom.KW("db", "fulltext")
	DBIsComponent = datom.KW("db", "isComponent")
	DBNoHistory   = datom.KW("db", "noHistory")
	DBDoc         = datom.KW("db", "doc")
	DBTxInstant   = datom.KW("db", "txInstant")

	PartDB   = datom.KW("db.part", "db")
	PartUser = datom.KW("db.part", "user")
	PartTx   = datom.KW("db.part", "tx")
)

// Definition is the symbolic schema: attribute ident -> property ident ->
// property value. Property values are storable datom values (keywords for
// enums, booleans for flags, strings for :db/doc). This is the form the
// schema table persists and the mutation engine edits; Resolve derives
// the entid-keyed form from it.
type Definition map[datom.Keyword]map[datom.Keyword]datom.Value

// Clone is a deep copy. Mutation works on a copy and swaps it in only
// after every statement succeeded.
func (d Definition) Clone() Definition {
	out := make(Definition, len(d))
	for ident, props := range d {
		p := make(map[datom.Keyword]datom.Value, len(props))
		for k, v := range props {
			p[k] = v
		}
		out[ident] = p
	}
	return out
}

// Set assigns one property, allocating the inner map as needed.
func (d Definition) Set(ident, property datom.Keyword, value datom.Value) {
	props, ok := d[ident]
	if !ok {
		props = make(map[datom.Keyword]datom.Value)
		d[ident] = props
	}
	props[property] = value
}

// Idents returns the attribute idents in keyword order.
func (d Definition) Idents() []datom.Keyword {
	idents := make([]datom.Keyword, 0, len(d))
	for ident := range d {
		idents = append(idents, ident)
	}
	slices.SortFunc(idents, datom.Keyword.Compare)
	return idents
}

// ValidateAttribute builds the typed attribute from one property map.
// Value type and cardinality are mandatory; unknown properties are
// rejected so a typo cannot silently produce a default.
func ValidateAttribute(ident datom.Keyword, props map[datom.Keyword]datom.Value) (Attribute, error) {
	var attr Attribute
	var haveType, haveCard bool

	for prop, value := range props {
		switch prop {
		case DBValueType:
			kw, ok := value.(datom.Keyword)
			if !ok {
				return Attribute{}, fmt.Errorf("attribute %s: %s must be a keyword, got %T", ident, prop, value)
			}
			vt, err := datom.ValueTypeFromKeyword(kw)
			if err != nil {
				return Attribute{}, fmt.Errorf("attribute %s: %w", ident, err)
			}
			attr.ValueType = vt
			haveType = true

		case DBCardinality:
			kw, ok := value.(datom.Keyword)
			if !ok {
				return Attribute{}, fmt.Errorf("attribute %s: %s must be a keyword, got %T", ident, prop, value)
			}
			card, err := CardinalityFromKeyword(kw)
			if err != nil {
				return Attribute{}, fmt.Errorf("attribute %s: %w", ident, err)
			}
			attr.Cardinality = card
			haveCard = true

		case DBUnique:
			kw, ok := value.(datom.Keyword)
			if !ok {
				return Attribute{}, fmt.Errorf("attribute %s: %s must be a keyword, got %T", ident, prop, value)
			}
			u, err := UniqueFromKeyword(kw)
			if err != nil {
				return Attribute{}, fmt.Errorf("attribute %s: %w", ident, err)
			}
			attr.Unique = u

		case DBIndex, DBFulltext, DBIsComponent, DBNoHistory:
			b, ok := value.(datom.Boolean)
			if !ok {
				return Attribute{}, fmt.Errorf("attribute %s: %s must be a boolean, got %T", ident, prop, value)
			}
			switch prop {
			case DBIndex:
				attr.Index = bool(b)
			case DBFulltext:
				attr.Fulltext = bool(b)
			case DBIsComponent:
				attr.IsComponent = bool(b)
			case DBNoHistory:
				attr.NoHistory = bool(b)
			}

		case DBDoc:
			if _, ok := value.(datom.String); !ok {
				return Attribute{}, fmt.Errorf("attribute %s: %s must be a string, got %T", ident, prop, value)
			}
			// Documentation only; no resolved field.

		default:
			return Attribute{}, fmt.Errorf("attribute %s: unknown schema property %s", ident, prop)
		}
	}

	if !haveType {
		return Attribute{}, fmt.Errorf("attribute %s: missing %s", ident, DBValueType)
	}
	if !haveCard {
		return Attribute{}, fmt.Errorf("attribute %s: missing %s", ident, DBCardinality)
	}
	if attr.Fulltext && attr.ValueType != datom.TypeString {
		return Attribute{}, fmt.Errorf("attribute %s: %s requires %s", ident, DBFulltext, datom.TypeString)
	}
	if attr.Unique != UniqueNone {
		// Uniqueness implies the AVET index.
		attr.Index = true
	}
	return attr, nil
}

// Resolve derives the entid-keyed schema from the symbolic definition,
// looking attribute idents up in idents. Every definition entry must be
// a bound ident.
func Resolve(def Definition, idents *IdentMap) (*Schema, error) {
	attrs := make(map[datom.Entid]Attribute, len(def))
	for ident, props := range def {
		eid, ok := idents.Entid(ident)
		if !ok {
			return nil, fmt.Errorf("schema attribute %s has no bound entid", ident)
		}
		attr, err := ValidateAttribute(ident, props)
		if err != nil {
			return nil, err
		}
		attrs[eid] = attr
	}
	return &Schema{attrs: attrs}, nil
}
