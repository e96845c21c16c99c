package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
	"github.com/roach88/datalite/internal/transact"
)

// Run executes a scenario in a fresh in-memory database and returns the
// result. Transactions with an expect clause must fail with the named
// error kind; all others must succeed. Assertions run after the last
// transaction.
func Run(scenario *Scenario) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	db, err := transact.Open(":memory:",
		transact.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, fmt.Errorf("open scenario database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	result := NewResult()

	if len(scenario.Attributes) > 0 {
		def, err := BuildDefinition(scenario.Attributes)
		if err != nil {
			return nil, err
		}
		if _, err := db.DefineAttributes(ctx, def); err != nil {
			return nil, fmt.Errorf("install scenario attributes: %w", err)
		}
	}

	for _, step := range scenario.Transactions {
		ops, err := BuildOps(db, step.Ops)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", step.Tx, err)
		}

		datoms, err := db.Transact(ctx, datom.Entid(step.Tx), ops)
		switch {
		case step.Expect != nil:
			if err == nil {
				result.AddError("tx %d: expected %s error, got success", step.Tx, step.Expect.Error)
				continue
			}
			if kind := errorKind(err); kind != step.Expect.Error {
				result.AddError("tx %d: expected %s error, got %s: %v", step.Tx, step.Expect.Error, kind, err)
			}
		case err != nil:
			result.AddError("tx %d: %v", step.Tx, err)
		default:
			for _, d := range datoms {
				attr, _ := db.QueryContext().Ident(d.A)
				result.Trace = append(result.Trace, TraceEvent{
					Tx:    int64(d.Tx),
					E:     int64(d.E),
					Attr:  attr.String(),
					Value: renderValue(d.V),
					Added: d.Added,
				})
			}
		}
	}

	evaluateAssertions(ctx, db, scenario, result)
	return result, nil
}

// BuildDefinition converts scenario attribute declarations into a
// symbolic schema definition.
func BuildDefinition(attrs []AttributeDef) (schema.Definition, error) {
	def := schema.Definition{}
	for _, a := range attrs {
		ident, err := datom.ParseKeyword(a.Ident)
		if err != nil {
			return nil, fmt.Errorf("attribute ident %q: %w", a.Ident, err)
		}
		vt, err := datom.ParseKeyword(a.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %s type %q: %w", a.Ident, a.Type, err)
		}
		card, err := datom.ParseKeyword(a.Cardinality)
		if err != nil {
			return nil, fmt.Errorf("attribute %s cardinality %q: %w", a.Ident, a.Cardinality, err)
		}

		def.Set(ident, schema.DBValueType, vt)
		def.Set(ident, schema.DBCardinality, card)
		if a.Unique != "" {
			u, err := datom.ParseKeyword(a.Unique)
			if err != nil {
				return nil, fmt.Errorf("attribute %s unique %q: %w", a.Ident, a.Unique, err)
			}
			def.Set(ident, schema.DBUnique, u)
		}
		if a.Index {
			def.Set(ident, schema.DBIndex, datom.Boolean(true))
		}
		if a.Fulltext {
			def.Set(ident, schema.DBFulltext, datom.Boolean(true))
		}
		if a.Doc != "" {
			def.Set(ident, schema.DBDoc, datom.String(a.Doc))
		}
	}
	return def, nil
}

// BuildOps converts scenario op steps into transactor operations. A
// negative entity id is a tempid in :db.part/user; the same negative
// number names the same entity throughout one transaction.
func BuildOps(db *transact.DB, steps []OpStep) ([]datom.Entity, error) {
	view := db.QueryContext()
	ops := make([]datom.Entity, 0, len(steps))

	for _, s := range steps {
		e := entityPlace(s.E)
		switch s.Op {
		case OpRetractEntity:
			ops = append(ops, datom.RetractEntity(e))
			continue
		}

		attrKW, err := datom.ParseKeyword(s.A)
		if err != nil {
			return nil, fmt.Errorf("op attribute %q: %w", s.A, err)
		}

		if s.Op == OpRetractAttribute {
			ops = append(ops, datom.RetractAttribute(e, attrKW))
			continue
		}

		// An uninstalled attribute still stages so the transactor can
		// report its own SyntaxError, which expect clauses match on.
		var v datom.ValuePlace
		if aid, bound := view.Entid(attrKW); bound {
			attr, ok := view.Attribute(aid)
			if !ok {
				return nil, fmt.Errorf("op attribute %s has no schema entry", attrKW)
			}
			if attr.Ref() {
				// Negative ref values name tempids, like entity places.
				if n, intErr := yamlInt(s.V); intErr == nil && n < 0 {
					v = datom.TempID{Part: schema.PartUser, Idx: n}
				}
			}
			if v == nil {
				v, err = yamlValue(attr.ValueType, s.V)
				if err != nil {
					return nil, fmt.Errorf("op value for %s: %w", attrKW, err)
				}
			}
		} else if v, err = guessValue(s.V); err != nil {
			return nil, fmt.Errorf("op value for %s: %w", attrKW, err)
		}

		if s.Op == OpRetract {
			ops = append(ops, datom.Retract(e, attrKW, v))
		} else {
			ops = append(ops, datom.Add(e, attrKW, v))
		}
	}
	return ops, nil
}

// yamlValue converts a decoded YAML scalar into a typed value for vt.
func yamlValue(vt datom.ValueType, raw any) (datom.Value, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing value")
	}

	switch vt {
	case datom.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		return datom.String(s), nil

	case datom.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", raw)
		}
		return datom.Boolean(b), nil

	case datom.TypeLong:
		n, err := yamlInt(raw)
		if err != nil {
			return nil, err
		}
		return datom.Long(n), nil

	case datom.TypeRef:
		n, err := yamlInt(raw)
		if err != nil {
			return nil, err
		}
		return datom.Ref(n), nil

	case datom.TypeDouble:
		switch n := raw.(type) {
		case float64:
			return datom.Double(n), nil
		case int:
			return datom.Double(n), nil
		}
		return nil, fmt.Errorf("want number, got %T", raw)

	case datom.TypeInstant:
		// Either microseconds since the epoch or an RFC 3339 string.
		if n, err := yamlInt(raw); err == nil {
			return datom.Instant(n), nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want instant, got %T", raw)
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("instant %q: %w", s, err)
		}
		return datom.InstantFromTime(ts), nil

	case datom.TypeKeyword:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want keyword, got %T", raw)
		}
		kw, err := datom.ParseKeyword(s)
		if err != nil {
			return nil, err
		}
		return kw, nil

	case datom.TypeUUID:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want uuid string, got %T", raw)
		}
		return datom.NewUUID(s)

	default:
		return nil, fmt.Errorf("unsupported value type %s", vt)
	}
}

// entityPlace maps a scenario entity id: negative ids are tempids in
// :db.part/user.
func entityPlace(e int64) datom.EntityPlace {
	if e < 0 {
		return datom.TempID{Part: schema.PartUser, Idx: e}
	}
	return datom.Entid(e)
}

// guessValue maps a YAML scalar by its native type, for ops whose
// attribute the schema does not know.
func guessValue(raw any) (datom.Value, error) {
	switch v := raw.(type) {
	case string:
		return datom.String(v), nil
	case bool:
		return datom.Boolean(v), nil
	case int:
		return datom.Long(v), nil
	case int64:
		return datom.Long(v), nil
	case float64:
		return datom.Double(v), nil
	case nil:
		return nil, fmt.Errorf("missing value")
	default:
		return nil, fmt.Errorf("unsupported value %T", raw)
	}
}

func yamlInt(raw any) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("want integer, got %T", raw)
}

// renderValue prints a value for the trace. Strings are quoted so
// whitespace differences stay visible in golden diffs.
func renderValue(v datom.Value) string {
	switch val := v.(type) {
	case datom.String:
		return fmt.Sprintf("%q", string(val))
	case datom.Boolean:
		return fmt.Sprintf("%t", bool(val))
	case datom.Double:
		return fmt.Sprintf("%g", float64(val))
	case datom.Keyword:
		return val.String()
	case datom.UUID:
		return val.String()
	case datom.Ref:
		return fmt.Sprintf("%d", int64(val))
	case datom.Long:
		return fmt.Sprintf("%d", int64(val))
	case datom.Instant:
		return fmt.Sprintf("%d", int64(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// errorKind names the error taxonomy bucket for expect matching.
func errorKind(err error) string {
	if kind, ok := transact.IsConstraintViolation(err); ok {
		return "constraint/" + string(kind)
	}
	if transact.IsSyntaxError(err) {
		return "syntax"
	}
	if transact.IsSchemaError(err) {
		return "schema"
	}
	if transact.IsStorageError(err) {
		return "storage"
	}
	return "unknown"
}
