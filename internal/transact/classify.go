package transact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
)

// term is one fully resolved assertion or retraction.
type term struct {
	e, a datom.Entid
	v    datom.Value
	attr schema.Attribute
}

// attrTarget is one resolved retract-attribute target.
type attrTarget struct {
	e, a datom.Entid
	attr schema.Attribute
}

// classified buckets a batch of operations by kind and, for adds, by
// the statement shape the staging pipeline needs: fulltext values take
// the two-phase interning path, cardinality-one adds stage a marker row
// for previous-value replacement.
type classified struct {
	plainOne  []term
	plainMany []term
	ftOne     []term
	ftMany    []term

	retracts          []term
	retractAttributes []attrTarget
	retractEntities   []datom.Entid
}

func (c *classified) empty() bool {
	return len(c.plainOne) == 0 && len(c.plainMany) == 0 &&
		len(c.ftOne) == 0 && len(c.ftMany) == 0 &&
		len(c.retracts) == 0 && len(c.retractAttributes) == 0 &&
		len(c.retractEntities) == 0
}

// classify validates the operation kinds and resolves + buckets every
// op. Adds and retracts are deduplicated on (e, a, value, kind) so a
// repeated candidate cannot stage twice and trip the storage indices.
func classify(ops []datom.Entity, r *resolver) (*classified, error) {
	if err := validateKinds(ops); err != nil {
		return nil, err
	}

	out := &classified{}
	seen := map[string]bool{}

	for _, op := range ops {
		switch op.Op {
		case datom.OpAdd, datom.OpRetract:
			t, err := resolveTerm(op, r)
			if err != nil {
				return nil, err
			}
			added := op.Op == datom.OpAdd
			key, err := termKey(t, added)
			if err != nil {
				return nil, err
			}
			if seen[key] {
				continue
			}
			seen[key] = true

			if !added {
				out.retracts = append(out.retracts, t)
				continue
			}
			switch {
			case t.attr.Fulltext && t.attr.Multivalued():
				out.ftMany = append(out.ftMany, t)
			case t.attr.Fulltext:
				out.ftOne = append(out.ftOne, t)
			case t.attr.Multivalued():
				out.plainMany = append(out.plainMany, t)
			default:
				out.plainOne = append(out.plainOne, t)
			}

		case datom.OpRetractAttribute:
			e, err := r.entity(op.E)
			if err != nil {
				return nil, err
			}
			a, attr, err := r.attribute(op.A)
			if err != nil {
				return nil, err
			}
			out.retractAttributes = append(out.retractAttributes, attrTarget{e: e, a: a, attr: attr})

		case datom.OpRetractEntity:
			e, err := r.entity(op.E)
			if err != nil {
				return nil, err
			}
			out.retractEntities = append(out.retractEntities, e)
		}
	}

	return out, nil
}

// validateKinds rejects any operation kind outside the four supported
// ones, naming the offenders.
func validateKinds(ops []datom.Entity) error {
	invalid := map[string]bool{}
	for _, op := range ops {
		switch op.Op {
		case datom.OpAdd, datom.OpRetract, datom.OpRetractAttribute, datom.OpRetractEntity:
		default:
			invalid[op.Op.String()] = true
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	kinds := make([]string, 0, len(invalid))
	for k := range invalid {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return syntaxErrorf("unknown operation kinds: %s", strings.Join(kinds, ", "))
}

func resolveTerm(op datom.Entity, r *resolver) (term, error) {
	e, err := r.entity(op.E)
	if err != nil {
		return term{}, err
	}
	a, attr, err := r.attribute(op.A)
	if err != nil {
		return term{}, err
	}
	v, err := r.value(attr, op.V)
	if err != nil {
		return term{}, err
	}
	return term{e: e, a: a, v: v, attr: attr}, nil
}

// termKey builds the dedup key over (e, a, tag, value, kind).
func termKey(t term, added bool) (string, error) {
	raw, tag, err := datom.ToSQL(t.v)
	if err != nil {
		return "", syntaxErrorf("value for attribute %d: %v", t.a, err)
	}
	return fmt.Sprintf("%d|%d|%d|%v|%t", t.e, t.a, tag, raw, added), nil
}
