package harness

import (
	"context"
	"fmt"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/transact"
)

// evaluateAssertions checks every assertion against final state,
// recording failures on result. Assertions never abort each other: all
// of them run so one report shows every mismatch.
func evaluateAssertions(ctx context.Context, db *transact.DB, scenario *Scenario, result *Result) {
	for i, a := range scenario.Assertions {
		var err error
		switch a.Type {
		case AssertCurrentCount:
			err = assertCurrentCount(ctx, db, a, a.Count)
		case AssertAbsent:
			err = assertCurrentCount(ctx, db, a, 0)
		case AssertCurrentValue:
			err = assertCurrentValue(ctx, db, a)
		case AssertLogCount:
			err = assertLogCount(ctx, db, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			result.AddError("assertion %d (%s): %v", i, a.Type, err)
		}
	}
}

// attrEntid resolves an assertion's attribute field.
func attrEntid(db *transact.DB, printed string) (datom.Entid, error) {
	kw, err := datom.ParseKeyword(printed)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %w", printed, err)
	}
	eid, ok := db.QueryContext().Entid(kw)
	if !ok {
		return 0, fmt.Errorf("attribute %s is not installed", kw)
	}
	return eid, nil
}

func assertCurrentCount(ctx context.Context, db *transact.DB, a Assertion, want int) error {
	aid, err := attrEntid(db, a.A)
	if err != nil {
		return err
	}

	var got int
	err = db.Store().DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM datoms WHERE e = ? AND a = ?",
		a.E, int64(aid)).Scan(&got)
	if err != nil {
		return fmt.Errorf("count datoms: %w", err)
	}
	if got != want {
		return fmt.Errorf("entity %d attribute %s: want %d current values, got %d", a.E, a.A, want, got)
	}
	return nil
}

func assertCurrentValue(ctx context.Context, db *transact.DB, a Assertion) error {
	aid, err := attrEntid(db, a.A)
	if err != nil {
		return err
	}
	attr, _ := db.QueryContext().Attribute(aid)
	want, err := yamlValue(attr.ValueType, a.Value)
	if err != nil {
		return fmt.Errorf("expected value: %w", err)
	}

	rows, err := db.Store().DB().QueryContext(ctx,
		"SELECT v, value_type_tag FROM datoms WHERE e = ? AND a = ?",
		a.E, int64(aid))
	if err != nil {
		return fmt.Errorf("query datoms: %w", err)
	}
	defer rows.Close()

	// Drain the cursor before resolving fulltext rowids: the store pool
	// is capped at one connection, so a nested query while rows is open
	// would deadlock.
	type rawDatom struct {
		raw any
		tag int
	}
	stored := []rawDatom{}
	for rows.Next() {
		var r rawDatom
		if err := rows.Scan(&r.raw, &r.tag); err != nil {
			return fmt.Errorf("scan datom: %w", err)
		}
		stored = append(stored, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate datoms: %w", err)
	}
	rows.Close()

	found := []string{}
	for _, r := range stored {
		var v datom.Value
		if attr.Fulltext {
			rowid, ok := r.raw.(int64)
			if !ok {
				return fmt.Errorf("fulltext datom value is not a rowid: %T", r.raw)
			}
			text, err := db.Store().FulltextText(ctx, rowid)
			if err != nil {
				return err
			}
			v = datom.String(text)
		} else {
			v, err = datom.FromSQL(r.raw, r.tag)
			if err != nil {
				return fmt.Errorf("decode datom: %w", err)
			}
		}

		if v == want {
			return nil
		}
		found = append(found, renderValue(v))
	}
	return fmt.Errorf("entity %d attribute %s: want value %s, have %v",
		a.E, a.A, renderValue(want), found)
}

func assertLogCount(ctx context.Context, db *transact.DB, a Assertion) error {
	log, err := db.Store().ReadLog(ctx, a.Tx)
	if err != nil {
		return err
	}
	if len(log) != a.Count {
		return fmt.Errorf("tx %d: want %d log rows, got %d", a.Tx, a.Count, len(log))
	}
	return nil
}
