package transact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
	"github.com/roach88/datalite/internal/sqlgen"
)

// Commit-sequence statements. Each later statement depends on rows the
// earlier one produced, so the order is fixed: index, merge, log adds,
// log retractions, materialize, post-check, cleanup, read back.
const (
	sqlDropScratchIndex   = "DROP INDEX IF EXISTS temp.idx_tx_lookup_added"
	sqlCreateScratchIndex = "CREATE INDEX temp.idx_tx_lookup_added ON tx_lookup_after (added0)"

	// Two-branch merge: staged rows with a search value join current
	// state on the exact (e, a, sv) datom; rows without one join on
	// (e, a) alone, finding whatever value the entity currently holds.
	// No output ordering is assumed from the UNION ALL.
	sqlMerge = `
		INSERT INTO temp.tx_lookup_after
		SELECT t.e0, t.a0, t.v0, t.tx0, t.added0, t.value_type_tag0,
		       t.index_avet0, t.index_vaet0, t.index_fulltext0, t.unique_value0,
		       t.sv, t.svalue_type_tag,
		       d.rowid, d.e, d.a, d.v, d.tx, d.value_type_tag
		FROM temp.tx_lookup_before t
		LEFT JOIN datoms d ON d.e = t.e0 AND d.a = t.a0
		    AND d.value_type_tag = t.svalue_type_tag AND d.v = t.sv
		WHERE t.sv IS NOT NULL
		UNION ALL
		SELECT t.e0, t.a0, t.v0, t.tx0, t.added0, t.value_type_tag0,
		       t.index_avet0, t.index_vaet0, t.index_fulltext0, t.unique_value0,
		       t.sv, t.svalue_type_tag,
		       d.rowid, d.e, d.a, d.v, d.tx, d.value_type_tag
		FROM temp.tx_lookup_before t
		LEFT JOIN datoms d ON d.e = t.e0 AND d.a = t.a0
		WHERE t.sv IS NULL`

	// Brand-new facts: asserted and nothing matched.
	sqlLogAdds = `
		INSERT INTO transactions (e, a, v, tx, added, value_type_tag)
		SELECT e0, a0, v0, tx0, 1, value_type_tag0
		FROM temp.tx_lookup_after
		WHERE added0 IS 1 AND e IS NULL`

	// Retractions: either the search value matched an existing datom,
	// or a marker row found a differing current value to replace. The
	// matched value is what gets logged, not the staged one. DISTINCT
	// collapses the case where an explicit retract and a replace marker
	// both hit the same datom in one transaction.
	sqlLogRetractions = `
		INSERT INTO transactions (e, a, v, tx, added, value_type_tag)
		SELECT DISTINCT e0, a0, v, tx0, 0, value_type_tag
		FROM temp.tx_lookup_after
		WHERE added0 IS 0
		  AND ((sv IS NOT NULL AND rid IS NOT NULL)
		    OR (sv IS NULL AND v IS NOT NULL AND v IS NOT v0))`

	sqlMaterializeInserts = `
		INSERT INTO datoms (e, a, v, tx, value_type_tag,
		                    index_avet, index_vaet, index_fulltext, unique_value)
		SELECT e0, a0, v0, tx0, value_type_tag0,
		       index_avet0, index_vaet0, index_fulltext0, unique_value0
		FROM temp.tx_lookup_after
		WHERE added0 IS 1 AND e IS NULL`

	sqlMaterializeDeletes = `
		DELETE FROM datoms WHERE rowid IN (
		    SELECT rid FROM temp.tx_lookup_after
		    WHERE added0 IS 0 AND rid IS NOT NULL
		      AND (sv IS NOT NULL OR (v IS NOT NULL AND v IS NOT v0)))`

	sqlClearSearchids = "UPDATE fulltext_values SET searchid = NULL WHERE searchid IS NOT NULL"
)

// Transact applies the batch of operations as transaction txid and
// returns the resulting datoms, ordered. Either the complete result or
// the first error comes back; no partial commit is ever observable.
func (db *DB) Transact(ctx context.Context, txid datom.Entid, ops []datom.Entity) ([]datom.Datom, error) {
	_, datoms, err := db.transact(ctx, txid, false, ops)
	return datoms, err
}

func (db *DB) transact(ctx context.Context, txid datom.Entid, allocateTx bool, ops []datom.Entity) (datom.Entid, []datom.Datom, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	parts := db.parts.Clone()
	var result []datom.Datom

	err := db.store.InTransaction(ctx, func(tx *sql.Tx) error {
		if allocateTx {
			eid, err := parts.Allocate(schema.PartTx, 1)
			if err != nil {
				return syntaxErrorf("allocate transaction id: %v", err)
			}
			txid = eid
		}

		r := newResolver(ctx, tx, db.idents, db.schema, parts)
		c, err := classify(ops, r)
		if err != nil {
			return err
		}

		st := newStager(ctx, tx, txid, db.ceiling)
		if err := st.stage(c); err != nil {
			return err
		}

		if err := db.runCommit(ctx, tx, c); err != nil {
			return err
		}

		if advanced := parts.Advanced(db.parts); len(advanced) > 0 {
			if err := persistParts(ctx, tx, parts, advanced); err != nil {
				return err
			}
		}

		result, err = db.readTx(ctx, tx, txid)
		return err
	})
	if err != nil {
		txMetricsOnError(err)
		return 0, nil, err
	}

	for _, part := range parts.Advanced(db.parts) {
		db.parts[part] = parts[part]
	}

	added, retracted := 0, 0
	for _, d := range result {
		if d.Added {
			added++
		} else {
			retracted++
		}
	}
	txMetricsOnCommit(added, retracted, time.Since(start))
	db.log.Info("transaction committed",
		"tx", int64(txid), "ops", len(ops), "added", added, "retracted", retracted)

	return txid, result, nil
}

// runCommit executes the reconciliation and materialization stages over
// the staged rows, then the cardinality post-check and scratch cleanup.
func (db *DB) runCommit(ctx context.Context, tx *sql.Tx, c *classified) error {
	steps := []struct {
		op  string
		sql string
	}{
		{"drop scratch index", sqlDropScratchIndex},
		{"create scratch index", sqlCreateScratchIndex},
		{"merge staged rows", sqlMerge},
		{"log additions", sqlLogAdds},
		{"log retractions", sqlLogRetractions},
		{"materialize additions", sqlMaterializeInserts},
		{"materialize retractions", sqlMaterializeDeletes},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.sql); err != nil {
			return wrapStorage(step.op, err)
		}
		db.log.Debug("commit step", "op", step.op)
	}

	if err := db.checkCardinality(ctx, tx, c); err != nil {
		return err
	}

	cleanup := []struct {
		op  string
		sql string
	}{
		{"drop scratch index", sqlDropScratchIndex},
		{"clear staged rows", "DELETE FROM temp.tx_lookup_before"},
		{"clear merged rows", "DELETE FROM temp.tx_lookup_after"},
		{"clear searchids", sqlClearSearchids},
	}
	for _, step := range cleanup {
		if _, err := tx.ExecContext(ctx, step.sql); err != nil {
			return wrapStorage(step.op, err)
		}
	}
	return nil
}

// checkCardinality verifies no cardinality-one attribute touched by
// this commit ended up holding more than one value for any entity. No
// storage-side constraint can express this, so it runs as a post-check
// inside the same unit.
func (db *DB) checkCardinality(ctx context.Context, tx *sql.Tx, c *classified) error {
	attrSet := map[int64]bool{}
	for _, t := range c.plainOne {
		attrSet[int64(t.a)] = true
	}
	for _, t := range c.ftOne {
		attrSet[int64(t.a)] = true
	}
	if len(attrSet) == 0 {
		return nil
	}

	attrs := make([]any, 0, len(attrSet))
	for a := range attrSet {
		attrs = append(attrs, a)
	}

	query := "SELECT e, a FROM datoms WHERE a IN " + sqlgen.Placeholders(len(attrs)) +
		" GROUP BY e, a HAVING COUNT(*) > 1 LIMIT 1"
	var e, a int64
	err := tx.QueryRowContext(ctx, query, attrs...).Scan(&e, &a)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return wrapStorage("cardinality post-check", err)
	}
	return &ConstraintViolation{
		Kind:    ConstraintCardinality,
		Message: fmt.Sprintf("entity %d holds multiple values for cardinality-one attribute %d", e, a),
	}
}

// readTx reads back, ordered, every log row at txid and decodes it.
// Fulltext values come back as their interned rowid and are resolved to
// text through the cache.
func (db *DB) readTx(ctx context.Context, tx *sql.Tx, txid datom.Entid) ([]datom.Datom, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT e, a, v, added, value_type_tag
		FROM transactions
		WHERE tx = ?
		ORDER BY e ASC, a ASC, v ASC, added ASC
	`, int64(txid))
	if err != nil {
		return nil, wrapStorage("read back transaction", err)
	}
	defer rows.Close()

	out := []datom.Datom{}
	for rows.Next() {
		var e, a int64
		var raw any
		var added bool
		var tag int
		if err := rows.Scan(&e, &a, &raw, &added, &tag); err != nil {
			return nil, wrapStorage("read back transaction", err)
		}

		var v datom.Value
		if attr, ok := db.schema.Attribute(datom.Entid(a)); ok && attr.Fulltext {
			rowid, isInt := raw.(int64)
			if !isInt {
				return nil, wrapStorage("read back transaction",
					syntaxErrorf("fulltext datom value is not a rowid: %T", raw))
			}
			text, err := db.fulltextText(ctx, tx, rowid)
			if err != nil {
				return nil, err
			}
			v = datom.String(text)
		} else {
			v, err = datom.FromSQL(raw, tag)
			if err != nil {
				return nil, wrapStorage("read back transaction", err)
			}
		}

		out = append(out, datom.Datom{
			E: datom.Entid(e), A: datom.Entid(a), V: v, Tx: txid, Added: added,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage("read back transaction", err)
	}
	return out, nil
}
