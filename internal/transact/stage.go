package transact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
	"github.com/roach88/datalite/internal/sqlgen"
)

// beforeRow is one staged candidate in temp.tx_lookup_before. sv/stag
// carry the search value used to find a pre-existing row; a nil sv means
// the merge matches on (e0, a0) alone, which is how cardinality-one
// marker rows find the value they replace.
type beforeRow struct {
	e, a  int64
	v     any
	added int
	tag   int
	flags schema.Flags
	sv    any
	stag  any
}

const beforeColumns = "(e0, a0, v0, tx0, added0, value_type_tag0, " +
	"index_avet0, index_vaet0, index_fulltext0, unique_value0, sv, svalue_type_tag)"

// paramsPerBeforeRow is the bound-parameter width of one staged row.
const paramsPerBeforeRow = 12

// stager accumulates candidate rows for one commit and writes them into
// the scratch table with chunked batched statements. Fulltext adds take
// a separate two-phase path (see stageFulltext).
type stager struct {
	ctx     context.Context
	tx      *sql.Tx
	txid    int64
	ceiling int

	// nextSearchid hands out transient correlation ids for fulltext
	// interning. Single- and multi-valued batches draw from the same
	// counter, so their ranges never collide within a commit.
	nextSearchid int64

	rows []beforeRow
}

func newStager(ctx context.Context, tx *sql.Tx, txid datom.Entid, ceiling int) *stager {
	return &stager{ctx: ctx, tx: tx, txid: int64(txid), ceiling: ceiling, nextSearchid: 1}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// stage converts the classified batch into scratch-table rows:
// expansion queries for retract-attribute/retract-entity, plain rows for
// non-fulltext shapes, then the fulltext phases, then the chunked flush.
func (st *stager) stage(c *classified) error {
	for _, target := range c.retractAttributes {
		if err := st.expandRetractAttribute(target); err != nil {
			return err
		}
	}
	for _, e := range c.retractEntities {
		if err := st.expandRetractEntity(e); err != nil {
			return err
		}
	}
	for _, t := range c.retracts {
		if err := st.addRetract(t); err != nil {
			return err
		}
	}
	for _, t := range c.plainMany {
		raw, tag, err := datom.ToSQL(t.v)
		if err != nil {
			return syntaxErrorf("stage %v: %v", t.v, err)
		}
		st.rows = append(st.rows, beforeRow{
			e: int64(t.e), a: int64(t.a), v: raw, added: 1, tag: tag,
			flags: t.attr.Flags(), sv: raw, stag: tag,
		})
	}
	for _, t := range c.plainOne {
		raw, tag, err := datom.ToSQL(t.v)
		if err != nil {
			return syntaxErrorf("stage %v: %v", t.v, err)
		}
		// Value row asserts the datom; the marker row finds whatever
		// value (e, a) currently holds so it can be replaced.
		st.rows = append(st.rows, beforeRow{
			e: int64(t.e), a: int64(t.a), v: raw, added: 1, tag: tag,
			flags: t.attr.Flags(), sv: raw, stag: tag,
		})
		st.rows = append(st.rows, beforeRow{
			e: int64(t.e), a: int64(t.a), v: raw, added: 0, tag: tag,
		})
	}

	if err := st.flush(); err != nil {
		return err
	}
	return st.stageFulltext(c)
}

// addRetract stages one explicit single-datom retraction. Fulltext
// values retract by their interned rowid; a string that was never
// interned has no current datom, so the retraction is a no-op.
func (st *stager) addRetract(t term) error {
	if t.attr.Fulltext {
		text := norm.NFC.String(string(t.v.(datom.String)))
		var rowid int64
		err := st.tx.QueryRowContext(st.ctx,
			"SELECT rowid FROM fulltext_values WHERE text = ?", text).Scan(&rowid)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return wrapStorage("resolve fulltext retraction", err)
		}
		st.rows = append(st.rows, beforeRow{
			e: int64(t.e), a: int64(t.a), v: rowid, added: 0, tag: datom.TagString,
			sv: rowid, stag: datom.TagString,
		})
		return nil
	}

	raw, tag, err := datom.ToSQL(t.v)
	if err != nil {
		return syntaxErrorf("stage retraction %v: %v", t.v, err)
	}
	st.rows = append(st.rows, beforeRow{
		e: int64(t.e), a: int64(t.a), v: raw, added: 0, tag: tag,
		sv: raw, stag: tag,
	})
	return nil
}

// expandRetractAttribute stages a retraction for every current value of
// (e, a).
func (st *stager) expandRetractAttribute(target attrTarget) error {
	rows, err := st.tx.QueryContext(st.ctx,
		"SELECT v, value_type_tag FROM datoms WHERE e = ? AND a = ?",
		int64(target.e), int64(target.a))
	if err != nil {
		return wrapStorage("expand retract-attribute", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v any
		var tag int
		if err := rows.Scan(&v, &tag); err != nil {
			return wrapStorage("expand retract-attribute", err)
		}
		st.rows = append(st.rows, beforeRow{
			e: int64(target.e), a: int64(target.a), v: v, added: 0, tag: tag,
			sv: v, stag: tag,
		})
	}
	return rows.Err()
}

// expandRetractEntity stages a retraction for every datom with e as the
// subject plus every ref datom pointing at e.
func (st *stager) expandRetractEntity(e datom.Entid) error {
	rows, err := st.tx.QueryContext(st.ctx, `
		SELECT e, a, v, value_type_tag FROM datoms WHERE e = ?
		UNION ALL
		SELECT e, a, v, value_type_tag FROM datoms
		WHERE index_vaet IS NOT 0 AND value_type_tag = ? AND v = ?
	`, int64(e), datom.TagRef, int64(e))
	if err != nil {
		return wrapStorage("expand retract-entity", err)
	}
	defer rows.Close()

	for rows.Next() {
		var re, ra int64
		var v any
		var tag int
		if err := rows.Scan(&re, &ra, &v, &tag); err != nil {
			return wrapStorage("expand retract-entity", err)
		}
		st.rows = append(st.rows, beforeRow{
			e: re, a: ra, v: v, added: 0, tag: tag,
			sv: v, stag: tag,
		})
	}
	return rows.Err()
}

// flush deduplicates and writes the accumulated plain rows, chunked
// under the parameter ceiling.
func (st *stager) flush() error {
	rows := dedupRows(st.rows)
	st.rows = nil
	if len(rows) == 0 {
		return nil
	}

	size, err := sqlgen.ChunkSize(st.ceiling, paramsPerBeforeRow)
	if err != nil {
		return err
	}
	for _, span := range sqlgen.Chunk(len(rows), size) {
		chunk := rows[span[0]:span[1]]
		query := "INSERT INTO temp.tx_lookup_before " + beforeColumns +
			" VALUES " + sqlgen.RepeatRows(len(chunk), paramsPerBeforeRow)
		args := make([]any, 0, len(chunk)*paramsPerBeforeRow)
		for _, r := range chunk {
			args = append(args, r.e, r.a, r.v, st.txid, r.added, r.tag,
				b2i(r.flags.IndexAVET), b2i(r.flags.IndexVAET),
				b2i(r.flags.IndexFulltext), b2i(r.flags.UniqueValue),
				r.sv, r.stag)
		}
		if _, err := st.tx.ExecContext(st.ctx, query, args...); err != nil {
			return wrapStorage("stage candidate datoms", err)
		}
	}
	return nil
}

func dedupRows(rows []beforeRow) []beforeRow {
	seen := map[string]bool{}
	out := rows[:0]
	for _, r := range rows {
		key := fmt.Sprintf("%d|%d|%d|%v|%d|%v", r.e, r.a, r.tag, r.v, r.added, r.sv)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// Fulltext staging fragments. Phase 1 interns the (normalized) strings
// via the insert-if-absent view, correlated by transient searchids;
// phase 2 resolves each searchid to its rowid and stages the datom
// referencing it.
const (
	ftAddFragment = "SELECT ?, ?, rowid, ?, 1, ?, ?, ?, ?, ?, rowid, ? " +
		"FROM fulltext_values WHERE searchid = ?"
	ftMarkerFragment = "SELECT ?, ?, rowid, ?, 0, ?, 0, 0, 0, 0, NULL, NULL " +
		"FROM fulltext_values WHERE searchid = ?"

	paramsPerFtAdd    = 10
	paramsPerFtMarker = 5
)

func (st *stager) stageFulltext(c *classified) error {
	if len(c.ftMany) == 0 && len(c.ftOne) == 0 {
		return nil
	}

	// Each bucket interns then stages before the next bucket interns:
	// re-interning a text the other bucket shares moves its searchid,
	// so the resolution must happen while the ids are still live.
	if len(c.ftMany) > 0 {
		manyIDs, err := st.internTexts(c.ftMany)
		if err != nil {
			return err
		}
		size, err := sqlgen.ChunkSize(st.ceiling, paramsPerFtAdd)
		if err != nil {
			return err
		}
		for _, span := range sqlgen.Chunk(len(c.ftMany), size) {
			chunk := c.ftMany[span[0]:span[1]]
			query := "INSERT INTO temp.tx_lookup_before " + beforeColumns + " " +
				sqlgen.RepeatSelects(ftAddFragment, len(chunk))
			args := make([]any, 0, len(chunk)*paramsPerFtAdd)
			for i, t := range chunk {
				args = append(args, st.ftAddArgs(t, manyIDs[span[0]+i])...)
			}
			if _, err := st.tx.ExecContext(st.ctx, query, args...); err != nil {
				return wrapStorage("stage fulltext datoms", err)
			}
		}
	}

	if len(c.ftOne) > 0 {
		oneIDs, err := st.internTexts(c.ftOne)
		if err != nil {
			return err
		}
		perPair := paramsPerFtAdd + paramsPerFtMarker
		size, err := sqlgen.ChunkSize(st.ceiling, perPair)
		if err != nil {
			return err
		}
		pair := ftAddFragment + " UNION ALL " + ftMarkerFragment
		for _, span := range sqlgen.Chunk(len(c.ftOne), size) {
			chunk := c.ftOne[span[0]:span[1]]
			query := "INSERT INTO temp.tx_lookup_before " + beforeColumns + " " +
				sqlgen.RepeatSelects(pair, len(chunk))
			args := make([]any, 0, len(chunk)*perPair)
			for i, t := range chunk {
				sid := oneIDs[span[0]+i]
				args = append(args, st.ftAddArgs(t, sid)...)
				args = append(args, int64(t.e), int64(t.a), st.txid, datom.TagString, sid)
			}
			if _, err := st.tx.ExecContext(st.ctx, query, args...); err != nil {
				return wrapStorage("stage fulltext datoms", err)
			}
		}
	}

	return nil
}

func (st *stager) ftAddArgs(t term, searchid int64) []any {
	flags := t.attr.Flags()
	return []any{
		int64(t.e), int64(t.a), st.txid, datom.TagString,
		b2i(flags.IndexAVET), b2i(flags.IndexVAET),
		b2i(flags.IndexFulltext), b2i(flags.UniqueValue),
		datom.TagString, searchid,
	}
}

// internTexts runs phase 1 for one bucket: each distinct normalized
// string gets a searchid and is inserted through fulltext_values_view.
// Returns the searchid per term, parallel to the bucket.
func (st *stager) internTexts(terms []term) ([]int64, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(terms))
	byText := map[string]int64{}
	type pair struct {
		text string
		sid  int64
	}
	var fresh []pair

	for i, t := range terms {
		text := norm.NFC.String(string(t.v.(datom.String)))
		sid, ok := byText[text]
		if !ok {
			sid = st.nextSearchid
			st.nextSearchid++
			byText[text] = sid
			fresh = append(fresh, pair{text: text, sid: sid})
		}
		ids[i] = sid
	}

	size, err := sqlgen.ChunkSize(st.ceiling, 2)
	if err != nil {
		return nil, err
	}
	for _, span := range sqlgen.Chunk(len(fresh), size) {
		chunk := fresh[span[0]:span[1]]
		query := "INSERT INTO fulltext_values_view (text, searchid) VALUES " +
			sqlgen.RepeatRows(len(chunk), 2)
		args := make([]any, 0, len(chunk)*2)
		for _, p := range chunk {
			args = append(args, p.text, p.sid)
		}
		if _, err := st.tx.ExecContext(st.ctx, query, args...); err != nil {
			return nil, wrapStorage("intern fulltext values", err)
		}
	}
	return ids, nil
}
