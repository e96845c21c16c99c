package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
)

// LoadIdents reads the idents table into a bidirectional map.
func (s *Store) LoadIdents(ctx context.Context) (*schema.IdentMap, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT ident, entid FROM idents ORDER BY entid ASC")
	if err != nil {
		return nil, fmt.Errorf("query idents: %w", err)
	}
	defer rows.Close()

	idents := schema.NewIdentMap()
	for rows.Next() {
		var ident string
		var entid int64
		if err := rows.Scan(&ident, &entid); err != nil {
			return nil, fmt.Errorf("scan ident: %w", err)
		}
		kw, err := datom.ParseKeyword(ident)
		if err != nil {
			return nil, fmt.Errorf("idents row %q: %w", ident, err)
		}
		if err := idents.Bind(kw, datom.Entid(entid)); err != nil {
			return nil, fmt.Errorf("idents row %q: %w", ident, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idents: %w", err)
	}
	return idents, nil
}

// LoadDefinition reads the schema table into the symbolic definition.
func (s *Store) LoadDefinition(ctx context.Context) (schema.Definition, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ident, attr, value, value_type_tag FROM schema ORDER BY ident ASC, attr ASC")
	if err != nil {
		return nil, fmt.Errorf("query schema: %w", err)
	}
	defer rows.Close()

	def := schema.Definition{}
	for rows.Next() {
		var ident, attr string
		var raw any
		var tag int
		if err := rows.Scan(&ident, &attr, &raw, &tag); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		identKW, err := datom.ParseKeyword(ident)
		if err != nil {
			return nil, fmt.Errorf("schema row ident %q: %w", ident, err)
		}
		attrKW, err := datom.ParseKeyword(attr)
		if err != nil {
			return nil, fmt.Errorf("schema row attr %q: %w", attr, err)
		}
		value, err := datom.FromSQL(raw, tag)
		if err != nil {
			return nil, fmt.Errorf("schema row %s %s: %w", ident, attr, err)
		}
		def.Set(identKW, attrKW, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema: %w", err)
	}
	return def, nil
}

// LoadParts reads the parts table into a partition map.
func (s *Store) LoadParts(ctx context.Context) (schema.PartMap, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT part, start, idx FROM parts ORDER BY part ASC")
	if err != nil {
		return nil, fmt.Errorf("query parts: %w", err)
	}
	defer rows.Close()

	parts := schema.PartMap{}
	for rows.Next() {
		var part string
		var start, idx int64
		if err := rows.Scan(&part, &start, &idx); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		kw, err := datom.ParseKeyword(part)
		if err != nil {
			return nil, fmt.Errorf("parts row %q: %w", part, err)
		}
		parts[kw] = schema.Partition{Start: datom.Entid(start), Idx: datom.Entid(idx)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parts: %w", err)
	}
	return parts, nil
}

// DatomRow is one raw current-state row. V is the undecoded SQLite value;
// pair it with ValueTypeTag and datom.FromSQL to get a typed value.
type DatomRow struct {
	E, A, Tx      int64
	V             any
	ValueTypeTag  int
	IndexAVET     bool
	IndexVAET     bool
	IndexFulltext bool
	UniqueValue   bool
}

// ReadDatoms returns every current-state row, ordered by (e, a, v).
func (s *Store) ReadDatoms(ctx context.Context) ([]DatomRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e, a, v, tx, value_type_tag, index_avet, index_vaet, index_fulltext, unique_value
		FROM datoms
		ORDER BY e ASC, a ASC, v ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query datoms: %w", err)
	}
	defer rows.Close()

	out := []DatomRow{}
	for rows.Next() {
		var r DatomRow
		if err := rows.Scan(&r.E, &r.A, &r.V, &r.Tx, &r.ValueTypeTag,
			&r.IndexAVET, &r.IndexVAET, &r.IndexFulltext, &r.UniqueValue); err != nil {
			return nil, fmt.Errorf("scan datom: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datoms: %w", err)
	}
	return out, nil
}

// LogRow is one raw transaction-log row.
type LogRow struct {
	E, A, Tx     int64
	V            any
	ValueTypeTag int
	Added        bool
}

// ReadLog returns log rows, ordered by (tx, e, a, v, added). A negative
// tx returns the whole log; otherwise only rows at that transaction.
func (s *Store) ReadLog(ctx context.Context, tx int64) ([]LogRow, error) {
	query := `
		SELECT e, a, v, tx, added, value_type_tag
		FROM transactions
		ORDER BY tx ASC, e ASC, a ASC, v ASC, added ASC
	`
	args := []any{}
	if tx >= 0 {
		query = `
			SELECT e, a, v, tx, added, value_type_tag
			FROM transactions
			WHERE tx = ?
			ORDER BY e ASC, a ASC, v ASC, added ASC
		`
		args = append(args, tx)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []LogRow{}
	for rows.Next() {
		var r LogRow
		if err := rows.Scan(&r.E, &r.A, &r.V, &r.Tx, &r.Added, &r.ValueTypeTag); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// ErrNoFulltextValue reports a dangling fulltext rowid.
var ErrNoFulltextValue = errors.New("no fulltext value for rowid")

// FulltextText resolves an interned fulltext rowid back to its text.
func (s *Store) FulltextText(ctx context.Context, rowid int64) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		"SELECT text FROM fulltext_values WHERE rowid = ?", rowid).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrNoFulltextValue, rowid)
	}
	if err != nil {
		return "", fmt.Errorf("query fulltext value %d: %w", rowid, err)
	}
	return text, nil
}
