package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDatabase(t *testing.T) {
	s := openTestStore(t)

	// All persisted tables must exist.
	for _, table := range []string{"datoms", "transactions", "idents", "schema", "parts", "fulltext_values"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	// Bootstrap must not duplicate rows on reopen.
	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM idents").Scan(&count); err != nil {
		t.Fatalf("count idents: %v", err)
	}
	if count != len(bootstrapIdents()) {
		t.Errorf("idents count = %d, want %d", count, len(bootstrapIdents()))
	}
}

func TestBootstrapIdents(t *testing.T) {
	s := openTestStore(t)

	idents, err := s.LoadIdents(context.Background())
	if err != nil {
		t.Fatalf("LoadIdents failed: %v", err)
	}

	eid, ok := idents.Entid(schema.DBIdent)
	if !ok {
		t.Fatal(":db/ident not bound")
	}
	if eid != entidDBIdent {
		t.Errorf(":db/ident = %d, want %d", eid, entidDBIdent)
	}

	kw, ok := idents.Keyword(entidCardinalityMany)
	if !ok || kw != schema.CardinalityMany.Keyword() {
		t.Errorf("entid %d = %v, want %v", entidCardinalityMany, kw, schema.CardinalityMany.Keyword())
	}
}

func TestBootstrapDefinitionResolves(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	def, err := s.LoadDefinition(ctx)
	if err != nil {
		t.Fatalf("LoadDefinition failed: %v", err)
	}
	idents, err := s.LoadIdents(ctx)
	if err != nil {
		t.Fatalf("LoadIdents failed: %v", err)
	}

	resolved, err := schema.Resolve(def, idents)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	attr, ok := resolved.Attribute(entidDBIdent)
	if !ok {
		t.Fatal(":db/ident has no resolved attribute")
	}
	if attr.ValueType != datom.TypeKeyword {
		t.Errorf(":db/ident value type = %v, want keyword", attr.ValueType)
	}
	if attr.Unique != schema.UniqueIdentity {
		t.Errorf(":db/ident unique = %v, want identity", attr.Unique)
	}
	// Uniqueness implies the AVET index.
	if !attr.Index {
		t.Error(":db/ident should be indexed")
	}
}

func TestBootstrapParts(t *testing.T) {
	s := openTestStore(t)

	parts, err := s.LoadParts(context.Background())
	if err != nil {
		t.Fatalf("LoadParts failed: %v", err)
	}

	db, ok := parts[schema.PartDB]
	if !ok {
		t.Fatal(":db.part/db missing")
	}
	if db.Start != 0 || db.Idx != firstUserDBEntid {
		t.Errorf(":db.part/db = %+v, want start 0 idx %d", db, firstUserDBEntid)
	}

	user := parts[schema.PartUser]
	if user.Start != PartUserStart || user.Idx != PartUserStart {
		t.Errorf(":db.part/user = %+v", user)
	}

	txp := parts[schema.PartTx]
	if txp.Start != PartTxStart || txp.Idx != PartTxStart {
		t.Errorf(":db.part/tx = %+v", txp)
	}
}

func TestInTransactionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO datoms (e, a, v, tx, value_type_tag) VALUES (1, 2, 'x', 3, 10)"); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("InTransaction error = %v, want sentinel", err)
	}

	rows, err := s.ReadDatoms(ctx)
	if err != nil {
		t.Fatalf("ReadDatoms failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("datoms after rollback = %d rows, want 0", len(rows))
	}
}

func TestInTransactionCommits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO datoms (e, a, v, tx, value_type_tag) VALUES (1, 2, 'x', 3, 10)")
		return err
	})
	if err != nil {
		t.Fatalf("InTransaction failed: %v", err)
	}

	rows, err := s.ReadDatoms(ctx)
	if err != nil {
		t.Fatalf("ReadDatoms failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("datoms = %d rows, want 1", len(rows))
	}
	if rows[0].E != 1 || rows[0].A != 2 || rows[0].Tx != 3 {
		t.Errorf("datom row = %+v", rows[0])
	}
}

func TestScratchTablesExist(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{"tx_lookup_before", "tx_lookup_after"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_temp_master WHERE name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("scratch table %s missing: %v", table, err)
		}
	}
}

func TestFulltextViewInternsOnce(t *testing.T) {
	s := openTestStore(t)

	// Same text inserted through the view twice adopts the new searchid
	// instead of creating a second row.
	if _, err := s.db.Exec(
		"INSERT INTO fulltext_values_view (text, searchid) VALUES ('hello', 1)"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := s.db.Exec(
		"INSERT INTO fulltext_values_view (text, searchid) VALUES ('hello', 2)"); err != nil {
		t.Fatalf("second insert failed: %v", err)
	}

	var count int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM fulltext_values WHERE text = 'hello'").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("fulltext rows = %d, want 1", count)
	}

	var searchid int64
	if err := s.db.QueryRow(
		"SELECT searchid FROM fulltext_values WHERE text = 'hello'").Scan(&searchid); err != nil {
		t.Fatalf("searchid query failed: %v", err)
	}
	if searchid != 2 {
		t.Errorf("searchid = %d, want 2", searchid)
	}
}

func TestFulltextText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.db.Exec("INSERT INTO fulltext_values (text) VALUES ('needle')")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId failed: %v", err)
	}

	text, err := s.FulltextText(ctx, rowid)
	if err != nil {
		t.Fatalf("FulltextText failed: %v", err)
	}
	if text != "needle" {
		t.Errorf("text = %q, want %q", text, "needle")
	}

	_, err = s.FulltextText(ctx, rowid+100)
	if !errors.Is(err, ErrNoFulltextValue) {
		t.Errorf("missing rowid error = %v, want ErrNoFulltextValue", err)
	}
}
