package transact

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/schema"
	"github.com/roach88/datalite/internal/store"
	"github.com/roach88/datalite/internal/testutil"
)

var (
	kwName    = datom.KW("person", "name")
	kwEmail   = datom.KW("person", "email")
	kwAliases = datom.KW("person", "aliases")
	kwFriend  = datom.KW("person", "friend")
	kwAge     = datom.KW("person", "age")
	kwBio     = datom.KW("person", "bio")
)

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	opts = append(opts,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	db, err := Open(testutil.TempDBPath(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// seedTestSchema installs the person attributes used across the tests.
func seedTestSchema(t *testing.T, db *DB) {
	t.Helper()
	def := schema.Definition{}

	def.Set(kwName, schema.DBValueType, datom.TypeString.Keyword())
	def.Set(kwName, schema.DBCardinality, schema.CardinalityOne.Keyword())

	def.Set(kwEmail, schema.DBValueType, datom.TypeString.Keyword())
	def.Set(kwEmail, schema.DBCardinality, schema.CardinalityOne.Keyword())
	def.Set(kwEmail, schema.DBUnique, datom.KW("db.unique", "identity"))

	def.Set(kwAliases, schema.DBValueType, datom.TypeString.Keyword())
	def.Set(kwAliases, schema.DBCardinality, schema.CardinalityMany.Keyword())

	def.Set(kwFriend, schema.DBValueType, datom.TypeRef.Keyword())
	def.Set(kwFriend, schema.DBCardinality, schema.CardinalityMany.Keyword())

	def.Set(kwAge, schema.DBValueType, datom.TypeLong.Keyword())
	def.Set(kwAge, schema.DBCardinality, schema.CardinalityOne.Keyword())

	def.Set(kwBio, schema.DBValueType, datom.TypeString.Keyword())
	def.Set(kwBio, schema.DBCardinality, schema.CardinalityOne.Keyword())
	def.Set(kwBio, schema.DBFulltext, datom.Boolean(true))

	_, err := db.DefineAttributes(context.Background(), def)
	require.NoError(t, err)
}

func attrEntid(t *testing.T, db *DB, kw datom.Keyword) datom.Entid {
	t.Helper()
	eid, ok := db.QueryContext().Entid(kw)
	require.True(t, ok, "attribute %s not installed", kw)
	return eid
}

func currentDatoms(t *testing.T, db *DB, e datom.Entid, a datom.Entid) []store.DatomRow {
	t.Helper()
	rows, err := db.Store().ReadDatoms(context.Background())
	require.NoError(t, err)
	out := []store.DatomRow{}
	for _, r := range rows {
		if r.E == int64(e) && r.A == int64(a) {
			out = append(out, r)
		}
	}
	return out
}

func TestTransactFirstAdd(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	datoms, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
	})
	require.NoError(t, err)

	require.Len(t, datoms, 1)
	name := attrEntid(t, db, kwName)
	assert.Equal(t, datom.Datom{
		E: 1, A: name, V: datom.String("Alice"), Tx: 100, Added: true,
	}, datoms[0])

	rows := currentDatoms(t, db, 1, name)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0].V)
	assert.Equal(t, int64(100), rows[0].Tx)

	log, err := db.Store().ReadLog(ctx, 100)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.True(t, log[0].Added)
}

func TestTransactIdempotentReadd(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	_, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
	})
	require.NoError(t, err)

	datoms, err := db.Transact(ctx, 101, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
	})
	require.NoError(t, err)
	assert.Empty(t, datoms, "re-adding an identical datom must be a no-op")

	log, err := db.Store().ReadLog(ctx, 101)
	require.NoError(t, err)
	assert.Empty(t, log)

	rows := currentDatoms(t, db, 1, attrEntid(t, db, kwName))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(100), rows[0].Tx, "original tx must survive the re-add")
}

func TestTransactCardinalityOneReplace(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	_, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
	})
	require.NoError(t, err)

	datoms, err := db.Transact(ctx, 101, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alicia")),
	})
	require.NoError(t, err)

	name := attrEntid(t, db, kwName)
	require.Len(t, datoms, 2)
	assert.Equal(t, datom.Datom{
		E: 1, A: name, V: datom.String("Alice"), Tx: 101, Added: false,
	}, datoms[0])
	assert.Equal(t, datom.Datom{
		E: 1, A: name, V: datom.String("Alicia"), Tx: 101, Added: true,
	}, datoms[1])

	rows := currentDatoms(t, db, 1, name)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alicia", rows[0].V)
}

func TestTransactRetractAndReplaceSameTx(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	_, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
	})
	require.NoError(t, err)

	// An explicit retract and the cardinality-one replace both target
	// the same stored datom; the retraction must be logged once.
	datoms, err := db.Transact(ctx, 101, []datom.Entity{
		datom.Retract(datom.Entid(1), kwName, datom.String("Alice")),
		datom.Add(datom.Entid(1), kwName, datom.String("Alicia")),
	})
	require.NoError(t, err)

	name := attrEntid(t, db, kwName)
	require.Len(t, datoms, 2)
	assert.Equal(t, datom.Datom{
		E: 1, A: name, V: datom.String("Alice"), Tx: 101, Added: false,
	}, datoms[0])
	assert.Equal(t, datom.Datom{
		E: 1, A: name, V: datom.String("Alicia"), Tx: 101, Added: true,
	}, datoms[1])

	log, err := db.Store().ReadLog(ctx, 101)
	require.NoError(t, err)
	assert.Len(t, log, 2)

	rows := currentDatoms(t, db, 1, name)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alicia", rows[0].V)
}

func TestTransactExplicitRetract(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	_, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwAge, datom.Long(30)),
	})
	require.NoError(t, err)

	datoms, err := db.Transact(ctx, 101, []datom.Entity{
		datom.Retract(datom.Entid(1), kwAge, datom.Long(30)),
	})
	require.NoError(t, err)
	require.Len(t, datoms, 1)
	assert.False(t, datoms[0].Added)
	assert.Equal(t, datom.Long(30), datoms[0].V)

	assert.Empty(t, currentDatoms(t, db, 1, attrEntid(t, db, kwAge)))
}

func TestTransactRetractMissingValueIsNoop(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)

	datoms, err := db.Transact(context.Background(), 100, []datom.Entity{
		datom.Retract(datom.Entid(1), kwAge, datom.Long(99)),
	})
	require.NoError(t, err)
	assert.Empty(t, datoms)
}

func TestTransactMultivaluedAdds(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	datoms, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwAliases, datom.String("ally")),
		datom.Add(datom.Entid(1), kwAliases, datom.String("al")),
	})
	require.NoError(t, err)
	require.Len(t, datoms, 2)

	rows := currentDatoms(t, db, 1, attrEntid(t, db, kwAliases))
	assert.Len(t, rows, 2, "cardinality-many values must accumulate")
}

func TestTransactRetractAttribute(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()
	txs := testutil.NewTxSequence(100)

	_, err := db.Transact(ctx, datom.Entid(txs.Next()), []datom.Entity{
		datom.Add(datom.Entid(1), kwAliases, datom.String("ally")),
		datom.Add(datom.Entid(1), kwAliases, datom.String("al")),
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
	})
	require.NoError(t, err)

	datoms, err := db.Transact(ctx, datom.Entid(txs.Next()), []datom.Entity{
		datom.RetractAttribute(datom.Entid(1), kwAliases),
	})
	require.NoError(t, err)

	require.Len(t, datoms, 2, "one retraction per removed value")
	for _, d := range datoms {
		assert.False(t, d.Added)
	}

	assert.Empty(t, currentDatoms(t, db, 1, attrEntid(t, db, kwAliases)))
	assert.Len(t, currentDatoms(t, db, 1, attrEntid(t, db, kwName)), 1,
		"other attributes must be untouched")
}

func TestTransactRetractEntityIncludesInboundRefs(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	_, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
		datom.Add(datom.Entid(2), kwName, datom.String("Bob")),
		datom.Add(datom.Entid(2), kwFriend, datom.Ref(1)),
	})
	require.NoError(t, err)

	datoms, err := db.Transact(ctx, 101, []datom.Entity{
		datom.RetractEntity(datom.Entid(1)),
	})
	require.NoError(t, err)

	// Alice's own name datom plus Bob's inbound friend ref.
	require.Len(t, datoms, 2)
	for _, d := range datoms {
		assert.False(t, d.Added)
	}

	assert.Empty(t, currentDatoms(t, db, 1, attrEntid(t, db, kwName)))
	assert.Empty(t, currentDatoms(t, db, 2, attrEntid(t, db, kwFriend)))
	assert.Len(t, currentDatoms(t, db, 2, attrEntid(t, db, kwName)), 1)
}

func TestTransactUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	_, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwEmail, datom.String("a@example.com")),
	})
	require.NoError(t, err)

	_, err = db.Transact(ctx, 101, []datom.Entity{
		datom.Add(datom.Entid(2), kwEmail, datom.String("a@example.com")),
	})
	require.Error(t, err)
	kind, ok := IsConstraintViolation(err)
	require.True(t, ok)
	assert.Equal(t, ConstraintUnique, kind)

	// The failed commit must leave no trace.
	log, err := db.Store().ReadLog(ctx, 101)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestTransactCardinalityViolation(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)

	_, err := db.Transact(context.Background(), 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
		datom.Add(datom.Entid(1), kwName, datom.String("Alicia")),
	})
	require.Error(t, err)
	kind, ok := IsConstraintViolation(err)
	require.True(t, ok)
	assert.Equal(t, ConstraintCardinality, kind)

	assert.Empty(t, currentDatoms(t, db, 1, attrEntid(t, db, kwName)))
}

func TestTransactUnknownOperationKind(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)

	_, err := db.Transact(context.Background(), 100, []datom.Entity{
		{Op: datom.OpKind(42), E: datom.Entid(1), A: kwName, V: datom.String("x")},
	})
	require.Error(t, err)
	assert.True(t, IsSyntaxError(err))
}

func TestTransactUnknownAttribute(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)

	_, err := db.Transact(context.Background(), 100, []datom.Entity{
		datom.Add(datom.Entid(1), datom.KW("person", "nope"), datom.String("x")),
	})
	require.Error(t, err)
	assert.True(t, IsSyntaxError(err))
}

func TestTransactValueTypeMismatch(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)

	_, err := db.Transact(context.Background(), 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwAge, datom.String("thirty")),
	})
	require.Error(t, err)
	assert.True(t, IsSyntaxError(err))
}

func TestTransactLookupRef(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	_, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(7), kwEmail, datom.String("a@example.com")),
	})
	require.NoError(t, err)

	datoms, err := db.Transact(ctx, 101, []datom.Entity{
		datom.Add(
			datom.LookupRef{Attr: kwEmail, Value: datom.String("a@example.com")},
			kwName, datom.String("Alice")),
	})
	require.NoError(t, err)
	require.Len(t, datoms, 1)
	assert.Equal(t, datom.Entid(7), datoms[0].E)
}

func TestTransactLookupRefNonUniqueAttribute(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)

	_, err := db.Transact(context.Background(), 100, []datom.Entity{
		datom.Add(
			datom.LookupRef{Attr: kwName, Value: datom.String("Alice")},
			kwAge, datom.Long(30)),
	})
	require.Error(t, err)
	assert.True(t, IsSyntaxError(err))
}

func TestTransactorTempIDs(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	session := NewTransactor(db)
	alice := session.UserTempID()
	bob := session.UserTempID()

	txid, datoms, err := session.Transact(ctx, []datom.Entity{
		datom.Add(alice, kwName, datom.String("Alice")),
		datom.Add(bob, kwName, datom.String("Bob")),
		datom.Add(bob, kwFriend, alice),
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int64(txid), int64(store.PartTxStart))
	require.Len(t, datoms, 3)

	// Both uses of the alice tempid must resolve to the same entity.
	name := attrEntid(t, db, kwName)
	friend := attrEntid(t, db, kwFriend)
	var aliceEid datom.Entid
	for _, d := range datoms {
		if d.A == name && d.V == datom.String("Alice") {
			aliceEid = d.E
		}
	}
	require.NotZero(t, aliceEid)
	assert.GreaterOrEqual(t, int64(aliceEid), int64(store.PartUserStart))
	for _, d := range datoms {
		if d.A == friend {
			assert.Equal(t, datom.Ref(aliceEid), d.V)
		}
	}

	// A second commit allocates a fresh, higher transaction id.
	txid2, _, err := session.Transact(ctx, []datom.Entity{
		datom.Add(session.UserTempID(), kwName, datom.String("Carol")),
	})
	require.NoError(t, err)
	assert.Greater(t, int64(txid2), int64(txid))
}

func TestTransactTempIDRequiresNegativeIdx(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)

	_, err := db.Transact(context.Background(), 100, []datom.Entity{
		datom.Add(datom.TempID{Part: schema.PartUser, Idx: 1}, kwName, datom.String("x")),
	})
	require.Error(t, err)
	assert.True(t, IsSyntaxError(err))
}

func TestTransactFulltextInterningDedupes(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	shared := "enjoys long walks"
	datoms, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwBio, datom.String(shared)),
		datom.Add(datom.Entid(2), kwBio, datom.String(shared)),
	})
	require.NoError(t, err)
	require.Len(t, datoms, 2)
	for _, d := range datoms {
		assert.Equal(t, datom.String(shared), d.V, "fulltext values read back as text")
	}

	var count int
	err = db.Store().DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fulltext_values WHERE text = ?", shared).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one interned row shared by both datoms")

	bio := attrEntid(t, db, kwBio)
	r1 := currentDatoms(t, db, 1, bio)
	r2 := currentDatoms(t, db, 2, bio)
	require.Len(t, r1, 1)
	require.Len(t, r2, 1)
	assert.Equal(t, r1[0].V, r2[0].V, "both datoms reference the same rowid")
	assert.True(t, r1[0].IndexFulltext)

	// No transient searchids survive the commit.
	var pending int
	err = db.Store().DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fulltext_values WHERE searchid IS NOT NULL").Scan(&pending)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestTransactFulltextReplaceAndRetract(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)
	ctx := context.Background()

	_, err := db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwBio, datom.String("first")),
	})
	require.NoError(t, err)

	datoms, err := db.Transact(ctx, 101, []datom.Entity{
		datom.Add(datom.Entid(1), kwBio, datom.String("second")),
	})
	require.NoError(t, err)
	require.Len(t, datoms, 2)
	assert.Equal(t, datom.String("first"), datoms[0].V)
	assert.False(t, datoms[0].Added)
	assert.Equal(t, datom.String("second"), datoms[1].V)
	assert.True(t, datoms[1].Added)

	datoms, err = db.Transact(ctx, 102, []datom.Entity{
		datom.Retract(datom.Entid(1), kwBio, datom.String("second")),
	})
	require.NoError(t, err)
	require.Len(t, datoms, 1)
	assert.False(t, datoms[0].Added)

	assert.Empty(t, currentDatoms(t, db, 1, attrEntid(t, db, kwBio)))
}

func TestTransactChunkedBatch(t *testing.T) {
	// A ceiling of 24 forces two-row chunks through the staging insert.
	db := openTestDB(t, WithParamCeiling(24))
	seedTestSchema(t, db)
	ctx := context.Background()

	ops := make([]datom.Entity, 0, 20)
	for i := 0; i < 20; i++ {
		ops = append(ops, datom.Add(datom.Entid(1), kwAliases,
			datom.String(string(rune('a'+i)))))
	}
	datoms, err := db.Transact(ctx, 100, ops)
	require.NoError(t, err)
	assert.Len(t, datoms, 20)
	assert.Len(t, currentDatoms(t, db, 1, attrEntid(t, db, kwAliases)), 20)
}

func TestEntidIdentPassthrough(t *testing.T) {
	db := openTestDB(t)
	seedTestSchema(t, db)

	eid := attrEntid(t, db, kwName)
	assert.Equal(t, eid, db.Entid(kwName))
	assert.Equal(t, kwName, db.Ident(eid))

	// Unknown inputs pass through unchanged, in both directions.
	unknown := datom.KW("no", "such")
	assert.Equal(t, unknown, db.Entid(unknown))
	assert.Equal(t, datom.Entid(987654), db.Ident(datom.Entid(987654)))
	assert.Equal(t, datom.Entid(42), db.Entid(datom.Entid(42)))
}

func TestApplyPartMapPersistsAdvancedOnly(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	parts := db.QueryContext().Partitions().Clone()
	_, err := parts.Allocate(schema.PartUser, 10)
	require.NoError(t, err)

	require.NoError(t, db.ApplyPartMap(ctx, parts))

	var idx int64
	err = db.Store().DB().QueryRowContext(ctx,
		"SELECT idx FROM parts WHERE part = ?", schema.PartUser.String()).Scan(&idx)
	require.NoError(t, err)
	assert.Equal(t, int64(store.PartUserStart+10), idx)

	// Untouched partitions keep their stored counters.
	err = db.Store().DB().QueryRowContext(ctx,
		"SELECT idx FROM parts WHERE part = ?", schema.PartTx.String()).Scan(&idx)
	require.NoError(t, err)
	assert.Equal(t, int64(store.PartTxStart), idx)
}

func TestApplyPartMapInsertsNewPartition(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	parts := db.QueryContext().Partitions().Clone()
	orders := datom.KW("db.part", "orders")
	parts[orders] = schema.Partition{Start: 0x200000, Idx: 0x200000}
	_, err := parts.Allocate(orders, 3)
	require.NoError(t, err)

	require.NoError(t, db.ApplyPartMap(ctx, parts))

	// A partition the stored map never saw lands as a new row.
	var start, idx int64
	err = db.Store().DB().QueryRowContext(ctx,
		"SELECT start, idx FROM parts WHERE part = ?", orders.String()).Scan(&start, &idx)
	require.NoError(t, err)
	assert.Equal(t, int64(0x200000), start)
	assert.Equal(t, int64(0x200003), idx)

	got, ok := db.QueryContext().Partitions()[orders]
	require.True(t, ok)
	assert.Equal(t, datom.Entid(0x200003), got.Idx)
}

func TestTransactSurvivesReopen(t *testing.T) {
	path := testutil.TempDBPath(t)
	ctx := context.Background()

	db, err := Open(path, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	seedTestSchema(t, db)
	_, err = db.Transact(ctx, 100, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alice")),
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer db.Close()

	// Schema, idents, and data all come back from disk.
	name := attrEntid(t, db, kwName)
	rows := currentDatoms(t, db, 1, name)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0].V)

	datoms, err := db.Transact(ctx, 101, []datom.Entity{
		datom.Add(datom.Entid(1), kwName, datom.String("Alicia")),
	})
	require.NoError(t, err)
	assert.Len(t, datoms, 2)
}
