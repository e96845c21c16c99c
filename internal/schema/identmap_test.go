package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datalite/internal/datom"
)

func TestIdentMapBidirectional(t *testing.T) {
	m := NewIdentMap()
	ident := datom.MustKeyword(":db/ident")

	require.NoError(t, m.Bind(ident, 1))

	eid, ok := m.Entid(ident)
	require.True(t, ok)
	assert.Equal(t, datom.Entid(1), eid)

	kw, ok := m.Keyword(1)
	require.True(t, ok)
	assert.Equal(t, ident, kw)

	// Re-binding the identical pair is a no-op.
	require.NoError(t, m.Bind(ident, 1))
	assert.Equal(t, 1, m.Len())
}

func TestIdentMapRejectsConflicts(t *testing.T) {
	m := NewIdentMap()
	require.NoError(t, m.Bind(datom.MustKeyword(":a"), 1))

	assert.Error(t, m.Bind(datom.MustKeyword(":a"), 2))
	assert.Error(t, m.Bind(datom.MustKeyword(":b"), 1))
}

func TestIdentMapRename(t *testing.T) {
	m := NewIdentMap()
	require.NoError(t, m.Bind(datom.MustKeyword(":person/name"), 65536))

	require.NoError(t, m.Rename(65536, datom.MustKeyword(":person/fullName")))

	_, ok := m.Entid(datom.MustKeyword(":person/name"))
	assert.False(t, ok, "old ident must be gone")

	eid, ok := m.Entid(datom.MustKeyword(":person/fullName"))
	require.True(t, ok)
	assert.Equal(t, datom.Entid(65536), eid)

	assert.Error(t, m.Rename(99, datom.MustKeyword(":x")), "unknown entid")

	require.NoError(t, m.Bind(datom.MustKeyword(":taken"), 70000))
	assert.Error(t, m.Rename(65536, datom.MustKeyword(":taken")))
}

func TestIdentMapRemove(t *testing.T) {
	m := NewIdentMap()
	require.NoError(t, m.Bind(datom.MustKeyword(":a"), 1))

	m.Remove(1)
	assert.Equal(t, 0, m.Len())
	_, ok := m.Entid(datom.MustKeyword(":a"))
	assert.False(t, ok)

	// Removing an absent entid is a no-op.
	m.Remove(1)
}

func TestIdentMapClone(t *testing.T) {
	m := NewIdentMap()
	require.NoError(t, m.Bind(datom.MustKeyword(":a"), 1))

	cp := m.Clone()
	require.NoError(t, cp.Bind(datom.MustKeyword(":b"), 2))

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, cp.Len())
}

func TestIdentMapKeywordsSorted(t *testing.T) {
	m := NewIdentMap()
	require.NoError(t, m.Bind(datom.MustKeyword(":z/last"), 3))
	require.NoError(t, m.Bind(datom.MustKeyword(":a/first"), 1))
	require.NoError(t, m.Bind(datom.MustKeyword(":m/middle"), 2))

	kws := m.Keywords()
	assert.Equal(t, []datom.Keyword{
		datom.MustKeyword(":a/first"),
		datom.MustKeyword(":m/middle"),
		datom.MustKeyword(":z/last"),
	}, kws)
}
