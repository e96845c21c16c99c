package schema

import (
	"fmt"
	"slices"

	"github.com/roach88/datalite/internal/datom"
)

// IdentMap is the bidirectional ident binding. Both directions are kept
// in lockstep: for every pair, keyword->entid and entid->keyword hold,
// and no ident or entid appears twice.
type IdentMap struct {
	byKeyword map[datom.Keyword]datom.Entid
	byEntid   map[datom.Entid]datom.Keyword
}

// NewIdentMap returns an empty map.
func NewIdentMap() *IdentMap {
	return &IdentMap{
		byKeyword: map[datom.Keyword]datom.Entid{},
		byEntid:   map[datom.Entid]datom.Keyword{},
	}
}

// Bind adds the pair (kw, eid). Rebinding either side to a different
// partner is an error; Rename exists for that.
func (m *IdentMap) Bind(kw datom.Keyword, eid datom.Entid) error {
	if prev, ok := m.byKeyword[kw]; ok && prev != eid {
		return fmt.Errorf("ident %s already bound to %d", kw, prev)
	}
	if prev, ok := m.byEntid[eid]; ok && prev != kw {
		return fmt.Errorf("entid %d already bound to %s", eid, prev)
	}
	m.byKeyword[kw] = eid
	m.byEntid[eid] = kw
	return nil
}

// Rename rebinds eid to kw, dropping the old keyword entry.
func (m *IdentMap) Rename(eid datom.Entid, kw datom.Keyword) error {
	old, ok := m.byEntid[eid]
	if !ok {
		return fmt.Errorf("entid %d is not bound", eid)
	}
	if other, ok := m.byKeyword[kw]; ok && other != eid {
		return fmt.Errorf("ident %s already bound to %d", kw, other)
	}
	delete(m.byKeyword, old)
	m.byKeyword[kw] = eid
	m.byEntid[eid] = kw
	return nil
}

// Remove drops the pair for eid, in both directions.
func (m *IdentMap) Remove(eid datom.Entid) {
	if kw, ok := m.byEntid[eid]; ok {
		delete(m.byKeyword, kw)
		delete(m.byEntid, eid)
	}
}

// Entid returns the entid bound to kw.
func (m *IdentMap) Entid(kw datom.Keyword) (datom.Entid, bool) {
	eid, ok := m.byKeyword[kw]
	return eid, ok
}

// Keyword returns the ident bound to eid.
func (m *IdentMap) Keyword(eid datom.Entid) (datom.Keyword, bool) {
	kw, ok := m.byEntid[eid]
	return kw, ok
}

// Len reports the number of bindings.
func (m *IdentMap) Len() int { return len(m.byKeyword) }

// Keywords returns all bound idents in keyword order.
func (m *IdentMap) Keywords() []datom.Keyword {
	out := make([]datom.Keyword, 0, len(m.byKeyword))
	for kw := range m.byKeyword {
		out = append(out, kw)
	}
	slices.SortFunc(out, datom.Keyword.Compare)
	return out
}

// Clone is a deep copy.
func (m *IdentMap) Clone() *IdentMap {
	out := NewIdentMap()
	for kw, eid := range m.byKeyword {
		out.byKeyword[kw] = eid
		out.byEntid[eid] = kw
	}
	return out
}
