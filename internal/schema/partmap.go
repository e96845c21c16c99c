package schema

import (
	"fmt"
	"slices"

	"github.com/roach88/datalite/internal/datom"
)

// Partition is one named id range. Start is the lowest id the partition
// may mint; Idx is the next unallocated id. Idx never decreases and is
// always >= Start.
type Partition struct {
	Start datom.Entid
	Idx   datom.Entid
}

// Contains reports whether eid was minted from this partition.
func (p Partition) Contains(eid datom.Entid) bool {
	return eid >= p.Start && eid < p.Idx
}

// PartMap maps partition idents to their allocators.
type PartMap map[datom.Keyword]Partition

// Clone copies the map. Transactions allocate from a clone and persist
// only the partitions that advanced.
func (m PartMap) Clone() PartMap {
	out := make(PartMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Allocate mints n consecutive ids from part and returns the first.
func (m PartMap) Allocate(part datom.Keyword, n int) (datom.Entid, error) {
	if n <= 0 {
		return 0, fmt.Errorf("allocate %d ids from %s: count must be positive", n, part)
	}
	p, ok := m[part]
	if !ok {
		return 0, fmt.Errorf("unknown partition %s", part)
	}
	first := p.Idx
	p.Idx += datom.Entid(n)
	m[part] = p
	return first, nil
}

// Advanced returns the partitions whose Idx moved past base's, in
// keyword order. Partitions absent from base count as advanced.
func (m PartMap) Advanced(base PartMap) []datom.Keyword {
	var out []datom.Keyword
	for part, p := range m {
		old, ok := base[part]
		if !ok || p.Idx > old.Idx {
			out = append(out, part)
		}
	}
	slices.SortFunc(out, datom.Keyword.Compare)
	return out
}
