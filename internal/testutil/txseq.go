package testutil

import "sync"

// TxSequence hands out deterministic transaction ids for tests.
//
// Production code allocates transaction ids from :db.part/tx, which
// depends on whatever the database has already minted. Tests that
// compare against golden output need the same ids on every run, so they
// supply explicit ids from a TxSequence instead.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type TxSequence struct {
	mu   sync.Mutex
	base int64
	n    int64
}

// NewTxSequence creates a sequence starting at base.
//
// The first call to Next() returns base.
func NewTxSequence(base int64) *TxSequence {
	return &TxSequence{base: base}
}

// Next returns the next transaction id.
//
// Monotonic: ids never repeat and never decrease.
func (s *TxSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.base + s.n
	s.n++
	return id
}

// Issued returns how many ids have been handed out.
func (s *TxSequence) Issued() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Reset rewinds the sequence so the same scenario can replay with
// identical ids. After Reset(), the next call to Next() returns base.
func (s *TxSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
