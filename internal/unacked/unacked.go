// Package unacked implements the Transmitter's unacknowledged set: an
// ordered collection of in-flight DATA seq values, per spec.md §3/§9.
//
// The source's hand-rolled linked list is replaced with a degree-balanced
// btree (github.com/google/btree) keyed by seq, giving O(log n) membership
// test, insert, and delete-by-key. Because the Transmitter only ever
// appends strictly increasing seq values (the send buffer is consumed in
// order and retransmission re-sends existing entries rather than
// re-inserting them), ascending iteration over the tree reproduces
// insertion order exactly — which is what spec.md §4.1's retransmission
// sweep requires.
package unacked

import (
	"github.com/google/btree"

	"dev.c0redev.rdtp/internal/frame"
)

const btreeDegree = 8

type item struct {
	seq uint32
	f   frame.Frame
}

func (a item) Less(than btree.Item) bool {
	return a.seq < than.(item).seq
}

// Set is the Transmitter's ordered unacknowledged set. Exclusive to the
// Transmitter's single event loop; not safe for concurrent use.
type Set struct {
	tree *btree.BTree
}

// New returns an empty Set.
func New() *Set {
	return &Set{tree: btree.New(btreeDegree)}
}

// Insert records seq as sent-but-unacked, along with the wire frame that
// was sent for it (retained for retransmission).
func (s *Set) Insert(seq uint32, f frame.Frame) {
	s.tree.ReplaceOrInsert(item{seq: seq, f: f})
}

// Delete removes seq, reporting whether it was present.
func (s *Set) Delete(seq uint32) (frame.Frame, bool) {
	removed := s.tree.Delete(item{seq: seq})
	if removed == nil {
		return frame.Frame{}, false
	}
	return removed.(item).f, true
}

// Has reports whether seq is currently unacknowledged.
func (s *Set) Has(seq uint32) bool {
	return s.tree.Get(item{seq: seq}) != nil
}

// Len returns the number of currently unacknowledged seq values.
func (s *Set) Len() int {
	return s.tree.Len()
}

// Ascend visits every (seq, frame) pair in ascending seq order — which,
// given append-only insertion, is insertion order — until visit returns
// false.
func (s *Set) Ascend(visit func(seq uint32, f frame.Frame) bool) {
	s.tree.Ascend(func(it btree.Item) bool {
		i := it.(item)
		return visit(i.seq, i.f)
	})
}

// Reset discards every entry, releasing the set for reuse on the next burst.
func (s *Set) Reset() {
	s.tree = btree.New(btreeDegree)
}
