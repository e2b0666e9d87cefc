// Package unacked implements the sender-side insertion-ordered table of
// fragments that have been sent but not yet acknowledged (spec.md §3, §9
// "Insertion-ordered map"). It supports O(1) lookup by (frame_id, frag_id)
// and deterministic reverse (most-recent-first) iteration, which the
// retransmission policy in spec.md §4.4 depends on.
package unacked

import (
	"container/list"

	"streamcore/internal/wire"
)

// Table is a doubly-linked list of *wire.Datagram plus a hash index from
// SeqNum to list node, giving O(1) Get/Delete and ordered iteration.
type Table struct {
	order *list.List // list.Element.Value is *wire.Datagram
	index map[wire.SeqNum]*list.Element
}

// New returns an empty unacked table.
func New() *Table {
	return &Table{order: list.New(), index: make(map[wire.SeqNum]*list.Element)}
}

// Insert records a freshly-sent (non-retransmitted) datagram at the tail,
// preserving send order. It panics if the key already exists, mirroring
// the original's behavior of treating a duplicate insert as a bug.
func (t *Table) Insert(d *wire.Datagram) {
	seq := d.Seq()
	if _, exists := t.index[seq]; exists {
		panic("unacked: datagram already exists in table")
	}
	el := t.order.PushBack(d)
	t.index[seq] = el
}

// Get looks up a pending datagram by its key.
func (t *Table) Get(seq wire.SeqNum) (*wire.Datagram, bool) {
	el, ok := t.index[seq]
	if !ok {
		return nil, false
	}
	return el.Value.(*wire.Datagram), true
}

// Delete removes seq from the table, if present.
func (t *Table) Delete(seq wire.SeqNum) {
	el, ok := t.index[seq]
	if !ok {
		return
	}
	t.order.Remove(el)
	delete(t.index, seq)
}

// Oldest returns the earliest-inserted still-pending datagram (the head of
// send order), used by the keyframe-force check in spec.md §4.4.
func (t *Table) Oldest() (*wire.Datagram, bool) {
	el := t.order.Front()
	if el == nil {
		return nil, false
	}
	return el.Value.(*wire.Datagram), true
}

// Len reports how many fragments are currently unacknowledged.
func (t *Table) Len() int { return t.order.Len() }

// Clear empties the table (used by keyframe-force recovery, spec.md §4.4).
func (t *Table) Clear() {
	t.order.Init()
	for k := range t.index {
		delete(t.index, k)
	}
}

// WalkBackwardFrom calls fn for every entry strictly before seq in send
// order, walking from the entry one step before seq back to the oldest
// entry (spec.md §4.4 step 3). It stops early if fn returns false. seq
// itself, and anything inserted after it, are never visited. If seq is
// not present, WalkBackwardFrom does nothing.
func (t *Table) WalkBackwardFrom(seq wire.SeqNum, fn func(*wire.Datagram) bool) {
	el, ok := t.index[seq]
	if !ok {
		return
	}
	for cur := el.Prev(); cur != nil; cur = cur.Prev() {
		if !fn(cur.Value.(*wire.Datagram)) {
			return
		}
	}
}
