package unacked

import (
	"testing"

	"github.com/stretchr/testify/require"

	"streamcore/internal/wire"
)

func mk(frameID uint32, fragID uint16) *wire.Datagram {
	return &wire.Datagram{FrameID: frameID, FragID: fragID}
}

func TestInsertGetDelete(t *testing.T) {
	tbl := New()
	d := mk(1, 0)
	tbl.Insert(d)

	got, ok := tbl.Get(wire.SeqNum{FrameID: 1, FragID: 0})
	require.True(t, ok)
	require.Same(t, d, got)

	tbl.Delete(wire.SeqNum{FrameID: 1, FragID: 0})
	_, ok = tbl.Get(wire.SeqNum{FrameID: 1, FragID: 0})
	require.False(t, ok)
	require.Equal(t, 0, tbl.Len())
}

func TestInsertDuplicatePanics(t *testing.T) {
	tbl := New()
	tbl.Insert(mk(1, 0))
	require.Panics(t, func() { tbl.Insert(mk(1, 0)) })
}

func TestOldestIsEarliestInsert(t *testing.T) {
	tbl := New()
	tbl.Insert(mk(0, 0))
	tbl.Insert(mk(0, 1))
	tbl.Insert(mk(0, 2))

	oldest, ok := tbl.Oldest()
	require.True(t, ok)
	require.EqualValues(t, 0, oldest.FragID)
}

func TestClear(t *testing.T) {
	tbl := New()
	tbl.Insert(mk(0, 0))
	tbl.Insert(mk(0, 1))
	tbl.Clear()
	require.Equal(t, 0, tbl.Len())
	_, ok := tbl.Oldest()
	require.False(t, ok)
}

// TestWalkBackwardFromS2 reproduces spec.md scenario S2: a 4-fragment
// frame (0,0)..(0,3), fragments 0 and 2 dropped, ACK arrives for (0,3).
// Walking backward from (0,3) must visit (0,2), then (0,1), then (0,0),
// in that order.
func TestWalkBackwardFromS2(t *testing.T) {
	tbl := New()
	for i := uint16(0); i < 4; i++ {
		tbl.Insert(mk(0, i))
	}

	var visited []uint16
	tbl.WalkBackwardFrom(wire.SeqNum{FrameID: 0, FragID: 3}, func(d *wire.Datagram) bool {
		visited = append(visited, d.FragID)
		return true
	})
	require.Equal(t, []uint16{2, 1, 0}, visited)
}

func TestWalkBackwardFromMissingSeqIsNoop(t *testing.T) {
	tbl := New()
	tbl.Insert(mk(0, 0))
	called := false
	tbl.WalkBackwardFrom(wire.SeqNum{FrameID: 9, FragID: 9}, func(d *wire.Datagram) bool {
		called = true
		return true
	})
	require.False(t, called)
}

func TestWalkBackwardFromStopsEarly(t *testing.T) {
	tbl := New()
	for i := uint16(0); i < 4; i++ {
		tbl.Insert(mk(0, i))
	}
	var visited []uint16
	tbl.WalkBackwardFrom(wire.SeqNum{FrameID: 0, FragID: 3}, func(d *wire.Datagram) bool {
		visited = append(visited, d.FragID)
		return d.FragID != 2 // stop after visiting fragment 2
	})
	require.Equal(t, []uint16{2}, visited)
}

func TestOrderIsInsertionOrderAfterLookups(t *testing.T) {
	// Retransmissions don't re-Insert into the table (spec.md: the record
	// already exists); confirm iteration order is unaffected by repeated
	// Get() calls, i.e. order is purely insertion order.
	tbl := New()
	tbl.Insert(mk(0, 0))
	tbl.Insert(mk(0, 1))
	_, _ = tbl.Get(wire.SeqNum{FrameID: 0, FragID: 1})
	_, _ = tbl.Get(wire.SeqNum{FrameID: 0, FragID: 0})

	oldest, _ := tbl.Oldest()
	require.EqualValues(t, 0, oldest.FragID)
}
