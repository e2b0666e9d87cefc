package reassembly

import (
	"testing"

	"github.com/stretchr/testify/require"

	"streamcore/internal/wire"
)

func dgram(frameID uint32, ft wire.FrameType, fragID, fragCnt uint16, payload string) *wire.Datagram {
	return &wire.Datagram{FrameID: frameID, FrameType: ft, FragID: fragID, FragCnt: fragCnt, Payload: []byte(payload)}
}

func TestAcceptDiscardsBelowNextFrame(t *testing.T) {
	b := NewBuffer()
	b.Accept(dgram(3, wire.FrameKey, 0, 1, "x"), 5)
	require.Equal(t, 0, b.Len())
}

func TestAcceptBuildsCompleteFrame(t *testing.T) {
	b := NewBuffer()
	b.Accept(dgram(5, wire.FrameNonKey, 1, 2, "bb"), 0)
	b.Accept(dgram(5, wire.FrameNonKey, 0, 2, "aa"), 0)

	f, ok := b.Get(5)
	require.True(t, ok)
	require.True(t, f.Complete())
	require.Equal(t, 4, f.Size())

	buf := f.Assemble(make([]byte, 0, 1024))
	require.Equal(t, "aabb", string(buf))
}

func TestAcceptDuplicateIsIdempotent(t *testing.T) {
	b1 := NewBuffer()
	d := dgram(1, wire.FrameKey, 0, 1, "payload")
	b1.Accept(d, 0)

	b2 := NewBuffer()
	b2.Accept(d, 0)
	b2.Accept(d, 0) // duplicate delivery

	f1, _ := b1.Get(1)
	f2, _ := b2.Get(1)
	require.Equal(t, f1.Complete(), f2.Complete())
	require.Equal(t, f1.Size(), f2.Size())
}

func TestInsertFragMismatchPanics(t *testing.T) {
	f := NewFrame(1, wire.FrameKey, 2)
	f.InsertFrag(dgram(1, wire.FrameKey, 0, 2, "a"))

	require.Panics(t, func() {
		f.InsertFrag(dgram(1, wire.FrameNonKey, 1, 2, "b")) // type mismatch
	})
}

func TestInsertFragOutOfRangePanics(t *testing.T) {
	f := NewFrame(1, wire.FrameKey, 2)
	require.Panics(t, func() {
		f.InsertFrag(dgram(1, wire.FrameKey, 5, 2, "b"))
	})
}

func TestHighestCompleteKeyAfterTieBreak(t *testing.T) {
	// S5/S6: next_frame_=5; frame 8 complete KEY, frame 9 complete NONKEY,
	// frame 10 complete KEY. Must pick 10, not 8.
	b := NewBuffer()
	b.Accept(dgram(8, wire.FrameKey, 0, 1, "k8"), 5)
	b.Accept(dgram(9, wire.FrameNonKey, 0, 1, "n9"), 5)
	b.Accept(dgram(10, wire.FrameKey, 0, 1, "k10"), 5)

	id, found := b.HighestCompleteKeyAfter(5)
	require.True(t, found)
	require.EqualValues(t, 10, id)
}

func TestHighestCompleteKeyAfterIgnoresIncompleteAndNonKey(t *testing.T) {
	b := NewBuffer()
	b.Accept(dgram(6, wire.FrameKey, 0, 2, "only-one-of-two"), 5) // incomplete
	b.Accept(dgram(7, wire.FrameNonKey, 0, 1, "n7"), 5)           // complete but not KEY

	_, found := b.HighestCompleteKeyAfter(5)
	require.False(t, found)
}

func TestCleanUpTo(t *testing.T) {
	b := NewBuffer()
	b.Accept(dgram(1, wire.FrameKey, 0, 1, "a"), 0)
	b.Accept(dgram(2, wire.FrameKey, 0, 1, "b"), 0)
	b.Accept(dgram(3, wire.FrameKey, 0, 1, "c"), 0)

	b.CleanUpTo(3)
	require.Equal(t, 1, b.Len())
	_, ok := b.Get(3)
	require.True(t, ok)
}

func TestAssembleOversizedFramePanics(t *testing.T) {
	f := NewFrame(1, wire.FrameKey, 1)
	f.InsertFrag(dgram(1, wire.FrameKey, 0, 1, "0123456789"))
	require.Panics(t, func() {
		f.Assemble(make([]byte, 0, 4))
	})
}

func TestAssembleBeforeCompletePanics(t *testing.T) {
	f := NewFrame(1, wire.FrameKey, 2)
	f.InsertFrag(dgram(1, wire.FrameKey, 0, 2, "a"))
	require.Panics(t, func() {
		f.Assemble(make([]byte, 0, 1024))
	})
}
