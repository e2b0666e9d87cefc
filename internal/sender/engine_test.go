package sender

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"streamcore/internal/codec"
	"streamcore/internal/wire"
)

// fakeSocket is an in-memory Socket: writes land in sent, reads are
// served from a preloaded queue of control messages.
type fakeSocket struct {
	sent   [][]byte
	toRead [][]byte
}

func (f *fakeSocket) TryWrite(buf []byte) (int, error) {
	cp := append([]byte(nil), buf...)
	f.sent = append(f.sent, cp)
	return len(buf), nil
}

func (f *fakeSocket) TryRead(buf []byte) (int, net.Addr, error) {
	if len(f.toRead) == 0 {
		return 0, nil, errWouldBlockForTest
	}
	next := f.toRead[0]
	f.toRead = f.toRead[1:]
	n := copy(buf, next)
	return n, nil, nil
}

// errWouldBlockForTest stands in for netudp.ErrWouldBlock without
// importing the real socket package's syscall-dependent internals.
var errWouldBlockForTest = errWouldBlockSentinel{}

type errWouldBlockSentinel struct{}

func (errWouldBlockSentinel) Error() string { return "would block" }

func newTestEngine(t *testing.T) (*Engine, *fakeSocket, *int) {
	t.Helper()
	sock := &fakeSocket{}
	enc, err := codec.NewFlateEncoder(4, 4, 30)
	require.NoError(t, err)

	clock := 1000
	src := &stubSource{}
	e, err := New(sock, enc, src, 1500, 30, 0, nil)
	require.NoError(t, err)
	e.now = func() uint64 { return uint64(clock) }
	return e, sock, &clock
}

type stubSource struct{}

func (s *stubSource) NextFrame() (codec.RawFrame, error) {
	y := make([]byte, 16)
	u := make([]byte, 4)
	v := make([]byte, 4)
	return codec.RawFrame{Width: 4, Height: 4, Y: y, U: u, V: v}, nil
}

// TestACKBackwardWalkRetransmitsEarlierFragments reproduces S2: four
// fragments of frame 0 are in flight; an ACK arrives for fragment 3. The
// walk visits fragments 2, 1, 0 in that (back-to-front) order, each one
// pushed to the front of the queue as it is retransmitted — so the
// earliest-visited fragment (2) is displaced to the back and the
// last-visited fragment (0) ends up frontmost.
func TestACKBackwardWalkRetransmitsEarlierFragments(t *testing.T) {
	e, _, clock := newTestEngine(t)

	for frag := 0; frag < 4; frag++ {
		d := &wire.Datagram{FrameID: 0, FragID: uint16(frag), FragCnt: 4, SendTS: uint64(*clock), LastSendTS: uint64(*clock)}
		e.unacked.Insert(d)
	}

	*clock = 2000
	ack := wire.Ack{FrameID: 0, FragID: 3, SendTS: 1000}
	e.onAck(ack)

	var order []uint16
	for {
		d, ok := e.queue.PopFront()
		if !ok {
			break
		}
		order = append(order, d.FragID)
		require.Equal(t, 1, d.NumRTX)
	}
	require.Equal(t, []uint16{0, 1, 2}, order)

	_, stillUnacked := e.unacked.Get(wire.SeqNum{FrameID: 0, FragID: 3})
	require.False(t, stillUnacked)
}

// TestRetransmissionCapEnforced reproduces S3: a fragment already
// retransmitted MAX_NUM_RTX times is never retransmitted again.
func TestRetransmissionCapEnforced(t *testing.T) {
	e, _, clock := newTestEngine(t)

	capped := &wire.Datagram{FrameID: 0, FragID: 0, FragCnt: 2, SendTS: 100, LastSendTS: 100, NumRTX: wire.MaxNumRTX}
	e.unacked.Insert(capped)
	other := &wire.Datagram{FrameID: 0, FragID: 1, FragCnt: 2, SendTS: 100, LastSendTS: 100}
	e.unacked.Insert(other)

	*clock = 50_000_000
	e.onAck(wire.Ack{FrameID: 0, FragID: 1, SendTS: 100})

	d, ok := e.queue.PopFront()
	require.False(t, ok, "capped fragment must never be retransmitted again, got %+v", d)
}

// TestKeyframeForceRecoveryClearsState reproduces S4: an unacked
// fragment older than MaxUnackedUS forces a keyframe and clears state.
func TestKeyframeForceRecoveryClearsState(t *testing.T) {
	e, _, clock := newTestEngine(t)

	old := &wire.Datagram{FrameID: 0, FragID: 0, FragCnt: 1, SendTS: 0}
	e.unacked.Insert(old)
	e.queue.PushBack(&wire.Datagram{FrameID: 1, FragID: 0, FragCnt: 1})

	*clock = MaxUnackedUS + 1
	require.True(t, e.keyframeForceDue())

	e.forceKeyframeRecovery()
	require.Equal(t, 0, e.unacked.Len())
	require.Equal(t, 0, e.queue.Len())
}

// TestPacketizeUsesExactFragCountFormula pins spec.md's fragment-count
// arithmetic rather than ceiling division.
func TestPacketizeUsesExactFragCountFormula(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.maxPayload = 10

	e.packetize(make([]byte, 21), wire.FrameKey)
	require.Equal(t, wire.FragCount(21, 10), e.queue.Len())
}
