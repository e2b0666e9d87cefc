package sender

import (
	"testing"

	"github.com/stretchr/testify/require"

	"streamcore/internal/wire"
)

func TestSendQueueFIFOForNewPackets(t *testing.T) {
	q := newSendQueue()
	a := &wire.Datagram{FrameID: 0, FragID: 0}
	b := &wire.Datagram{FrameID: 0, FragID: 1}
	q.PushBack(a)
	q.PushBack(b)

	got, ok := q.PopFront()
	require.True(t, ok)
	require.Same(t, a, got)

	got, ok = q.PopFront()
	require.True(t, ok)
	require.Same(t, b, got)
}

func TestSendQueuePushFrontIsMoreUrgent(t *testing.T) {
	q := newSendQueue()
	fresh := &wire.Datagram{FrameID: 0, FragID: 0}
	rtx := &wire.Datagram{FrameID: 0, FragID: 1, NumRTX: 1}
	q.PushBack(fresh)
	q.PushFront(rtx)

	got, ok := q.PopFront()
	require.True(t, ok)
	require.Same(t, rtx, got)
}

func TestSendQueueClear(t *testing.T) {
	q := newSendQueue()
	q.PushBack(&wire.Datagram{})
	q.PushBack(&wire.Datagram{})
	q.Clear()
	require.Equal(t, 0, q.Len())
	_, ok := q.PopFront()
	require.False(t, ok)
}
