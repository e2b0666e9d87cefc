package receiver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamcore/internal/codec"
)

// fakeDecoder records the order and payload of every Decode call.
type fakeDecoder struct {
	mu    sync.Mutex
	calls []codec.Decoded
}

func (d *fakeDecoder) Decode(frameID uint32, data []byte) (codec.Decoded, bool, error) {
	decoded := codec.Decoded{FrameID: frameID, Frame: codec.RawFrame{Y: data}}
	d.mu.Lock()
	d.calls = append(d.calls, decoded)
	d.mu.Unlock()
	return decoded, true, nil
}

func (d *fakeDecoder) Close() error { return nil }

func (d *fakeDecoder) snapshot() []codec.Decoded {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]codec.Decoded(nil), d.calls...)
}

// fakeSink records every frame shown, in order.
type fakeSink struct {
	mu     sync.Mutex
	shown  []uint32
	closed bool
}

func (s *fakeSink) Show(d codec.Decoded) error {
	s.mu.Lock()
	s.shown = append(s.shown, d.FrameID)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSink) snapshot() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.shown...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// TestWorkerPreservesSubmitOrder pins spec.md §4.7's ordering guarantee:
// frames are decoded and displayed in the order Submit was called, even
// though the shared queue is drained under a lock into a private queue.
func TestWorkerPreservesSubmitOrder(t *testing.T) {
	dec := &fakeDecoder{}
	sink := &fakeSink{}
	w := NewWorker(dec, sink, nil)
	w.Start()

	for i := uint32(0); i < 5; i++ {
		w.Submit(Job{FrameID: i, Data: []byte{byte(i)}})
	}

	waitFor(t, func() bool { return len(sink.snapshot()) == 5 })
	w.Stop()

	require.Equal(t, []uint32{0, 1, 2, 3, 4}, sink.snapshot())

	var decodedIDs []uint32
	for _, d := range dec.snapshot() {
		decodedIDs = append(decodedIDs, d.FrameID)
	}
	require.Equal(t, []uint32{0, 1, 2, 3, 4}, decodedIDs)
}

// TestWorkerDecodeOnlySkipsDisplay pins lazy level 1: a nil display sink
// must never be invoked, and Close must not panic on shutdown.
func TestWorkerDecodeOnlySkipsDisplay(t *testing.T) {
	dec := &fakeDecoder{}
	w := NewWorker(dec, nil, nil)
	w.Start()

	w.Submit(Job{FrameID: 42, Data: []byte("x")})
	waitFor(t, func() bool { return len(dec.snapshot()) == 1 })

	w.Stop()
	require.Equal(t, uint32(42), dec.snapshot()[0].FrameID)
}

// TestWorkerStopDrainsPendingJobs ensures jobs submitted just before Stop
// is observed are still decoded/displayed before the worker exits.
func TestWorkerStopDrainsPendingJobs(t *testing.T) {
	dec := &fakeDecoder{}
	sink := &fakeSink{}
	w := NewWorker(dec, sink, nil)
	w.Start()

	for i := uint32(0); i < 3; i++ {
		w.Submit(Job{FrameID: i})
	}
	w.Stop()

	require.Equal(t, []uint32{0, 1, 2}, sink.snapshot())
	require.True(t, sink.closed)
}
