// Package reassembly implements the receiver-side per-frame fragment
// reassembly buffer (spec.md §3, §4.2) and the frame-buffer map keyed by
// frame id that the receiver engine consumes in order (spec.md §4.3).
package reassembly

import (
	"fmt"

	"streamcore/internal/wire"
)

// Frame accumulates fragments for one frame id until complete.
type Frame struct {
	ID      uint32
	Type    wire.FrameType
	frags   []*wire.Datagram
	missing int
	size    int
}

// NewFrame allocates a Frame record for fragCnt fragments. fragCnt must be
// >= 1 (spec.md §3: len(fragments)==frag_cnt>0).
func NewFrame(id uint32, ft wire.FrameType, fragCnt uint16) *Frame {
	if fragCnt == 0 {
		panic(fmt.Errorf("%w: frame %d created with frag_cnt=0", wire.ErrProtocol, id))
	}
	return &Frame{ID: id, Type: ft, frags: make([]*wire.Datagram, fragCnt), missing: int(fragCnt)}
}

// HasFrag reports whether fragID's slot is filled.
func (f *Frame) HasFrag(fragID uint16) bool {
	return int(fragID) < len(f.frags) && f.frags[fragID] != nil
}

// Complete reports whether every fragment slot is filled.
func (f *Frame) Complete() bool { return f.missing == 0 }

// Size returns the total payload size; only meaningful once Complete.
func (f *Frame) Size() int { return f.size }

// FragCnt returns the configured fragment count for this frame.
func (f *Frame) FragCnt() int { return len(f.frags) }

// validate checks that d is consistent with this record, per spec.md §4.2.
// A mismatch is a fatal protocol violation: the open question in spec.md
// §9 is resolved here in favor of treating it as fatal, matching the
// original's validate_datagram, which raises rather than drops.
func (f *Frame) validate(d *wire.Datagram) error {
	if d.FrameID != f.ID || d.FrameType != f.Type || int(d.FragCnt) != len(f.frags) {
		return fmt.Errorf("%w: datagram (frame=%d type=%v frag_cnt=%d) incompatible with frame record (frame=%d type=%v frag_cnt=%d)",
			wire.ErrProtocol, d.FrameID, d.FrameType, d.FragCnt, f.ID, f.Type, len(f.frags))
	}
	if int(d.FragID) >= len(f.frags) {
		return fmt.Errorf("%w: frag_id %d out of range [0,%d)", wire.ErrProtocol, d.FragID, len(f.frags))
	}
	return nil
}

// InsertFrag validates and stores d's fragment, ignoring an already-filled
// slot as a duplicate (spec.md §4.2 insert()). It panics on a protocol
// violation, per spec.md §7 (fatal, terminates the peer).
func (f *Frame) InsertFrag(d *wire.Datagram) {
	if err := f.validate(d); err != nil {
		panic(err)
	}
	if f.frags[d.FragID] != nil {
		return // duplicate, silently ignored
	}
	f.frags[d.FragID] = d
	f.missing--
	f.size += len(d.Payload)
}

// Assemble concatenates fragments in ascending frag_id order into dst,
// reusing the caller's scratch buffer (spec.md §4.2 "Assembly for
// decode"). It panics if the assembled frame would not fit, so the
// caller can reject an oversized frame as the spec requires, and if
// called before the frame is complete.
func (f *Frame) Assemble(dst []byte) []byte {
	if !f.Complete() {
		panic(fmt.Errorf("%w: frame %d assembled before complete", wire.ErrProtocol, f.ID))
	}
	if f.size > cap(dst) {
		panic(fmt.Errorf("%w: frame %d assembled size %d exceeds scratch buffer capacity %d", wire.ErrProtocol, f.ID, f.size, cap(dst)))
	}
	buf := dst[:0]
	for _, frag := range f.frags {
		buf = append(buf, frag.Payload...)
	}
	return buf
}

// Buffer maps frame id -> Frame for ids at or above the next id the
// consumer has not yet processed (spec.md §3 "Frame buffer").
type Buffer struct {
	frames map[uint32]*Frame
}

// NewBuffer creates an empty frame buffer.
func NewBuffer() *Buffer {
	return &Buffer{frames: make(map[uint32]*Frame)}
}

// Accept ingests one datagram, creating a Frame record on first sight of a
// frame id and discarding datagrams for ids already consumed (spec.md
// §4.2 accept()). nextFrame is the consumer's current frontier.
func (b *Buffer) Accept(d *wire.Datagram, nextFrame uint32) {
	if d.FrameID < nextFrame {
		return // already consumed or skipped past; discard silently
	}
	f, ok := b.frames[d.FrameID]
	if !ok {
		f = NewFrame(d.FrameID, d.FrameType, d.FragCnt)
		b.frames[d.FrameID] = f
	}
	f.InsertFrag(d)
}

// Get returns the Frame record for id, if any.
func (b *Buffer) Get(id uint32) (*Frame, bool) {
	f, ok := b.frames[id]
	return f, ok
}

// HighestCompleteKeyAfter scans the buffer for completed keyframes with id
// strictly greater than after, returning the one with the largest id
// (spec.md §4.3 step 2, and the S6 tie-break: always the highest id, not
// the first one found).
func (b *Buffer) HighestCompleteKeyAfter(after uint32) (uint32, bool) {
	var best uint32
	found := false
	for id, f := range b.frames {
		if id <= after {
			continue
		}
		if f.Type != wire.FrameKey || !f.Complete() {
			continue
		}
		if !found || id > best {
			best = id
			found = true
		}
	}
	return best, found
}

// CleanUpTo removes every entry with id < frontier (spec.md §4.3 step c).
func (b *Buffer) CleanUpTo(frontier uint32) {
	for id := range b.frames {
		if id < frontier {
			delete(b.frames, id)
		}
	}
}

// Len reports how many frame ids currently have a record (test/inspection helper).
func (b *Buffer) Len() int { return len(b.frames) }
