// Package wire implements the fixed-layout, big-endian wire codec shared by
// the sender and receiver: datagrams (fragments of a compressed frame) and
// control messages (ACK, CONFIG).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameType distinguishes whether a fragment's frame decodes independently.
type FrameType uint8

const (
	FrameUnknown FrameType = 0
	FrameKey     FrameType = 1
	FrameNonKey  FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameKey:
		return "KEY"
	case FrameNonKey:
		return "NONKEY"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the fixed size, in bytes, of a Datagram's wire header:
// frame_id(4) + frame_type(1) + frag_id(2) + frag_cnt(2) + send_ts(8).
const HeaderSize = 4 + 1 + 2 + 2 + 8

// ipUDPOverhead is the assumed IPv4+UDP header size subtracted from the MTU
// when computing the max payload a fragment may carry.
const ipUDPOverhead = 28

// MinMTU and MaxMTU bound the configurable MTU (spec.md §4.1).
const (
	MinMTU = 512
	MaxMTU = 1500
)

// MaxNumRTX bounds how many times a single fragment may be retransmitted
// (spec.md §3, §4.4).
const MaxNumRTX = 3

// ErrProtocol marks a violation that must terminate the peer (spec.md §7).
var ErrProtocol = errors.New("wire: protocol violation")

// MaxPayload returns the maximum fragment payload size for the given MTU.
// mtu must already have been validated by ValidateMTU.
func MaxPayload(mtu int) int {
	return mtu - ipUDPOverhead - HeaderSize
}

// ValidateMTU rejects an MTU outside [MinMTU, MaxMTU] as a configuration error.
func ValidateMTU(mtu int) error {
	if mtu < MinMTU || mtu > MaxMTU {
		return fmt.Errorf("wire: MTU %d out of range [%d, %d]", mtu, MinMTU, MaxMTU)
	}
	return nil
}

// Datagram is one fragment of a compressed frame, plus sender-side
// retransmission bookkeeping that never travels on the wire.
type Datagram struct {
	FrameID   uint32
	FrameType FrameType
	FragID    uint16
	FragCnt   uint16
	SendTS    uint64 // microseconds since epoch
	Payload   []byte

	// Sender-only transient fields (spec.md §3); zero value on the receiver.
	// FirstSendTS is stamped once, on the fragment's first transmission,
	// and never touched again by a retransmit; it is what the
	// keyframe-force recovery timer measures against (spec.md §4.4, §9:
	// recovery is bounded from the first send, not the most recent one).
	NumRTX      int
	LastSendTS  uint64
	FirstSendTS uint64
}

// SeqNum identifies a fragment within the unacked table and frame buffer.
type SeqNum struct {
	FrameID uint32
	FragID  uint16
}

// Seq returns the datagram's (frame_id, frag_id) key.
func (d *Datagram) Seq() SeqNum { return SeqNum{d.FrameID, d.FragID} }

// FragCount computes frag_cnt from a compressed frame's size and the
// configured max payload, per spec.md's exact formula (integer division):
// frag_cnt = size / (max_payload + 1) + 1. This yields 1 for size == 0 and
// for size <= max_payload; it is NOT ceiling division and must not be
// replaced by one.
func FragCount(size, maxPayload int) int {
	return size/(maxPayload+1) + 1
}

// Marshal serializes the datagram's header and payload per spec.md §4.1:
// frame_id(4) frame_type(1) frag_id(2) frag_cnt(2) send_ts(8) payload.
func (d *Datagram) Marshal() []byte {
	buf := make([]byte, HeaderSize+len(d.Payload))
	binary.BigEndian.PutUint32(buf[0:4], d.FrameID)
	buf[4] = byte(d.FrameType)
	binary.BigEndian.PutUint16(buf[5:7], d.FragID)
	binary.BigEndian.PutUint16(buf[7:9], d.FragCnt)
	binary.BigEndian.PutUint64(buf[9:17], d.SendTS)
	copy(buf[HeaderSize:], d.Payload)
	return buf
}

// ParseDatagram parses a wire-format datagram. A buffer shorter than
// HeaderSize is rejected (spec.md §4.1); the payload is whatever bytes
// follow the header, copied so the caller may reuse its receive buffer.
func ParseDatagram(b []byte) (Datagram, bool) {
	if len(b) < HeaderSize {
		return Datagram{}, false
	}
	var d Datagram
	d.FrameID = binary.BigEndian.Uint32(b[0:4])
	d.FrameType = FrameType(b[4])
	d.FragID = binary.BigEndian.Uint16(b[5:7])
	d.FragCnt = binary.BigEndian.Uint16(b[7:9])
	d.SendTS = binary.BigEndian.Uint64(b[9:17])
	d.Payload = append([]byte(nil), b[HeaderSize:]...)
	return d, true
}
