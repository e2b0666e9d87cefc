package wire

import "encoding/binary"

// MsgType tags a control message (spec.md §3).
type MsgType uint8

const (
	MsgInvalid MsgType = 0
	MsgAck     MsgType = 1
	MsgConfig  MsgType = 2
)

// Ack acknowledges receipt of a single fragment. SendTS echoes the value
// from the datagram being acknowledged, letting the sender compute an RTT
// sample on arrival.
type Ack struct {
	FrameID uint32
	FragID  uint16
	SendTS  uint64
}

const ackBodySize = 4 + 2 + 8

// Marshal serializes the ACK: tag(1) frame_id(4) frag_id(2) send_ts(8).
func (a Ack) Marshal() []byte {
	buf := make([]byte, 1+ackBodySize)
	buf[0] = byte(MsgAck)
	binary.BigEndian.PutUint32(buf[1:5], a.FrameID)
	binary.BigEndian.PutUint16(buf[5:7], a.FragID)
	binary.BigEndian.PutUint64(buf[7:15], a.SendTS)
	return buf
}

// Config is sent by the receiver exactly once at session start to request
// a resolution, frame rate, and target bitrate from the sender.
type Config struct {
	Width         uint16
	Height        uint16
	FrameRate     uint16
	TargetBitrate uint32
}

const configBodySize = 2 + 2 + 2 + 4

// Marshal serializes the CONFIG message: tag(1) width(2) height(2)
// frame_rate(2) target_bitrate(4).
func (c Config) Marshal() []byte {
	buf := make([]byte, 1+configBodySize)
	buf[0] = byte(MsgConfig)
	binary.BigEndian.PutUint16(buf[1:3], c.Width)
	binary.BigEndian.PutUint16(buf[3:5], c.Height)
	binary.BigEndian.PutUint16(buf[5:7], c.FrameRate)
	binary.BigEndian.PutUint32(buf[7:11], c.TargetBitrate)
	return buf
}

// Msg is the parsed result of ParseControl: exactly one of Ack or Config
// is valid, selected by Type.
type Msg struct {
	Type   MsgType
	Ack    Ack
	Config Config
}

// ParseControl parses a tagged control message. A buffer with no tag byte,
// or an unrecognized tag, or a truncated body, yields (Msg{}, false) so
// callers simply ignore it (spec.md §4.1) rather than treat it as fatal:
// unrecognized control traffic is not a protocol violation on its own,
// since datagrams and control messages share one UDP flow and a caller
// distinguishes them by trying both parsers.
func ParseControl(b []byte) (Msg, bool) {
	if len(b) < 1 {
		return Msg{}, false
	}
	switch MsgType(b[0]) {
	case MsgAck:
		if len(b) < 1+ackBodySize {
			return Msg{}, false
		}
		return Msg{
			Type: MsgAck,
			Ack: Ack{
				FrameID: binary.BigEndian.Uint32(b[1:5]),
				FragID:  binary.BigEndian.Uint16(b[5:7]),
				SendTS:  binary.BigEndian.Uint64(b[7:15]),
			},
		}, true
	case MsgConfig:
		if len(b) < 1+configBodySize {
			return Msg{}, false
		}
		return Msg{
			Type: MsgConfig,
			Config: Config{
				Width:         binary.BigEndian.Uint16(b[1:3]),
				Height:        binary.BigEndian.Uint16(b[3:5]),
				FrameRate:     binary.BigEndian.Uint16(b[5:7]),
				TargetBitrate: binary.BigEndian.Uint32(b[7:11]),
			},
		}, true
	default:
		return Msg{}, false
	}
}
