// Package codec defines the contract the core consumes from a VP9
// encoder/decoder library (spec.md §6.5). The library itself is an
// out-of-scope external collaborator (spec.md §1); this package only
// states the interface, plus a deterministic stand-in implementation
// (flatecodec.go) used where no VP9 binding is available.
package codec

import "errors"

// EncodeFlags mirrors the VPX_EFLAG_* bits the core may pass to Encode.
type EncodeFlags uint32

// ForceKeyframe requests the next encoded frame be an independently
// decodable I-frame, per spec.md §4.4 "keyframe-force recovery".
const ForceKeyframe EncodeFlags = 1 << 0

// RawFrame is one planar YUV 4:2:0 frame at a fixed resolution, the pixel
// layout VP9 and most raw video sources exchange (spec.md §1 "raw video
// source... at the resolution and pixel layout" requested).
type RawFrame struct {
	Width, Height int
	Y, U, V       []byte
}

// Packet is one compressed frame's output from a single Encode call.
type Packet struct {
	Data  []byte
	IsKey bool
}

// ErrMultiplePackets signals that an encode/decode call produced more than
// one compressed-frame packet, a fatal protocol violation per spec.md §4.4
// and §6.5 ("multiple frames in a single encode call is a fatal error").
var ErrMultiplePackets = errors.New("codec: more than one frame in a single encode/decode call")

// Encoder compresses raw frames into VP9 keyframes/interframes, one frame
// per Encode call (spec.md §6.4, §6.5).
type Encoder interface {
	// SetTargetBitrate reconfigures the target bitrate in kbps.
	SetTargetBitrate(kbps uint32)
	// Encode compresses frame frameID, forcing a keyframe if flags
	// includes ForceKeyframe. Exactly one Packet is returned per call.
	Encode(raw RawFrame, frameID uint32, flags EncodeFlags) (Packet, error)
	// Close releases the encoder context. Safe to call once.
	Close() error
}

// Decoded is one decoded raw frame, tagged with the frame id it came from
// so a display sink can log/overlay it.
type Decoded struct {
	FrameID uint32
	Frame   RawFrame
}

// Decoder decodes VP9 bitstream bytes back into raw frames (spec.md §6.4,
// §6.5). Decode yields zero or one frames; more than one is fatal.
type Decoder interface {
	Decode(frameID uint32, data []byte) (Decoded, bool, error)
	Close() error
}

// NewEncoderFunc / NewDecoderFunc let callers swap in a real VP9 binding
// without the rest of the core depending on a concrete type.
type NewEncoderFunc func(width, height int, frameRate uint16) (Encoder, error)
type NewDecoderFunc func(width, height, threads int) (Decoder, error)
