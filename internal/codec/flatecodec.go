package codec

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// flateEncoder and flateDecoder are a deterministic stand-in for a VP9
// codec library (out of scope per spec.md §1; no VP9 Go binding exists in
// the retrieved pack). They implement the Encoder/Decoder contract above
// using stdlib compress/flate, which this package uses instead of a
// third-party compressor because the codec itself is explicitly out of
// the core's scope: nothing downstream cares which bytes a compressed
// frame contains, only that Encoder/Decoder satisfy the stated contract
// (one packet per call, IsKey semantics, deterministic round-trip) so the
// rest of the core is exercised end to end.
//
// Keyframe policy mirrors the original VP9 configuration this was
// modeled on (spec.md's ringmaster original disables the encoder's
// automatic keyframe placement): only frame 0 and a forced frame are
// KEY; every other frame is NONKEY. A real VP9 encoder would additionally
// exploit temporal prediction between NONKEY frames; this stand-in does
// not, since nothing in the core inspects frame *content*, only frame
// *metadata* (id, type, size).
type flateEncoder struct {
	width, height int
	bitrateKbps   uint32
	level         int
}

// NewFlateEncoder constructs the stand-in encoder.
func NewFlateEncoder(width, height int, frameRate uint16) (Encoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("codec: invalid dimensions %dx%d", width, height)
	}
	return &flateEncoder{width: width, height: height, level: flate.DefaultCompression}, nil
}

func (e *flateEncoder) SetTargetBitrate(kbps uint32) {
	e.bitrateKbps = kbps
	// Cruder bitrates ask for cruder (faster, less thorough) compression;
	// this has no bearing on correctness, only on stand-in frame sizes.
	switch {
	case kbps == 0:
		e.level = flate.DefaultCompression
	case kbps < 500:
		e.level = flate.BestSpeed
	default:
		e.level = flate.BestCompression
	}
}

func (e *flateEncoder) Encode(raw RawFrame, frameID uint32, flags EncodeFlags) (Packet, error) {
	if raw.Width != e.width || raw.Height != e.height {
		return Packet{}, fmt.Errorf("codec: frame %dx%d does not match encoder %dx%d", raw.Width, raw.Height, e.width, e.height)
	}
	isKey := frameID == 0 || flags&ForceKeyframe != 0

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, e.level)
	if err != nil {
		return Packet{}, err
	}
	for _, plane := range [][]byte{raw.Y, raw.U, raw.V} {
		if _, err := w.Write(plane); err != nil {
			return Packet{}, err
		}
	}
	if err := w.Close(); err != nil {
		return Packet{}, err
	}
	return Packet{Data: buf.Bytes(), IsKey: isKey}, nil
}

func (e *flateEncoder) Close() error { return nil }

type flateDecoder struct {
	width, height, threads int
}

// NewFlateDecoder constructs the stand-in decoder.
func NewFlateDecoder(width, height, threads int) (Decoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("codec: invalid dimensions %dx%d", width, height)
	}
	if threads <= 0 {
		threads = 1
	}
	return &flateDecoder{width: width, height: height, threads: threads}, nil
}

func (d *flateDecoder) Decode(frameID uint32, data []byte) (Decoded, bool, error) {
	if len(data) == 0 {
		return Decoded{}, false, nil
	}
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	ySize := d.width * d.height
	cSize := (d.width / 2) * (d.height / 2)
	raw := make([]byte, ySize+2*cSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Decoded{}, false, fmt.Errorf("codec: decode frame %d: %w", frameID, err)
	}

	return Decoded{
		FrameID: frameID,
		Frame: RawFrame{
			Width:  d.width,
			Height: d.height,
			Y:      raw[:ySize],
			U:      raw[ySize : ySize+cSize],
			V:      raw[ySize+cSize:],
		},
	}, true, nil
}

func (d *flateDecoder) Close() error { return nil }
