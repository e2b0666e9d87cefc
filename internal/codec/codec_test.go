package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, fill byte) RawFrame {
	y := make([]byte, w*h)
	u := make([]byte, (w/2)*(h/2))
	v := make([]byte, (w/2)*(h/2))
	for i := range y {
		y[i] = fill
	}
	return RawFrame{Width: w, Height: h, Y: y, U: u, V: v}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewFlateEncoder(16, 16, 30)
	require.NoError(t, err)
	defer enc.Close()

	raw := solidFrame(16, 16, 0x42)
	pkt, err := enc.Encode(raw, 0, 0)
	require.NoError(t, err)
	require.True(t, pkt.IsKey, "frame 0 must always be a keyframe")
	require.NotEmpty(t, pkt.Data)

	dec, err := NewFlateDecoder(16, 16, 2)
	require.NoError(t, err)
	defer dec.Close()

	out, ok, err := dec.Decode(0, pkt.Data)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, raw.Y, out.Frame.Y)
	require.Equal(t, raw.U, out.Frame.U)
	require.Equal(t, raw.V, out.Frame.V)
}

func TestNonZeroFrameIsNonKeyUnlessForced(t *testing.T) {
	enc, _ := NewFlateEncoder(8, 8, 30)
	raw := solidFrame(8, 8, 1)

	pkt, err := enc.Encode(raw, 1, 0)
	require.NoError(t, err)
	require.False(t, pkt.IsKey)

	pkt, err = enc.Encode(raw, 1, ForceKeyframe)
	require.NoError(t, err)
	require.True(t, pkt.IsKey)
}

func TestEncodeRejectsDimensionMismatch(t *testing.T) {
	enc, _ := NewFlateEncoder(8, 8, 30)
	_, err := enc.Encode(solidFrame(16, 16, 0), 0, 0)
	require.Error(t, err)
}

func TestDecodeEmptyYieldsNoFrame(t *testing.T) {
	dec, _ := NewFlateDecoder(8, 8, 1)
	_, ok, err := dec.Decode(0, nil)
	require.NoError(t, err)
	require.False(t, ok)
}
