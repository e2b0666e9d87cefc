// Package display implements the decoded-frame sink the receiver hands
// finished frames to (spec.md §1 "display/playback sink", §4.6). The
// sink itself is an out-of-scope external collaborator per the spec;
// this package supplies a reference stand-in that snapshots each decoded
// frame to a JPEG file with a debug overlay, adapted from the teacher's
// addLabel/slideshow renderer.
package display

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"streamcore/internal/codec"
)

// Sink consumes decoded frames. A real display implementation would
// blit to a window or framebuffer; Snapshot below writes the most recent
// frame to disk instead, which is enough to exercise the receiver's
// decode-to-display path end to end.
type Sink interface {
	Show(decoded codec.Decoded) error
	Close() error
}

// Snapshot writes each decoded frame as a JPEG to dir/frame-<id>.jpg,
// keeping only the most recently written file so repeated runs don't
// fill the disk (the teacher's slideshow instead cycles a fixed image
// set; here there is exactly one "current" frame to show at a time).
type Snapshot struct {
	dir     string
	quality int
	debug   bool
	lastOut string
}

// NewSnapshot constructs a Sink that writes JPEG snapshots under dir.
// debug overlays the frame id and byte size (spec.md §6.6 style debug
// info), grounded on the teacher's timestamp overlay.
func NewSnapshot(dir string, debug bool) (*Snapshot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("display: create %s: %w", dir, err)
	}
	return &Snapshot{dir: dir, quality: 85, debug: debug}, nil
}

// Show renders one decoded I420 frame to an RGBA image and writes it.
func (s *Snapshot) Show(d codec.Decoded) error {
	img := i420ToRGBA(d.Frame)
	if s.debug {
		addLabel(img, 8, img.Bounds().Dy()-8, fmt.Sprintf("frame %d (%d bytes)", d.FrameID, len(d.Frame.Y)+2*len(d.Frame.U)))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return fmt.Errorf("display: encode frame %d: %w", d.FrameID, err)
	}

	out := filepath.Join(s.dir, fmt.Sprintf("frame-%d.jpg", d.FrameID))
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("display: write %s: %w", out, err)
	}
	if s.lastOut != "" && s.lastOut != out {
		os.Remove(s.lastOut)
	}
	s.lastOut = out
	return nil
}

// Close is a no-op; snapshots are flushed synchronously by Show.
func (s *Snapshot) Close() error { return nil }

// i420ToRGBA converts a planar YUV 4:2:0 frame to RGBA using the BT.601
// full-range conversion, the same coefficients libvpx uses for I420.
func i420ToRGBA(f codec.RawFrame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	cw := f.Width / 2
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			yy := int(f.Y[y*f.Width+x])
			cu := int(f.U[(y/2)*cw+(x/2)]) - 128
			cv := int(f.V[(y/2)*cw+(x/2)]) - 128

			r := clamp8(yy + (91881*cv)>>16)
			g := clamp8(yy - (22554*cu+46802*cv)>>16)
			b := clamp8(yy + (116130*cu)>>16)

			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func addLabel(img *image.RGBA, x, y int, label string) {
	col := color.RGBA{255, 255, 255, 255}
	d := &xfont.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(label)
}
