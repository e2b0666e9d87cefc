// Package source implements the raw video source the sender reads from:
// a YUV4MPEG2 file, exposed as a lazy sequence of I420 frames at a fixed
// resolution (spec.md §1 "raw video source", §6.3). The source is an
// out-of-scope external collaborator per the spec; this package supplies
// the minimal reference implementation the sender CLI needs to run.
package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"streamcore/internal/codec"
)

// Y4M reads frames from a YUV4MPEG2 stream, looping back to the first
// frame once the file is exhausted (spec.md §6.3: "if it ends, the source
// wraps to the beginning").
type Y4M struct {
	f             *os.File
	r             *bufio.Reader
	width, height int
	frameSize     int
	firstFrameOff int64
}

// Open parses a YUV4MPEG2 header and validates it against the expected
// resolution, returning a configuration error on mismatch (spec.md §7).
func Open(path string, wantWidth, wantHeight int) (*Y4M, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	r := bufio.NewReader(f)

	header, err := r.ReadString('\n')
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: read y4m header: %w", err)
	}
	width, height, err := parseHeader(header)
	if err != nil {
		f.Close()
		return nil, err
	}
	if width != wantWidth || height != wantHeight {
		f.Close()
		return nil, fmt.Errorf("source: y4m resolution %dx%d does not match configured %dx%d", width, height, wantWidth, wantHeight)
	}

	// bufio may have read ahead past the header line; the true offset of
	// the first FRAME marker is simply the header's own byte length, since
	// nothing precedes it in the file.
	firstFrameOff := int64(len(header))

	ySize := width * height
	cSize := (width / 2) * (height / 2)
	return &Y4M{
		f:             f,
		r:             r,
		width:         width,
		height:        height,
		frameSize:     ySize + 2*cSize,
		firstFrameOff: firstFrameOff,
	}, nil
}

// parseHeader parses "YUV4MPEG2 W<width> H<height> ...\n", tolerating any
// order and any additional parameters this reader does not need.
func parseHeader(line string) (width, height int, err error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 || fields[0] != "YUV4MPEG2" {
		return 0, 0, fmt.Errorf("source: not a YUV4MPEG2 stream")
	}
	for _, tok := range fields[1:] {
		if len(tok) < 2 {
			continue
		}
		val := tok[1:]
		switch tok[0] {
		case 'W':
			width, err = strconv.Atoi(val)
			if err != nil {
				return 0, 0, fmt.Errorf("source: bad width field %q", tok)
			}
		case 'H':
			height, err = strconv.Atoi(val)
			if err != nil {
				return 0, 0, fmt.Errorf("source: bad height field %q", tok)
			}
		}
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("source: missing width/height in y4m header")
	}
	return width, height, nil
}

// NextFrame reads the next frame, wrapping to the start of the first
// frame once the stream is exhausted.
func (y *Y4M) NextFrame() (codec.RawFrame, error) {
	frame, err := y.readOneFrame()
	if err == io.EOF {
		if _, serr := y.f.Seek(y.firstFrameOff, io.SeekStart); serr != nil {
			return codec.RawFrame{}, fmt.Errorf("source: rewind: %w", serr)
		}
		y.r.Reset(y.f)
		frame, err = y.readOneFrame()
	}
	if err != nil {
		return codec.RawFrame{}, err
	}
	return frame, nil
}

func (y *Y4M) readOneFrame() (codec.RawFrame, error) {
	marker, err := y.r.ReadString('\n')
	if err != nil {
		return codec.RawFrame{}, err
	}
	if !strings.HasPrefix(marker, "FRAME") {
		return codec.RawFrame{}, fmt.Errorf("source: expected FRAME marker, got %q", marker)
	}

	buf := make([]byte, y.frameSize)
	if _, err := io.ReadFull(y.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return codec.RawFrame{}, err
	}

	ySize := y.width * y.height
	cSize := (y.width / 2) * (y.height / 2)
	return codec.RawFrame{
		Width:  y.width,
		Height: y.height,
		Y:      buf[:ySize],
		U:      buf[ySize : ySize+cSize],
		V:      buf[ySize+cSize:],
	}, nil
}

// Close releases the underlying file.
func (y *Y4M) Close() error { return y.f.Close() }
