// Package stats writes the per-frame CSV-style stats files spec.md §6.6
// describes for the sender and receiver.
package stats

import (
	"bufio"
	"fmt"
	"os"
)

// SenderWriter appends one line per encoded frame:
// frame_id,target_bitrate,frame_size,frame_generation_us,frame_encoded_us
type SenderWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewSenderWriter creates (or truncates) the stats file at path.
func NewSenderWriter(path string) (*SenderWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("stats: create %s: %w", path, err)
	}
	return &SenderWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Record appends one sender stats line and flushes it immediately, since
// a stats file is meant to be tailable while the sender is running.
func (s *SenderWriter) Record(frameID uint32, targetBitrate uint32, frameSize int, generationUS, encodedUS uint64) error {
	_, err := fmt.Fprintf(s.w, "%d,%d,%d,%d,%d\n", frameID, targetBitrate, frameSize, generationUS, encodedUS)
	if err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *SenderWriter) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// ReceiverWriter appends one line per frame (spec.md §6.6):
// frame_id,frame_size,frame_decoded_us    (lazy level 0/1, worker path:
//                                          elapsedUS is measured by the
//                                          worker from ingestion to
//                                          decode completion)
// frame_id,frame_size,frame_decodable_us  (lazy level 2, no worker:
//                                          the engine passes the
//                                          wall-clock time in us since
//                                          epoch at which it consumed the
//                                          frame, since nothing decodes it)
// Which line is written is determined entirely by which caller invokes
// Record, not by any state on ReceiverWriter itself.
type ReceiverWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewReceiverWriter creates (or truncates) the stats file at path.
func NewReceiverWriter(path string) (*ReceiverWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("stats: create %s: %w", path, err)
	}
	return &ReceiverWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Record appends one receiver stats line and flushes it immediately.
func (r *ReceiverWriter) Record(frameID uint32, frameSize int, elapsedUS uint64) error {
	_, err := fmt.Fprintf(r.w, "%d,%d,%d\n", frameID, frameSize, elapsedUS)
	if err != nil {
		return err
	}
	return r.w.Flush()
}

// Close flushes and closes the underlying file.
func (r *ReceiverWriter) Close() error {
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
