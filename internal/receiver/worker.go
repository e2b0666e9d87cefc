package receiver

import (
	"sync"

	"streamcore/internal/codec"
	"streamcore/internal/display"
	"streamcore/internal/logging"
	"streamcore/internal/metrics"
	"streamcore/internal/stats"
)

// Job is one complete, assembled frame handed from the ingestion loop to
// the decode worker (spec.md §4.7). Submitted is the wall-clock time (us)
// the frame was handed off, used to measure frame_decoded_us (spec.md
// §6.6) from ingestion through to decode completion.
type Job struct {
	FrameID   uint32
	Data      []byte
	Submitted uint64
}

// Worker is the receiver's decode thread: it owns the VP9 decoder
// context and, optionally, a display sink, and drains a shared queue
// that the main thread feeds under a mutex/condition-variable handoff
// (spec.md §4.7, §5 "shared resources").
//
// Ordering guarantee: Submit is only ever called by the engine's
// in-order/skip-ahead consumer (§4.3), so frames always arrive in
// strictly increasing frame_id order; the worker preserves that order
// by draining the shared queue into a private queue under the lock and
// decoding from the private queue without holding it.
type Worker struct {
	dec     codec.Decoder
	display display.Sink

	statsWriter *stats.ReceiverWriter
	now         Clock

	mu     sync.Mutex
	cond   *sync.Cond
	shared []Job
	exit   bool
	done   chan struct{}
}

// NewWorker constructs a decode worker. display may be nil (lazy level 1:
// decode only, no display). statsWriter may be nil (no stats file
// configured); when non-nil, the worker itself writes the
// frame_decoded_us line (spec.md §6.6) once each frame actually finishes
// decoding, since that duration is only known on the worker side of the
// mutex/condvar handoff.
func NewWorker(dec codec.Decoder, disp display.Sink, statsWriter *stats.ReceiverWriter) *Worker {
	w := &Worker{dec: dec, display: disp, statsWriter: statsWriter, now: wallClockUS, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start spawns the worker's goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Submit appends a job to the shared queue and wakes the worker.
func (w *Worker) Submit(j Job) {
	w.mu.Lock()
	w.shared = append(w.shared, j)
	w.mu.Unlock()
	w.cond.Signal()
}

// QueueLen reports the current shared-queue depth, for metrics.
func (w *Worker) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.shared)
}

// Stop sets the exit flag, wakes the worker, and waits for it to drain
// and exit (spec.md §5 "cancellation/shutdown").
func (w *Worker) Stop() {
	w.mu.Lock()
	w.exit = true
	w.mu.Unlock()
	w.cond.Signal()
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.dec.Close()
	if w.display != nil {
		defer w.display.Close()
	}

	var private []Job
	for {
		w.mu.Lock()
		for len(w.shared) == 0 && !w.exit {
			w.cond.Wait()
		}
		private = append(private[:0], w.shared...)
		w.shared = w.shared[:0]
		exiting := w.exit
		w.mu.Unlock()

		for _, j := range private {
			w.decodeAndDisplay(j)
		}
		if exiting && len(private) == 0 {
			return
		}
		if exiting {
			// Drain whatever else arrived before exit was observed, then stop.
			w.mu.Lock()
			remaining := append([]Job(nil), w.shared...)
			w.shared = w.shared[:0]
			w.mu.Unlock()
			for _, j := range remaining {
				w.decodeAndDisplay(j)
			}
			return
		}
	}
}

func (w *Worker) decodeAndDisplay(j Job) {
	decoded, ok, err := w.dec.Decode(j.FrameID, j.Data)
	if err != nil {
		metrics.IncError(metrics.ErrDecode)
		logging.L().Error("decode_failed", "frame_id", j.FrameID, "error", err)
		return
	}
	if !ok {
		return
	}
	if w.statsWriter != nil {
		if err := w.statsWriter.Record(j.FrameID, len(j.Data), w.now()-j.Submitted); err != nil {
			logging.L().Warn("stats_write_failed", "frame_id", j.FrameID, "error", err)
		}
	}
	if w.display == nil {
		return
	}
	if err := w.display.Show(decoded); err != nil {
		metrics.IncError(metrics.ErrDisplayWrite)
		logging.L().Error("display_failed", "frame_id", j.FrameID, "error", err)
	}
}
