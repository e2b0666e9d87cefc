// Package receiver implements the receiver-side engine: datagram
// ingestion, keyframe skip-ahead recovery, and the handoff to a decode
// worker (spec.md §4.3, §4.6, §4.7).
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"streamcore/internal/logging"
	"streamcore/internal/metrics"
	"streamcore/internal/netudp"
	"streamcore/internal/reassembly"
	"streamcore/internal/stats"
	"streamcore/internal/wire"
)

// LazyLevel controls decode/display per spec.md §4.3: 0 decodes and
// displays, 1 decodes only, 2 does neither (protocol and stats only).
type LazyLevel int

const (
	LazyDecodeDisplay LazyLevel = 0
	LazyDecodeOnly    LazyLevel = 1
	LazyNone          LazyLevel = 2
)

// Clock abstracts "now" in microseconds since epoch.
type Clock func() uint64

func wallClockUS() uint64 { return uint64(time.Now().UnixMicro()) }

// Socket is the subset of *netudp.Socket the engine needs, narrowed so
// tests can substitute a fake without opening a real UDP socket.
type Socket interface {
	TryRead(buf []byte) (int, net.Addr, error)
	TryWriteTo(buf []byte, addr net.Addr) (int, error)
	Close() error
}

// Engine holds the receiver-side reassembly buffer and consumption
// policy. Pair it with a Worker (see worker.go) when lazy <= 1.
type Engine struct {
	sock Socket
	buf  *reassembly.Buffer

	nextFrame uint32
	lazy      LazyLevel

	worker      *Worker
	statsWriter *stats.ReceiverWriter

	now     Clock
	recvBuf []byte

	assembleBuf []byte
}

// New constructs a receiver engine. worker may be nil iff lazy == LazyNone.
func New(sock Socket, lazy LazyLevel, worker *Worker, statsWriter *stats.ReceiverWriter) *Engine {
	return &Engine{
		sock:        sock,
		buf:         reassembly.NewBuffer(),
		lazy:        lazy,
		worker:      worker,
		statsWriter: statsWriter,
		now:         wallClockUS,
		recvBuf:     make([]byte, 65536),
		assembleBuf: make([]byte, 0, 1<<20),
	}
}

// Run implements spec.md §4.6's receiver loop: recv, ACK, reassemble,
// consume. Each iteration makes one non-blocking TryRead attempt; a
// would-block result sleeps briefly before retrying, the same
// single-attempt polling discipline the sender's event loop uses (spec.md
// §5 "suspension points"). A reassembly protocol violation (spec.md §7)
// surfaces as a panic from e.buf.Accept; it is counted here before being
// allowed to propagate and terminate the process.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok && errors.Is(perr, wire.ErrProtocol) {
				metrics.IncError(metrics.ErrProtocol)
			}
			panic(r)
		}
	}()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		e.sock.Close()
		close(done)
	}()

	for {
		select {
		case <-done:
			return ctx.Err()
		default:
		}

		n, from, err := e.sock.TryRead(e.recvBuf)
		if err == netudp.ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
			}
			metrics.IncError(metrics.ErrSocketRead)
			return fmt.Errorf("receiver: read socket: %w", err)
		}

		d, ok := wire.ParseDatagram(e.recvBuf[:n])
		if !ok {
			continue
		}

		e.sendAck(d, from)
		e.buf.Accept(&d, e.nextFrame)
		e.consumeReady()
	}
}

func (e *Engine) sendAck(d wire.Datagram, from net.Addr) {
	ack := wire.Ack{FrameID: d.FrameID, FragID: d.FragID, SendTS: d.SendTS}
	payload := ack.Marshal()
	if _, err := e.sock.TryWriteTo(payload, from); err != nil && err != netudp.ErrWouldBlock {
		metrics.IncError(metrics.ErrSocketWrite)
		logging.L().Warn("ack_send_failed", "error", err)
	}
}

// consumeReady implements spec.md §4.3's in-order-or-skip-ahead policy.
func (e *Engine) consumeReady() {
	for {
		if f, ok := e.buf.Get(e.nextFrame); ok && f.Complete() {
			e.consume(f)
			continue
		}
		if id, ok := e.buf.HighestCompleteKeyAfter(e.nextFrame); ok {
			skip := id - e.nextFrame
			logging.L().Info("skip_ahead", "from", e.nextFrame, "to", id, "distance", skip)
			metrics.SkipAheads.Inc()
			e.nextFrame = id
			continue
		}
		return
	}
}

// consume implements spec.md §4.3's consumption step. At lazy 0/1 the
// frame is handed to the worker, which records frame_decoded_us itself
// once decoding actually finishes (spec.md §6.6); at lazy 2 there is no
// decode step, so the engine records frame_decodable_us here: the
// wall-clock time (us since epoch) at which the frame became usable.
func (e *Engine) consume(f *reassembly.Frame) {
	start := e.now()
	size := f.Size()

	switch e.lazy {
	case LazyDecodeDisplay, LazyDecodeOnly:
		assembled := f.Assemble(e.assembleBuf)
		payload := append([]byte(nil), assembled...)
		if e.worker != nil {
			e.worker.Submit(Job{FrameID: f.ID, Data: payload, Submitted: start})
			metrics.DecodeQueueDepth.Set(float64(e.worker.QueueLen()))
		}
	case LazyNone:
		if e.statsWriter != nil {
			e.statsWriter.Record(f.ID, size, start)
		}
	}

	e.nextFrame = f.ID + 1
	e.buf.CleanUpTo(e.nextFrame)
}
