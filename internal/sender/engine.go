// Package sender implements the sender-side engine: encode, packetize,
// enqueue, drain-on-writable, ACK-driven retransmission, and
// keyframe-force recovery (spec.md §4.4).
package sender

import (
	"context"
	"fmt"
	"net"
	"time"

	"streamcore/internal/codec"
	"streamcore/internal/logging"
	"streamcore/internal/metrics"
	"streamcore/internal/netudp"
	"streamcore/internal/rtt"
	"streamcore/internal/stats"
	"streamcore/internal/unacked"
	"streamcore/internal/wire"
)

// MaxUnackedUS is the absolute wall-clock threshold, since the first send
// of the oldest unacked fragment, past which the sender gives up on
// repair and forces a keyframe (spec.md §4.4, §9).
const MaxUnackedUS = 1_000_000

// FrameSource supplies raw frames to encode, e.g. internal/source.Y4M.
type FrameSource interface {
	NextFrame() (codec.RawFrame, error)
}

// Socket is the subset of *netudp.Socket the engine needs, narrowed so
// tests can substitute a fake without opening a real UDP socket.
type Socket interface {
	TryRead(buf []byte) (int, net.Addr, error)
	TryWrite(buf []byte) (int, error)
}

// Clock abstracts "now" in microseconds since epoch, overridable in tests.
type Clock func() uint64

func wallClockUS() uint64 { return uint64(time.Now().UnixMicro()) }

// Engine holds all sender-side state: the encoder, the send queue, the
// unacked table, and the RTT estimator.
type Engine struct {
	sock       Socket
	enc        codec.Encoder
	source     FrameSource
	maxPayload int
	frameRate  uint16

	queue   *sendQueue
	unacked *unacked.Table
	rtt     rtt.Estimator

	frameID uint32
	now     Clock

	frameIntervalUS uint64
	lastFrameTickUS uint64

	statsWriter *stats.SenderWriter
	targetBitr  uint32

	recvBuf []byte
}

// New constructs a sender engine bound to an already-connected,
// non-blocking socket (spec.md §6.2 steps 2-3 must already have run).
func New(sock Socket, enc codec.Encoder, source FrameSource, mtu int, frameRate uint16, targetBitrate uint32, statsWriter *stats.SenderWriter) (*Engine, error) {
	if err := wire.ValidateMTU(mtu); err != nil {
		return nil, err
	}
	maxPayload := wire.MaxPayload(mtu)
	enc.SetTargetBitrate(targetBitrate)
	return &Engine{
		sock:            sock,
		enc:             enc,
		source:          source,
		maxPayload:      maxPayload,
		frameRate:       frameRate,
		queue:           newSendQueue(),
		unacked:         unacked.New(),
		now:             wallClockUS,
		frameIntervalUS: 1_000_000 / uint64(frameRate),
		statsWriter:     statsWriter,
		targetBitr:      targetBitrate,
		recvBuf:         make([]byte, 2048),
	}, nil
}

// Run drives the event loop until ctx is cancelled or the source/socket
// errors fatally (spec.md §4.6). The frame-rate timer, the stats timer,
// and socket readiness are multiplexed the way a cooperative poll loop
// would, translated into Go's goroutine-free select idiom: every 1ms idle
// tick reads control messages and then drains the send queue with
// non-blocking calls, each stopping at the first would-block, so a
// would-block never stalls the loop (spec.md §5 "suspension points").
func (e *Engine) Run(ctx context.Context) error {
	frameTicker := time.NewTicker(time.Second / time.Duration(e.frameRate))
	defer frameTicker.Stop()
	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()

	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-frameTicker.C:
			if err := e.onFrameTick(); err != nil {
				return err
			}
		case <-statsTicker.C:
			e.onStatsTick()
		case <-idle.C:
			if err := e.drainReadable(); err != nil {
				return err
			}
			if err := e.drainSendQueue(); err != nil {
				return err
			}
		}
	}
}

// onFrameTick implements §4.4's "Encoding" and "Packetization" steps,
// plus the keyframe-force check that must run just before each encode.
func (e *Engine) onFrameTick() error {
	flags := codec.EncodeFlags(0)
	if e.keyframeForceDue() {
		e.forceKeyframeRecovery()
		flags = codec.ForceKeyframe
	}

	raw, err := e.readLatestFrame()
	if err != nil {
		metrics.IncError(metrics.ErrSourceRead)
		return fmt.Errorf("sender: read source frame: %w", err)
	}

	genStart := e.now()
	pkt, err := e.enc.Encode(raw, e.frameID, flags)
	if err != nil {
		metrics.IncError(metrics.ErrEncode)
		return fmt.Errorf("sender: encode frame %d: %w", e.frameID, err)
	}
	encodedAt := e.now()
	metrics.FramesEncoded.Inc()

	frameType := wire.FrameNonKey
	if pkt.IsKey {
		frameType = wire.FrameKey
	}
	e.packetize(pkt.Data, frameType)

	if e.statsWriter != nil {
		e.statsWriter.Record(e.frameID, e.targetBitr, len(pkt.Data), encodedAt-genStart, encodedAt-genStart)
	}

	e.frameID++
	return nil
}

// readLatestFrame implements spec.md §4.6 / the original's
// handle_fps_timer: a coalesced frame-rate tick may represent more than
// one elapsed frame period (the source ticker does not guarantee
// delivery on every period under load), so this reads as many raw
// frames as periods have elapsed since the last tick, keeping only the
// most recent and logging a warning when frames were skipped.
func (e *Engine) readLatestFrame() (codec.RawFrame, error) {
	now := e.now()
	expirations := 1
	if e.lastFrameTickUS != 0 && e.frameIntervalUS > 0 {
		if n := int((now - e.lastFrameTickUS) / e.frameIntervalUS); n > expirations {
			expirations = n
		}
	}
	e.lastFrameTickUS = now

	var raw codec.RawFrame
	for i := 0; i < expirations; i++ {
		var err error
		raw, err = e.source.NextFrame()
		if err != nil {
			return codec.RawFrame{}, err
		}
	}
	if expirations > 1 {
		skipped := expirations - 1
		metrics.FramesDropped.Add(float64(skipped))
		logging.L().Warn("frame_tick_skipped", "expirations", expirations, "skipped", skipped)
	}
	return raw, nil
}

// packetize implements spec.md §4.4's fragmentation of one compressed
// frame into wire.Datagrams, appended at the tail of the send queue.
// Every fragment but the last carries maxPayload bytes; the last carries
// the remainder, so no byte of the frame is dropped.
func (e *Engine) packetize(data []byte, frameType wire.FrameType) {
	fragCnt := wire.FragCount(len(data), e.maxPayload)
	for fragID := 0; fragID < fragCnt; fragID++ {
		start := fragID * e.maxPayload
		end := start + e.maxPayload
		if end > len(data) || fragID == fragCnt-1 {
			end = len(data)
		}
		payload := append([]byte(nil), data[start:end]...)
		d := &wire.Datagram{
			FrameID:   e.frameID,
			FrameType: frameType,
			FragID:    uint16(fragID),
			FragCnt:   uint16(fragCnt),
			Payload:   payload,
		}
		e.queue.PushBack(d)
	}
}

// drainSendQueue implements §4.4's "Send queue" drain-on-writable step.
func (e *Engine) drainSendQueue() error {
	for {
		d, ok := e.queue.Front()
		if !ok {
			return nil
		}
		d.SendTS = e.now()
		n, err := e.sock.TryWrite(d.Marshal())
		if err == netudp.ErrWouldBlock {
			d.SendTS = 0
			return nil
		}
		if err != nil {
			metrics.IncError(metrics.ErrSocketWrite)
			return fmt.Errorf("sender: write datagram: %w", err)
		}
		_ = n
		e.queue.PopFront()
		metrics.IncFragmentsSent()

		if d.NumRTX == 0 {
			d.FirstSendTS = d.SendTS
			e.unacked.Insert(d)
		}
	}
}

// drainReadable parses every available control message, the sender's
// half of §4.6's readable handler.
func (e *Engine) drainReadable() error {
	for {
		n, _, err := e.sock.TryRead(e.recvBuf)
		if err == netudp.ErrWouldBlock {
			return nil
		}
		if err != nil {
			metrics.IncError(metrics.ErrSocketRead)
			return fmt.Errorf("sender: read socket: %w", err)
		}
		msg, ok := wire.ParseControl(e.recvBuf[:n])
		if !ok || msg.Type != wire.MsgAck {
			continue
		}
		e.onAck(msg.Ack)
	}
}

// onAck implements §4.4's ACK handling: RTT sampling, backward-walk fast
// retransmit, and removal of the acked entry.
func (e *Engine) onAck(ack wire.Ack) {
	metrics.IncAcksReceived()
	now := e.now()
	sample := now - ack.SendTS
	e.rtt.AddSample(sample)

	seq := wire.SeqNum{FrameID: ack.FrameID, FragID: ack.FragID}
	if _, ok := e.unacked.Get(seq); !ok {
		return
	}

	ewma, haveEWMA := e.rtt.EWMAUS()
	e.unacked.WalkBackwardFrom(seq, func(d *wire.Datagram) bool {
		if d.NumRTX >= wire.MaxNumRTX {
			return true
		}
		elapsed := now - d.LastSendTS
		if d.NumRTX == 0 || (haveEWMA && float64(elapsed) > ewma) {
			d.NumRTX++
			d.LastSendTS = now
			e.queue.PushFront(d)
			metrics.FragmentsRetransmitted.Inc()
		}
		return true
	})

	e.unacked.Delete(seq)
}

// keyframeForceDue implements §4.4's "Keyframe-force recovery" trigger
// check, run just before each encode. It measures from the oldest
// fragment's FirstSendTS, not its most recent SendTS: a fragment that is
// itself being fast-retransmitted (because a later fragment got ACK'd,
// per the S2 backward walk) has its SendTS refreshed on every
// retransmission, which would otherwise restart this timer indefinitely
// under partial loss instead of bounding total recovery time to 1s.
func (e *Engine) keyframeForceDue() bool {
	oldest, ok := e.unacked.Oldest()
	if !ok {
		return false
	}
	return e.now()-oldest.FirstSendTS > MaxUnackedUS
}

// forceKeyframeRecovery clears the send queue and unacked table so the
// next encoded frame starts a fresh, independently decodable stream.
func (e *Engine) forceKeyframeRecovery() {
	e.queue.Clear()
	e.unacked.Clear()
	metrics.KeyframeForces.Inc()
	logging.L().Warn("keyframe_force", "frame_id", e.frameID)
}

func (e *Engine) onStatsTick() {
	snap := metrics.Snap()
	min, _ := e.rtt.MinUS()
	ewma, _ := e.rtt.EWMAUS()
	metrics.MinRTTMicros.Set(float64(min))
	metrics.EWMARTTMicros.Set(ewma)
	metrics.UnackedCount.Set(float64(e.unacked.Len()))
	logging.L().Info("sender_stats",
		"frame_id", e.frameID,
		"fragments_sent", snap.FragmentsSent,
		"acks_received", snap.AcksReceived,
		"unacked", e.unacked.Len(),
		"min_rtt_us", min,
		"ewma_rtt_us", ewma,
	)
}
