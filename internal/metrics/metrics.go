// Package metrics exposes Prometheus counters/gauges for the sender and
// receiver engines, plus a local snapshot cheap enough to log alongside
// the stats files (spec.md §6.6).
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamcore/internal/logging"
)

var (
	FramesEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcore_frames_encoded_total",
		Help: "Total frames encoded by the sender.",
	})
	FragmentsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcore_fragments_sent_total",
		Help: "Total datagrams transmitted, including retransmits.",
	})
	FragmentsRetransmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcore_fragments_retransmitted_total",
		Help: "Total datagrams retransmitted by the fast-retransmit policy.",
	})
	AcksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcore_acks_received_total",
		Help: "Total ACK control messages received by the sender.",
	})
	KeyframeForces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcore_keyframe_forces_total",
		Help: "Total times the sender forced a keyframe after an unacked-timeout.",
	})
	SkipAheads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcore_skip_aheads_total",
		Help: "Total times the receiver skipped ahead to a later keyframe.",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcore_frames_dropped_total",
		Help: "Total source frames the sender skipped to catch up after a coalesced frame-rate tick.",
	})
	MinRTTMicros = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamcore_min_rtt_microseconds",
		Help: "Current minimum observed round-trip time.",
	})
	EWMARTTMicros = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamcore_ewma_rtt_microseconds",
		Help: "Current exponentially weighted moving average round-trip time.",
	})
	UnackedCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamcore_unacked_fragments",
		Help: "Current number of fragments awaiting acknowledgment.",
	})
	DecodeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamcore_decode_queue_depth",
		Help: "Current number of frames queued for the decode worker.",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcore_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
)

// Error label constants, kept stable to bound cardinality.
const (
	ErrSocketRead   = "socket_read"
	ErrSocketWrite  = "socket_write"
	ErrProtocol     = "protocol"
	ErrEncode       = "encode"
	ErrDecode       = "decode"
	ErrSourceRead   = "source_read"
	ErrDisplayWrite = "display_write"
)

var (
	localFragmentsSent uint64
	localAcks          uint64
)

// Snapshot is a cheap copy of the locally mirrored counters, suitable for
// inclusion in a structured log line without scraping Prometheus.
type Snapshot struct {
	FragmentsSent uint64
	AcksReceived  uint64
}

// Snap returns the current local snapshot.
func Snap() Snapshot {
	return Snapshot{
		FragmentsSent: atomic.LoadUint64(&localFragmentsSent),
		AcksReceived:  atomic.LoadUint64(&localAcks),
	}
}

// IncFragmentsSent increments the fragment-sent counters.
func IncFragmentsSent() {
	FragmentsSent.Inc()
	atomic.AddUint64(&localFragmentsSent, 1)
}

// IncAcksReceived increments the ACK-received counters.
func IncAcksReceived() {
	AcksReceived.Inc()
	atomic.AddUint64(&localAcks, 1)
}

// IncError increments the error counter for the given subsystem label.
func IncError(where string) { Errors.WithLabelValues(where).Inc() }

// StartHTTP serves Prometheus metrics at /metrics on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
