// Package metrics exports Prometheus collectors for the voice media
// transport.
//
// A single Metrics value is shared by the UDP transport, the packetizers,
// the pacing engines and the receive pipeline. All recording methods are
// safe to call on a nil *Metrics, so components take metrics as an optional
// dependency.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	conn, err := transport.Dial(ctx, params, transport.Options{Metrics: m})
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicestream"

// Packet kinds used as label values.
const (
	KindAudio = "audio"
	KindVideo = "video"
	KindRTCP  = "rtcp"
)

// Drop reasons used as label values.
const (
	DropUnknownSSRC = "unknown_ssrc"
	DropDecrypt     = "decrypt"
	DropMalformed   = "malformed"
	DropBufferFull  = "buffer_full"
)

// Metrics holds the collectors for one process or one session.
type Metrics struct {
	packetsSent     *prometheus.CounterVec
	bytesSent       *prometheus.CounterVec
	sendErrors      *prometheus.CounterVec
	frameErrors     *prometheus.CounterVec
	packetsReceived prometheus.Counter
	packetsDropped  *prometheus.CounterVec
	frameSendTime   *prometheus.HistogramVec
	lateFrames      *prometheus.CounterVec
	syncWaits       *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	stateChanges    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg
// registers with prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "packets_sent_total",
			Help:      "Datagrams written to the media socket",
		}, []string{"kind"}),
		bytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the media socket",
		}, []string{"kind"}),
		sendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "send_errors_total",
			Help:      "Datagram writes that failed",
		}, []string{"kind"}),
		frameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packetizer",
			Name:      "frame_errors_total",
			Help:      "Frames rejected by a packetizer",
		}, []string{"codec"}),
		packetsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "packets_received_total",
			Help:      "Inbound datagrams handed to the receiver",
		}),
		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "packets_dropped_total",
			Help:      "Inbound datagrams dropped before delivery",
		}, []string{"reason"}),
		frameSendTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pacing",
			Name:      "frame_send_seconds",
			Help:      "Wall clock time spent sending one access unit",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .02, .04, .08, .16},
		}, []string{"stream"}),
		lateFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pacing",
			Name:      "late_frames_total",
			Help:      "Frames whose send time exceeded their duration",
		}, []string{"stream"}),
		syncWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pacing",
			Name:      "sync_waits_total",
			Help:      "Frames held back waiting for the paired stream",
		}, []string{"stream"}),
		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "subscriptions_active",
			Help:      "Open per-user audio subscriptions",
		}),
		stateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "state_transitions_total",
			Help:      "Media session state transitions",
		}, []string{"to"}),
	}
}

// PacketSent records a successful datagram write.
func (m *Metrics) PacketSent(kind string, size int) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(kind).Inc()
	m.bytesSent.WithLabelValues(kind).Add(float64(size))
}

// SendError records a failed datagram write.
func (m *Metrics) SendError(kind string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(kind).Inc()
}

// FrameError records a frame rejected by the packetizer for codec.
func (m *Metrics) FrameError(codec string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(codec).Inc()
}

// PacketReceived records an inbound datagram.
func (m *Metrics) PacketReceived() {
	if m == nil {
		return
	}
	m.packetsReceived.Inc()
}

// PacketDropped records an inbound datagram dropped for reason.
func (m *Metrics) PacketDropped(reason string) {
	if m == nil {
		return
	}
	m.packetsDropped.WithLabelValues(reason).Inc()
}

// FrameSent records the send duration of one access unit on stream and
// whether it overran the frame duration.
func (m *Metrics) FrameSent(stream string, took time.Duration, late bool) {
	if m == nil {
		return
	}
	m.frameSendTime.WithLabelValues(stream).Observe(took.Seconds())
	if late {
		m.lateFrames.WithLabelValues(stream).Inc()
	}
}

// SyncWait records a frame held back by the sync pair.
func (m *Metrics) SyncWait(stream string) {
	if m == nil {
		return
	}
	m.syncWaits.WithLabelValues(stream).Inc()
}

// SubscriptionOpened increments the active subscription gauge.
func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

// SubscriptionClosed decrements the active subscription gauge.
func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

// StateChanged records a transport state transition.
func (m *Metrics) StateChanged(to string) {
	if m == nil {
		return
	}
	m.stateChanges.WithLabelValues(to).Inc()
}
