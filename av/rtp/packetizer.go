package rtp

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/opd-ai/voicestream/limits"
	"github.com/opd-ai/voicestream/metrics"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// Transport is the part of the media session a packetizer writes through.
type Transport interface {
	// SendPacket writes one datagram to the remote media server.
	SendPacket(packet []byte) error
	// NewNonce returns the next nonce buffer of the session's mode.
	NewNonce() []byte
}

// Sealer encrypts packet payloads. *crypto.Codec satisfies it.
type Sealer interface {
	Encrypt(plaintext, nonce, aad []byte) ([]byte, error)
}

// Packetizer turns access units of one codec into wire packets.
type Packetizer interface {
	// SendFrame packetizes, encrypts and sends one access unit, then
	// advances the RTP timestamp by duration in the codec clock rate.
	SendFrame(frame []byte, duration time.Duration) error
	// Codec returns the codec of the packetizer.
	Codec() Codec
	// SSRC returns the synchronization source written into packets.
	SSRC() uint32
	// Stats returns a snapshot of the packetizer counters.
	Stats() Stats
}

// Stats is a snapshot of packetizer counters.
type Stats struct {
	FramesSent    uint64
	PacketsSent   uint64
	BytesSent     uint64
	SenderReports uint64
	Sequence      uint16
	Timestamp     uint32
}

// Options configures a packetizer.
type Options struct {
	// MTU bounds the codec payload chunk carried by one packet.
	MTU int
	// SenderReports enables the periodic RTCP sender report.
	SenderReports bool
	// SenderReportInterval is the media time between sender reports.
	SenderReportInterval time.Duration
	// Aggregate packs consecutive small H.264/H.265 NAL units into one packet.
	Aggregate bool
	// InitialSequence is the sequence number preceding the first packet.
	InitialSequence uint16
	// InitialTimestamp is the RTP timestamp of the first frame.
	InitialTimestamp uint32
	// Metrics receives packet counters. May be nil.
	Metrics *metrics.Metrics
}

// DefaultOptions returns the options used by the media transport.
func DefaultOptions() Options {
	return Options{
		MTU:                  limits.DefaultMTU,
		SenderReports:        true,
		SenderReportInterval: 5 * time.Second,
	}
}

// NewPacketizer creates the packetizer for codec.
func NewPacketizer(codec Codec, ssrc uint32, transport Transport, sealer Sealer, opts Options) (Packetizer, error) {
	b, err := newBase(codec, ssrc, transport, sealer, opts)
	if err != nil {
		return nil, err
	}

	switch codec {
	case CodecOpus:
		return &AudioPacketizer{base: b}, nil
	case CodecVP8:
		return &VP8Packetizer{base: b}, nil
	case CodecH264:
		return &AnnexBPacketizer{base: b, format: h264Format{}}, nil
	case CodecH265:
		return &AnnexBPacketizer{base: b, format: h265Format{}}, nil
	case CodecAV1:
		return &AV1Packetizer{base: b}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCodec, codec)
	}
}

// headerExtension is the one-byte extension block prepended to every video
// plaintext: profile 0xBEDE, one word, element id 5 (playout delay) with two
// zero bytes and one padding byte.
var headerExtension = []byte{0xbe, 0xde, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00}

// base holds the framing state shared by every codec.
type base struct {
	mu sync.Mutex

	codec       Codec
	ssrc        uint32
	payloadType uint8
	extension   bool
	opts        Options
	transport   Transport
	sealer      Sealer
	kind        string
	log         *logrus.Entry

	sequence    uint16
	timestamp   uint32
	tsRemainder float64

	stats        Stats
	totalPackets uint32
	totalOctets  uint32
	sinceReport  time.Duration
}

func newBase(codec Codec, ssrc uint32, transport Transport, sealer Sealer, opts Options) (*base, error) {
	if _, ok := codecTable[codec]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCodec, codec)
	}
	if transport == nil {
		return nil, ErrNilTransport
	}
	if sealer == nil {
		return nil, ErrNilSealer
	}
	if opts.MTU == 0 {
		opts.MTU = limits.DefaultMTU
	}
	if err := limits.ValidateMTU(opts.MTU); err != nil {
		return nil, err
	}
	if opts.SenderReportInterval <= 0 {
		opts.SenderReportInterval = 5 * time.Second
	}

	kind := metrics.KindAudio
	if codec.IsVideo() {
		kind = metrics.KindVideo
	}

	b := &base{
		codec:       codec,
		ssrc:        ssrc,
		payloadType: codec.PayloadType(),
		extension:   codec.IsVideo(),
		opts:        opts,
		transport:   transport,
		sealer:      sealer,
		kind:        kind,
		sequence:    opts.InitialSequence,
		timestamp:   opts.InitialTimestamp,
		log: logrus.WithFields(logrus.Fields{
			"codec": codec.String(),
			"ssrc":  ssrc,
		}),
	}

	b.log.WithFields(logrus.Fields{
		"function":     "NewPacketizer",
		"payload_type": b.payloadType,
		"mtu":          opts.MTU,
	}).Debug("Packetizer created")

	return b, nil
}

func (b *base) Codec() Codec { return b.codec }

func (b *base) SSRC() uint32 { return b.ssrc }

func (b *base) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats
	s.Sequence = b.sequence
	s.Timestamp = b.timestamp
	return s
}

// nextSequence advances the 16-bit sequence number and returns it.
func (b *base) nextSequence() uint16 {
	b.sequence++
	return b.sequence
}

// rtpHeader builds the 12-byte fixed header for the next packet.
func (b *base) rtpHeader(marker bool) ([]byte, error) {
	h := rtp.Header{
		Version:        2,
		Marker:         marker,
		PayloadType:    b.payloadType,
		SequenceNumber: b.nextSequence(),
		Timestamp:      b.timestamp,
		SSRC:           b.ssrc,
	}
	buf, err := h.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP header: %w", err)
	}
	if b.extension {
		// the extension block travels inside the ciphertext
		buf[0] |= 0x10
	}
	return buf, nil
}

// seal encrypts plaintext behind header and appends the nonce suffix.
func (b *base) seal(header, plaintext []byte) ([]byte, error) {
	nonce := b.transport.NewNonce()
	if len(nonce) < limits.NonceSuffixSize {
		return nil, fmt.Errorf("transport returned %d byte nonce", len(nonce))
	}
	sealed, err := b.sealer.Encrypt(plaintext, nonce, header)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	packet := make([]byte, 0, len(header)+len(sealed)+limits.NonceSuffixSize)
	packet = append(packet, header...)
	packet = append(packet, sealed...)
	packet = append(packet, nonce[:limits.NonceSuffixSize]...)
	return packet, nil
}

// emit builds, encrypts and writes one media packet.
func (b *base) emit(marker bool, parts ...[]byte) (int, error) {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	if wire := limits.WirePacketSize(size); wire > limits.MaxDatagramSize {
		return 0, fmt.Errorf("%w: %d byte packet exceeds datagram limit %d", ErrChunkTooLarge, wire, limits.MaxDatagramSize)
	}

	header, err := b.rtpHeader(marker)
	if err != nil {
		return 0, err
	}

	plaintext := make([]byte, 0, size)
	for _, p := range parts {
		plaintext = append(plaintext, p...)
	}

	packet, err := b.seal(header, plaintext)
	if err != nil {
		return 0, err
	}
	if err := b.transport.SendPacket(packet); err != nil {
		b.opts.Metrics.SendError(b.kind)
		return 0, fmt.Errorf("failed to send packet: %w", err)
	}
	b.opts.Metrics.PacketSent(b.kind, len(packet))
	return len(packet), nil
}

// checkChunk rejects a plaintext chunk above the MTU.
func (b *base) checkChunk(chunk []byte) error {
	if len(chunk) > b.opts.MTU {
		return fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(chunk), b.opts.MTU)
	}
	return nil
}

// rejectFrame logs and counts a frame that could not be packetized.
func (b *base) rejectFrame(err error, size int) error {
	b.opts.Metrics.FrameError(b.codec.String())
	b.log.WithFields(logrus.Fields{
		"function":   "SendFrame",
		"frame_size": size,
		"error":      err.Error(),
	}).Warn("Frame rejected by packetizer")
	return err
}

// frameSent updates counters, advances the timestamp and emits a sender
// report when the report interval has elapsed in media time.
func (b *base) frameSent(packets, octets int, duration time.Duration) {
	b.stats.FramesSent++
	b.stats.PacketsSent += uint64(packets)
	b.stats.BytesSent += uint64(octets)
	b.totalPackets += uint32(packets)
	b.totalOctets += uint32(octets)

	b.advanceTimestamp(duration)

	if !b.opts.SenderReports {
		return
	}
	b.sinceReport += duration
	if b.sinceReport < b.opts.SenderReportInterval {
		return
	}
	b.sinceReport = 0
	if err := b.sendSenderReport(time.Now()); err != nil {
		b.log.WithFields(logrus.Fields{
			"function": "frameSent",
			"error":    err.Error(),
		}).Warn("Failed to send sender report")
	}
}

// frameAborted accounts for the packets a failed frame already wrote and
// still advances the timestamp, so the next frame never reuses it.
func (b *base) frameAborted(packets, octets int, duration time.Duration, err error) error {
	b.stats.PacketsSent += uint64(packets)
	b.stats.BytesSent += uint64(octets)
	b.totalPackets += uint32(packets)
	b.totalOctets += uint32(octets)
	b.advanceTimestamp(duration)

	b.log.WithFields(logrus.Fields{
		"function": "frameAborted",
		"packets":  packets,
		"error":    err.Error(),
	}).Debug("Frame aborted mid-send")
	return err
}

// advanceTimestamp moves the RTP timestamp by duration in clock ticks,
// carrying the fractional part so non-integer tick counts do not drift.
func (b *base) advanceTimestamp(duration time.Duration) {
	if duration <= 0 {
		return
	}
	ticks := duration.Seconds()*float64(b.codec.ClockRate()) + b.tsRemainder
	whole := math.Floor(ticks)
	b.tsRemainder = ticks - whole
	b.timestamp += uint32(uint64(whole) & 0xffffffff)
}

// PartitionChunks splits data into ordered chunks of at most mtu bytes.
// The chunk count is ceil(len(data)/mtu); chunks alias data.
func PartitionChunks(data []byte, mtu int) [][]byte {
	if mtu <= 0 || len(data) == 0 {
		return nil
	}
	out := make([][]byte, 0, (len(data)+mtu-1)/mtu)
	for len(data) > 0 {
		n := mtu
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}
