package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/opd-ai/voicestream/av/rtp"
	"github.com/opd-ai/voicestream/crypto"
	"github.com/opd-ai/voicestream/limits"
	"github.com/opd-ai/voicestream/metrics"
)

// SessionParams are the values signaling hands to the media transport.
type SessionParams struct {
	// SSRC identifies the audio stream of this client.
	SSRC uint32
	// VideoSSRC identifies the video stream. Zero selects SSRC+1.
	VideoSSRC uint32
	// Address and Port locate the media server.
	Address string
	Port    int
	// Mode is the negotiated encryption mode.
	Mode crypto.EncryptionMode
	// SecretKey is the 32-byte session key. It may be left empty and
	// supplied later with SetSecretKey.
	SecretKey []byte
	// VideoCodec selects the initial video packetizer. Zero selects H.264.
	VideoCodec rtp.Codec
}

// Validate checks the parameters for completeness.
func (p SessionParams) Validate() error {
	if p.SSRC == 0 {
		return fmt.Errorf("%w: ssrc is zero", ErrInvalidParams)
	}
	if p.Address == "" {
		return fmt.Errorf("%w: empty server address", ErrInvalidParams)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidParams, p.Port)
	}
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidParams, crypto.ErrUnsupportedMode)
	}
	if len(p.SecretKey) != 0 && len(p.SecretKey) != crypto.KeySize {
		return fmt.Errorf("%w: %w", ErrInvalidParams, crypto.ErrInvalidKey)
	}
	if p.VideoCodec != 0 && !p.VideoCodec.Packetizable() {
		return fmt.Errorf("%w: %w: %v", ErrInvalidParams, rtp.ErrUnsupportedCodec, p.VideoCodec)
	}
	return nil
}

// RemoteAddr returns the media server address in host:port form.
func (p SessionParams) RemoteAddr() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

func (p SessionParams) videoSSRC() uint32 {
	if p.VideoSSRC != 0 {
		return p.VideoSSRC
	}
	return p.SSRC + 1
}

func (p SessionParams) videoCodec() rtp.Codec {
	if p.VideoCodec != 0 {
		return p.VideoCodec
	}
	return rtp.CodecH264
}

// Options configures a media session.
type Options struct {
	// LocalAddr is the local bind address. Empty binds an ephemeral port.
	LocalAddr string
	// HandshakeTimeout bounds the wait for the discovery response.
	HandshakeTimeout time.Duration
	// MTU bounds the payload chunk of every packet.
	MTU int
	// SenderReports enables periodic RTCP sender reports.
	SenderReports bool
	// Aggregate enables STAP-A and AP packets for H.264 and H.265.
	Aggregate bool
	// Metrics receives transport counters. May be nil.
	Metrics *metrics.Metrics
}

// DefaultOptions returns the default session options.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		MTU:              limits.DefaultMTU,
		SenderReports:    true,
	}
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.MTU == 0 {
		o.MTU = limits.DefaultMTU
	}
	return o
}

func (o Options) packetizerOptions() rtp.Options {
	opts := rtp.DefaultOptions()
	opts.MTU = o.MTU
	opts.SenderReports = o.SenderReports
	opts.Aggregate = o.Aggregate
	opts.Metrics = o.Metrics
	return opts
}
