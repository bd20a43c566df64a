package receiver

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/opd-ai/voicestream/av/media"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// maxDecodedBytes holds 120ms of 48kHz stereo 16-bit PCM.
const maxDecodedBytes = 5760 * 2 * 2

// PCM is one decoded Opus packet as interleaved signed 16-bit samples.
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// OpusDecoder turns received Opus packets into PCM. It is not safe for
// concurrent use; keep one per subscription.
type OpusDecoder struct {
	decoder opus.Decoder
	buf     []byte
}

// NewOpusDecoder returns a decoder backed by the pure Go pion/opus decoder.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		buf:     make([]byte, maxDecodedBytes),
	}
}

// Decode decodes one packet. Silence frames decode like any other packet.
func (d *OpusDecoder) Decode(packet []byte) (PCM, error) {
	duration, err := media.OpusPacketDuration(packet)
	if err != nil {
		return PCM{}, err
	}

	bandwidth, stereo, err := d.decoder.Decode(packet, d.buf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "OpusDecoder.Decode",
			"size":     len(packet),
			"error":    err.Error(),
		}).Debug("Opus decode failed")
		return PCM{}, fmt.Errorf("opus decode: %w", err)
	}

	channels := 1
	if stereo {
		channels = 2
	}
	rate := bandwidth.SampleRate()
	n := int(duration*time.Duration(rate)/time.Second) * channels * 2
	if n > len(d.buf) {
		n = len(d.buf)
	}

	samples := make([]int16, n/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(d.buf[i*2:]))
	}
	return PCM{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

// Bytes returns the samples as little-endian s16 PCM.
func (p PCM) Bytes() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
