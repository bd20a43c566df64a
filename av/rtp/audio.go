package rtp

import (
	"time"

	"github.com/opd-ai/voicestream/limits"
	"github.com/sirupsen/logrus"
)

// AudioPacketizer sends Opus frames, one packet per frame.
//
// Opus frames are small, so the sealed frame fills a single packet and the
// timestamp advances by the frame duration at 48 kHz.
type AudioPacketizer struct {
	*base
}

// SendFrame packetizes and sends one Opus frame.
func (p *AudioPacketizer) SendFrame(frame []byte, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := limits.ValidateFrame(frame); err != nil {
		return p.rejectFrame(err, len(frame))
	}
	if err := p.checkChunk(frame); err != nil {
		return p.rejectFrame(err, len(frame))
	}

	n, err := p.emit(true, frame)
	if err != nil {
		return p.frameAborted(0, 0, duration, err)
	}
	p.frameSent(1, n, duration)

	p.log.WithFields(logrus.Fields{
		"function":  "AudioPacketizer.SendFrame",
		"sequence":  p.sequence,
		"timestamp": p.timestamp,
		"bytes":     n,
	}).Trace("Audio frame sent")
	return nil
}
