package rtp

import (
	"time"

	"github.com/opd-ai/voicestream/limits"
	"github.com/sirupsen/logrus"
)

// VP8Packetizer sends VP8 frames following RFC 7741.
//
// Each MTU fragment of the frame is preceded by a 4-byte payload descriptor:
//
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|X|R|N|S|R| PID |  X=1, S=1 on the first fragment
//	+-+-+-+-+-+-+-+-+
//	|I|L|T|K| RSV   |  I=1
//	+-+-+-+-+-+-+-+-+
//	|M| PictureID   |  M=1, 15-bit picture id
//	+-+-+-+-+-+-+-+-+
//	|   PictureID   |
//	+-+-+-+-+-+-+-+-+
type VP8Packetizer struct {
	*base
	pictureID uint16
}

// vp8Descriptor builds the payload descriptor for one fragment.
func vp8Descriptor(pictureID uint16, start bool) []byte {
	d := []byte{0x80, 0x80, 0x80 | byte(pictureID>>8)&0x7f, byte(pictureID)}
	if start {
		d[0] |= 0x10
	}
	return d
}

// SendFrame packetizes and sends one VP8 frame.
func (p *VP8Packetizer) SendFrame(frame []byte, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := limits.ValidateFrame(frame); err != nil {
		return p.rejectFrame(err, len(frame))
	}

	chunks := PartitionChunks(frame, p.opts.MTU)
	packets, octets := 0, 0
	for i, chunk := range chunks {
		if err := p.checkChunk(chunk); err != nil {
			return p.frameAborted(packets, octets, duration, p.rejectFrame(err, len(frame)))
		}
		last := i == len(chunks)-1
		n, err := p.emit(last, headerExtension, vp8Descriptor(p.pictureID, i == 0), chunk)
		if err != nil {
			p.pictureID = (p.pictureID + 1) & 0x7fff
			return p.frameAborted(packets, octets, duration, err)
		}
		packets++
		octets += n
	}

	p.pictureID = (p.pictureID + 1) & 0x7fff
	p.frameSent(packets, octets, duration)

	p.log.WithFields(logrus.Fields{
		"function":   "VP8Packetizer.SendFrame",
		"frame_size": len(frame),
		"packets":    packets,
		"picture_id": p.pictureID,
	}).Trace("VP8 frame sent")
	return nil
}
