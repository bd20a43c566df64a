package rtp

import (
	"fmt"
	"time"

	"github.com/opd-ai/voicestream/limits"
	"github.com/sirupsen/logrus"
)

// OBU header bit masks.
const (
	obuTypeMask  = 0x78
	obuExtension = 0x04
	obuHasSize   = 0x02
)

// Aggregation header bits. Z and Y are "continuation" flags, the logical
// negation of "first fragment" and "last fragment" of an OBU.
const (
	av1AggZ = 1 << 7
	av1AggY = 1 << 6
	av1AggN = 1 << 3
)

// OBU is one Open Bitstream Unit split out of an AV1 temporal unit.
type OBU struct {
	Type         uint8
	HasExtension bool
	// Data is the complete OBU including header, extension and size field.
	Data []byte
}

// SplitOBUs splits an AV1 temporal unit into OBUs. Every OBU must carry
// obu_has_size_field; OBUs without it, or with a size running past the
// buffer, wrap ErrMalformedOBU.
func SplitOBUs(buf []byte) ([]OBU, error) {
	var obus []OBU
	for len(buf) > 0 {
		header := buf[0]
		if header&obuHasSize == 0 {
			return nil, fmt.Errorf("%w: expected obu_has_size_field to be set", ErrMalformedOBU)
		}
		sizePos := 1
		if header&obuExtension != 0 {
			sizePos = 2
		}
		if sizePos > len(buf) {
			return nil, fmt.Errorf("%w: truncated OBU header", ErrMalformedOBU)
		}
		size, n, err := DecodeLEB128(buf[sizePos:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOBU, err)
		}
		total := uint64(sizePos+n) + size
		if total > uint64(len(buf)) {
			return nil, fmt.Errorf("%w: OBU size %d exceeds remaining %d bytes", ErrMalformedOBU, total, len(buf))
		}
		obus = append(obus, OBU{
			Type:         (header & obuTypeMask) >> 3,
			HasExtension: header&obuExtension != 0,
			Data:         buf[:total],
		})
		buf = buf[total:]
	}
	return obus, nil
}

// av1AggregationHeader builds the 1-byte aggregation header. The inverted
// Z/Y polarity is what the remote expects and must not be changed.
func av1AggregationHeader(firstOBU, firstFragment, lastFragment bool) byte {
	var h byte
	if !firstFragment {
		h |= av1AggZ
	}
	if !lastFragment {
		h |= av1AggY
	}
	if firstOBU {
		h |= av1AggN
	}
	return h
}

// AV1Packetizer sends AV1 temporal units.
type AV1Packetizer struct {
	*base
}

// SendFrame packetizes and sends one AV1 temporal unit. A malformed OBU
// aborts the frame before any packet is written.
func (p *AV1Packetizer) SendFrame(frame []byte, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := limits.ValidateFrame(frame); err != nil {
		return p.rejectFrame(err, len(frame))
	}
	obus, err := SplitOBUs(frame)
	if err != nil {
		return p.rejectFrame(err, len(frame))
	}

	packets, octets := 0, 0
	for i, obu := range obus {
		chunks := PartitionChunks(obu.Data, p.opts.MTU)
		firstOBU, lastOBU := i == 0, i == len(obus)-1

		for j, chunk := range chunks {
			if err := p.checkChunk(chunk); err != nil {
				return p.frameAborted(packets, octets, duration, p.rejectFrame(err, len(frame)))
			}
			first, last := j == 0, j == len(chunks)-1
			agg := []byte{av1AggregationHeader(firstOBU, first, last)}
			n, err := p.emit(lastOBU && last, headerExtension, agg, EncodeLEB128(uint64(len(chunk))), chunk)
			if err != nil {
				return p.frameAborted(packets, octets, duration, err)
			}
			packets++
			octets += n
		}
	}

	p.frameSent(packets, octets, duration)

	p.log.WithFields(logrus.Fields{
		"function":   "AV1Packetizer.SendFrame",
		"frame_size": len(frame),
		"obus":       len(obus),
		"packets":    packets,
	}).Trace("AV1 temporal unit sent")
	return nil
}
