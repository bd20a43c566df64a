package rtp

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/opd-ai/voicestream/limits"
	"github.com/sirupsen/logrus"
)

// nalFormat captures the differences between the H.264 and H.265 payload
// formats (RFC 6184 and RFC 7798).
type nalFormat interface {
	// headerSize is the NAL unit header length.
	headerSize() int
	// fuHeader returns the payload header and FU header preceding a fragment.
	fuHeader(nalHeader []byte, start, end bool) []byte
	// aggregationHeader returns the payload header of an aggregation packet
	// carrying nals.
	aggregationHeader(nals [][]byte) []byte
}

const (
	h264TypeSTAPA = 24
	h264TypeFUA   = 28
	h265TypeAP    = 48
	h265TypeFU    = 49
)

type h264Format struct{}

func (h264Format) headerSize() int { return 1 }

func (h264Format) fuHeader(nalHeader []byte, start, end bool) []byte {
	fu := []byte{nalHeader[0]&0xe0 | h264TypeFUA, nalHeader[0] & 0x1f}
	if start {
		fu[1] |= 0x80
	}
	if end {
		fu[1] |= 0x40
	}
	return fu
}

func (h264Format) aggregationHeader(nals [][]byte) []byte {
	var f, nri byte
	for _, nal := range nals {
		f |= nal[0] & 0x80
		if n := nal[0] & 0x60; n > nri {
			nri = n
		}
	}
	return []byte{f | nri | h264TypeSTAPA}
}

type h265Format struct{}

func (h265Format) headerSize() int { return 2 }

func (h265Format) fuHeader(nalHeader []byte, start, end bool) []byte {
	nalType := (nalHeader[0] >> 1) & 0x3f
	fu := []byte{
		nalHeader[0]&0x81 | h265TypeFU<<1,
		nalHeader[1],
		nalType,
	}
	if start {
		fu[2] |= 0x80
	}
	if end {
		fu[2] |= 0x40
	}
	return fu
}

func (h265Format) aggregationHeader(nals [][]byte) []byte {
	var f byte
	layerID := byte(0x3f)
	tid := byte(0x07)
	for _, nal := range nals {
		f |= nal[0] & 0x80
		l := (nal[0]&0x01)<<5 | nal[1]>>3
		if l < layerID {
			layerID = l
		}
		if t := nal[1] & 0x07; t < tid {
			tid = t
		}
	}
	return []byte{f | h265TypeAP<<1 | layerID>>5, (layerID&0x1f)<<3 | tid}
}

// AnnexBPacketizer sends H.264 or H.265 access units in Annex-B format.
type AnnexBPacketizer struct {
	*base
	format nalFormat
}

// SplitNALUnits splits an Annex-B byte stream into NAL units without start
// codes. The stream must begin with a 3 or 4 byte start code.
func SplitNALUnits(frame []byte) ([][]byte, error) {
	first, codeLen := findStartCode(frame, 0)
	if first != 0 && !(first > 0 && allZero(frame[:first])) {
		return nil, fmt.Errorf("%w: stream does not begin with a start code", ErrMalformedNAL)
	}

	var nals [][]byte
	pos := first + codeLen
	for pos <= len(frame) {
		next, nextLen := findStartCode(frame, pos)
		end := next
		if next < 0 {
			end = len(frame)
		}
		nal := trimTrailingZeros(frame[pos:end])
		if len(nal) > 0 {
			nals = append(nals, nal)
		}
		if next < 0 {
			break
		}
		pos = next + nextLen
	}

	if len(nals) == 0 {
		return nil, fmt.Errorf("%w: no NAL units found", ErrMalformedNAL)
	}
	return nals, nil
}

// findStartCode returns the offset and length of the next 00 00 01 start
// code at or after from, or -1.
func findStartCode(b []byte, from int) (int, int) {
	for i := from; i+2 < len(b); i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			return i, 3
		}
	}
	return -1, 0
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// SendFrame packetizes and sends one Annex-B access unit.
func (p *AnnexBPacketizer) SendFrame(frame []byte, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := limits.ValidateFrame(frame); err != nil {
		return p.rejectFrame(err, len(frame))
	}
	nals, err := SplitNALUnits(frame)
	if err != nil {
		return p.rejectFrame(err, len(frame))
	}
	for _, nal := range nals {
		if len(nal) <= p.format.headerSize() {
			return p.rejectFrame(fmt.Errorf("%w: NAL unit of %d bytes", ErrMalformedNAL, len(nal)), len(frame))
		}
	}

	packets, octets := 0, 0
	for i := 0; i < len(nals); {
		nal := nals[i]

		if len(nal) > p.opts.MTU {
			n, c, err := p.sendFragmented(nal, i == len(nals)-1)
			if err != nil {
				return p.frameAborted(packets+n, octets+c, duration, err)
			}
			packets += n
			octets += c
			i++
			continue
		}

		group := 1
		if p.opts.Aggregate {
			group = p.aggregatable(nals[i:])
		}
		last := i+group == len(nals)
		var n int
		if group > 1 {
			n, err = p.emit(last, headerExtension, p.aggregate(nals[i:i+group]))
		} else {
			n, err = p.emit(last, headerExtension, nal)
		}
		if err != nil {
			return p.frameAborted(packets, octets, duration, err)
		}
		packets++
		octets += n
		i += group
	}

	p.frameSent(packets, octets, duration)

	p.log.WithFields(logrus.Fields{
		"function":   "AnnexBPacketizer.SendFrame",
		"frame_size": len(frame),
		"nal_units":  len(nals),
		"packets":    packets,
	}).Trace("Annex-B frame sent")
	return nil
}

// sendFragmented sends one oversized NAL unit as FU fragments. The header
// bytes of the NAL unit are replaced by the FU headers.
func (p *AnnexBPacketizer) sendFragmented(nal []byte, lastNAL bool) (int, int, error) {
	hs := p.format.headerSize()
	header, payload := nal[:hs], nal[hs:]

	fuSize := len(p.format.fuHeader(header, false, false))
	chunks := PartitionChunks(payload, p.opts.MTU-fuSize)

	packets, octets := 0, 0
	for j, chunk := range chunks {
		start, end := j == 0, j == len(chunks)-1
		fu := p.format.fuHeader(header, start, end)
		if err := p.checkChunk(append(fu, chunk...)); err != nil {
			return packets, octets, err
		}
		n, err := p.emit(lastNAL && end, headerExtension, fu, chunk)
		if err != nil {
			return packets, octets, err
		}
		packets++
		octets += n
	}
	return packets, octets, nil
}

// aggregatable returns how many leading nals fit together in one
// aggregation packet, or 1 when aggregation does not apply.
func (p *AnnexBPacketizer) aggregatable(nals [][]byte) int {
	size := len(p.format.aggregationHeader(nals[:1]))
	count := 0
	for _, nal := range nals {
		next := size + 2 + len(nal)
		if next > p.opts.MTU {
			break
		}
		size = next
		count++
	}
	if count < 2 {
		return 1
	}
	return count
}

// aggregate builds a STAP-A (H.264) or AP (H.265) payload.
func (p *AnnexBPacketizer) aggregate(nals [][]byte) []byte {
	out := p.format.aggregationHeader(nals)
	for _, nal := range nals {
		out = binary.BigEndian.AppendUint16(out, uint16(len(nal)))
		out = append(out, nal...)
	}
	return out
}
