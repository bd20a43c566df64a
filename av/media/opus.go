package media

import (
	"fmt"
	"time"
)

// opusFrameSizes maps the TOC configuration number (RFC 6716 section 3.1)
// to the duration of one frame, in units of 100µs.
var opusFrameSizes = [32]int{
	// SILK NB, MB, WB
	100, 200, 400, 600,
	100, 200, 400, 600,
	100, 200, 400, 600,
	// Hybrid SWB, FB
	100, 200,
	100, 200,
	// CELT NB, WB, SWB, FB
	25, 50, 100, 200,
	25, 50, 100, 200,
	25, 50, 100, 200,
	25, 50, 100, 200,
}

// OpusPacketDuration returns the audio duration carried by one Opus packet,
// read from its TOC byte and frame count.
func OpusPacketDuration(packet []byte) (time.Duration, error) {
	if len(packet) == 0 {
		return 0, fmt.Errorf("%w: empty opus packet", ErrMalformedInput)
	}
	toc := packet[0]
	frameSize := time.Duration(opusFrameSizes[toc>>3]) * 100 * time.Microsecond

	var frames int
	switch toc & 0x03 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	default:
		if len(packet) < 2 {
			return 0, fmt.Errorf("%w: opus packet missing frame count", ErrMalformedInput)
		}
		frames = int(packet[1] & 0x3f)
		if frames == 0 {
			return 0, fmt.Errorf("%w: opus packet with zero frames", ErrMalformedInput)
		}
	}

	d := time.Duration(frames) * frameSize
	if d > 120*time.Millisecond {
		return 0, fmt.Errorf("%w: opus packet of %v exceeds 120ms", ErrMalformedInput, d)
	}
	return d, nil
}
