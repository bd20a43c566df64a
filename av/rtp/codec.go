package rtp

import (
	"fmt"
	"strings"
)

// Codec identifies the media codec carried by a packetizer.
type Codec int

const (
	CodecOpus Codec = iota + 1
	CodecH264
	CodecH265
	CodecVP8
	CodecVP9
	CodecAV1
)

// Clock rates in Hz.
const (
	AudioClockRate = 48000
	VideoClockRate = 90000
)

type codecInfo struct {
	name        string
	payloadType uint8
	clockRate   uint32
	video       bool
}

var codecTable = map[Codec]codecInfo{
	CodecOpus: {"opus", 120, AudioClockRate, false},
	CodecAV1:  {"AV1", 101, VideoClockRate, true},
	CodecH265: {"H265", 103, VideoClockRate, true},
	CodecH264: {"H264", 105, VideoClockRate, true},
	CodecVP8:  {"VP8", 107, VideoClockRate, true},
	CodecVP9:  {"VP9", 109, VideoClockRate, true},
}

// String returns the codec name as used by signaling.
func (c Codec) String() string {
	if info, ok := codecTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Codec(%d)", int(c))
}

// PayloadType returns the RTP payload type agreed for the codec.
func (c Codec) PayloadType() uint8 {
	return codecTable[c].payloadType
}

// ClockRate returns the RTP clock rate of the codec.
func (c Codec) ClockRate() uint32 {
	return codecTable[c].clockRate
}

// IsVideo reports whether the codec is a video codec.
func (c Codec) IsVideo() bool {
	return codecTable[c].video
}

// Packetizable reports whether NewPacketizer supports the codec.
func (c Codec) Packetizable() bool {
	_, ok := codecTable[c]
	return ok && c != CodecVP9
}

// ParseCodec normalizes a codec name ("h264", "AVC", "hevc", "vp8", ...).
func ParseCodec(name string) (Codec, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "OPUS":
		return CodecOpus, nil
	case "H264", "H.264", "AVC":
		return CodecH264, nil
	case "H265", "H.265", "HEVC":
		return CodecH265, nil
	case "VP8":
		return CodecVP8, nil
	case "VP9":
		return CodecVP9, nil
	case "AV1":
		return CodecAV1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
	}
}
