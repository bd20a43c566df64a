package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/voicestream/av/rtp"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/sirupsen/logrus"
)

// IVFSource reads VP8, VP9 or AV1 frames from an IVF container.
//
// IVF frame headers carry only a timestamp, so each frame's length is the
// distance to the next timestamp. The last frame repeats the previous
// length.
type IVFSource struct {
	reader   *ivfreader.IVFReader
	codec    rtp.Codec
	timeBase Rational
	width    uint16
	height   uint16

	pending    *AccessUnit
	lastLength int64
	done       bool
}

// OpenIVF parses the IVF file header from r.
func OpenIVF(r io.Reader) (*IVFSource, error) {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return nil, fmt.Errorf("%w: ivf header: %w", ErrMalformedInput, err)
	}

	codec, err := ivfCodec(header.FourCC)
	if err != nil {
		return nil, err
	}
	tb := Rational{Num: int64(header.TimebaseNumerator), Den: int64(header.TimebaseDenominator)}
	if !tb.Valid() {
		return nil, fmt.Errorf("%w: ivf time base %v", ErrInvalidTimeBase, tb)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "OpenIVF",
		"codec":     codec.String(),
		"width":     header.Width,
		"height":    header.Height,
		"time_base": tb.String(),
	}).Debug("Opened IVF stream")

	return &IVFSource{
		reader:     reader,
		codec:      codec,
		timeBase:   tb,
		width:      header.Width,
		height:     header.Height,
		lastLength: 1,
	}, nil
}

func ivfCodec(fourCC string) (rtp.Codec, error) {
	switch fourCC {
	case "VP80":
		return rtp.CodecVP8, nil
	case "VP90":
		return rtp.CodecVP9, nil
	case "AV01":
		return rtp.CodecAV1, nil
	default:
		return 0, fmt.Errorf("%w: ivf fourcc %q", ErrUnsupportedFormat, fourCC)
	}
}

// Codec returns the codec named by the file header.
func (s *IVFSource) Codec() rtp.Codec { return s.codec }

// TimeBase returns the time base of frame timestamps.
func (s *IVFSource) TimeBase() Rational { return s.timeBase }

// Dimensions returns the frame size from the file header.
func (s *IVFSource) Dimensions() (width, height uint16) { return s.width, s.height }

// Next returns the next frame or io.EOF.
func (s *IVFSource) Next(ctx context.Context) (AccessUnit, error) {
	if err := ctx.Err(); err != nil {
		return AccessUnit{}, err
	}

	for !s.done {
		frame, header, err := s.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			return AccessUnit{}, fmt.Errorf("%w: ivf frame: %w", ErrMalformedInput, err)
		}

		unit := AccessUnit{
			Data:      frame,
			Timestamp: int64(header.Timestamp),
			TimeBase:  s.timeBase,
			Keyframe:  s.isKeyframe(frame),
		}
		prev := s.pending
		s.pending = &unit
		if prev == nil {
			continue
		}
		if length := unit.Timestamp - prev.Timestamp; length > 0 {
			s.lastLength = length
		}
		prev.Length = s.lastLength
		return *prev, nil
	}

	if s.pending == nil {
		return AccessUnit{}, io.EOF
	}
	last := *s.pending
	s.pending = nil
	last.Length = s.lastLength
	return last, nil
}

// isKeyframe inspects the frame tag. Only VP8 is recognised.
func (s *IVFSource) isKeyframe(frame []byte) bool {
	if s.codec != rtp.CodecVP8 || len(frame) == 0 {
		return false
	}
	// VP8 frame tag: bit 0 is 0 for key frames
	return frame[0]&0x01 == 0
}
